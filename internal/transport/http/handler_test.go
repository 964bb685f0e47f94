package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/clock"
	"github.com/cwrk-planet/karaoke-service/internal/security"
	"github.com/cwrk-planet/karaoke-service/internal/service"
	"github.com/cwrk-planet/karaoke-service/internal/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t     *testing.T
	srv   *httptest.Server
	store *sqlite.Store
}

func newTestAPI(t *testing.T, verifier *security.JWTSigner) *apiClient {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "karaoke.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctl := service.NewController(st, service.Options{
		Clock: clock.Fake(time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)),
	})
	deps := Deps{Handler: NewHandler(ctl), Store: st}
	if verifier != nil {
		deps.Verifier = verifier
	}
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv, store: st}
}

// do sends a request as user (X-User-ID mode) and decodes the JSON response into out.
func (c *apiClient) do(method, path, user string, body any, out any) int {
	c.t.Helper()
	var rd bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&rd).Encode(body))
	}
	req, err := http.NewRequest(method, c.srv.URL+path, &rd)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer dev")
		req.Header.Set("X-User-ID", user)
	}
	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, nil)
	var body map[string]string
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/healthz", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRequiresAuth(t *testing.T) {
	api := newTestAPI(t, nil)
	var e ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/rooms", "", CreateRoomRequest{Name: "x"}, &e))
	assert.Equal(t, "unauthorized", e.Error.Code)
}

func TestRoomFlow(t *testing.T) {
	api := newTestAPI(t, nil)

	var room RoomItem
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/rooms", "host", CreateRoomRequest{Name: "Friday", HostName: "Host"}, &room))
	assert.Len(t, room.Code, 6)
	base := "/rooms/" + room.ID

	var byCode RoomItem
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/rooms/code/"+room.Code, "guest", nil, &byCode))
	assert.Equal(t, room.ID, byCode.ID)

	// guest joins and waits for approval
	var p ParticipantItem
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/join", "guest", JoinRoomRequest{DisplayName: "Guest"}, &p))
	assert.Equal(t, "pending", p.Status)

	var e ErrorResponse
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPost, base+"/queue", "guest", SubmitSongRequest{Title: "A"}, &e))
	assert.Equal(t, "not_approved", e.Error.Code)

	var pending PendingResponse
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, base+"/participants/pending", "guest", nil, &e))
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, base+"/participants/pending", "host", nil, &pending))
	require.Len(t, pending.Items, 1)

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPost, base+"/participants/guest/approve", "guest", nil, &e))
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/participants/guest/approve", "host", nil, &p))
	assert.Equal(t, "approved", p.Status)

	var st StatusResponse
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, base+"/status", "guest", nil, &st))
	assert.Equal(t, "approved", st.Status)

	// submit two songs and drive playback
	var a, b QueueItem
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, base+"/queue", "guest", SubmitSongRequest{Title: "A", DurationMs: 180000}, &a))
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, base+"/queue", "host", SubmitSongRequest{Title: "B"}, &b))
	assert.EqualValues(t, 180000, a.DurationMs)

	var step StepResponse
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPost, base+"/queue/ensure", "guest", nil, &e))
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/queue/ensure", "host", nil, &step))
	assert.True(t, step.Advanced)
	require.NotNil(t, step.Current)
	assert.Equal(t, a.ID, step.Current.ID)

	// the submitter may skip their own song, others may not
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPost, base+"/queue/"+b.ID+"/skip", "guest", nil, &e))
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/queue/"+a.ID+"/skip", "guest", nil, &step))
	require.NotNil(t, step.Current)
	assert.Equal(t, b.ID, step.Current.ID)

	var snap SnapshotResponse
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, base+"/queue", "guest", nil, &snap))
	require.NotNil(t, snap.NowPlaying)
	assert.Equal(t, b.ID, snap.NowPlaying.ID)
	assert.Empty(t, snap.Pending)

	// stale "ended" signal for A is ignored
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/queue/advance", "host", AdvanceRequest{EntryID: a.ID}, &step))
	assert.False(t, step.Advanced)
	require.NotNil(t, step.CurrentEntryID)
	assert.Equal(t, b.ID, *step.CurrentEntryID)

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/queue/advance", "host", nil, &step))
	assert.False(t, step.Advanced)
	assert.Nil(t, step.CurrentEntryID)

	var hist HistoryResponse
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, base+"/history?limit=10", "guest", nil, &hist))
	assert.Len(t, hist.Items, 2)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, base+"/history?cursor=%21%21", "guest", nil, &e))

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, base+"/queue/nope/error", "host", nil, &e))

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/end", "host", nil, &room))
	assert.False(t, room.IsActive)
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, base+"/queue", "host", SubmitSongRequest{Title: "C"}, &e))
	assert.Equal(t, "room_inactive", e.Error.Code)
}

func TestUnknownRoom(t *testing.T) {
	api := newTestAPI(t, nil)
	var e ErrorResponse
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/rooms/missing", "u", nil, &e))
	assert.Equal(t, "not_found", e.Error.Code)
}

func TestJWTAuth(t *testing.T) {
	signer := security.NewJWTSigner("0123456789abcdef0123456789abcdef", "", time.Hour, 0)
	api := newTestAPI(t, signer)

	tok, err := signer.SignAccessToken("host", "Host", time.Now())
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, api.srv.URL+"/rooms", bytes.NewBufferString(`{"name":"jwt"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var room RoomItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	assert.Equal(t, "host", room.HostID)

	// X-User-ID is ignored once tokens are verified
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/rooms/"+room.ID, "host", nil, nil))
}

func TestRoomStateIsMembersOnly(t *testing.T) {
	api := newTestAPI(t, nil)

	var room RoomItem
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/rooms", "host", CreateRoomRequest{Name: "Friday"}, &room))
	base := "/rooms/" + room.ID

	var e ErrorResponse
	for _, path := range []string{base + "/participants", base + "/queue", base + "/history"} {
		assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, path, "stranger", nil, &e), path)
		assert.Equal(t, "forbidden", e.Error.Code)
	}

	// pending request is enough to see the room
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, base+"/join", "stranger", JoinRoomRequest{}, nil))
	var list ParticipantsResponse
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, base+"/participants", "stranger", nil, &list))
	assert.Len(t, list.Items, 2)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, base+"/queue", "stranger", nil, nil))
}

func TestStoreUnavailable(t *testing.T) {
	api := newTestAPI(t, nil)

	var room RoomItem
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/rooms", "host", CreateRoomRequest{Name: "Friday"}, &room))
	require.NoError(t, api.store.Close())

	req, err := http.NewRequest(http.MethodGet, api.srv.URL+"/rooms/"+room.ID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer dev")
	req.Header.Set("X-User-ID", "host")
	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	assert.Equal(t, "unavailable", e.Error.Code)
	assert.NotContains(t, e.Error.Message, "sqlite", "store details stay internal")
}
