package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/clock"
	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/service"
	"github.com/cwrk-planet/karaoke-service/internal/sqlite"
	httpmw "github.com/cwrk-planet/karaoke-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFixture struct {
	ctl *service.Controller
	hub *Hub
	url string
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "ws.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	hub := NewHub()
	ctl := service.NewController(st, service.Options{
		Clock:     clock.Fake(time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)),
		Publisher: hub,
	})

	r := chi.NewRouter()
	r.With(httpmw.Auth(nil)).Get("/ws/rooms/{id}", NewServer(hub, ctl, time.Second).HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &wsFixture{ctl: ctl, hub: hub, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (f *wsFixture) dial(t *testing.T, roomID, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url+"/ws/rooms/"+roomID+"?access_token=dev&user_id="+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg inbound
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg.Payload
		}
	}
}

func TestWSSnapshotAndEvents(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()

	room, err := f.ctl.CreateRoom(ctx, "host", "Host", "Friday")
	require.NoError(t, err)
	_, err = f.ctl.SubmitSong(ctx, room.ID, "host", "", domain.Song{Title: "A"})
	require.NoError(t, err)

	host := f.dial(t, room.ID, "host")
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, TypeSnapshot), &snap))
	assert.Equal(t, room.ID, snap.Room.ID)
	assert.Equal(t, "approved", snap.Status)
	assert.Equal(t, "host", snap.Role)
	assert.Nil(t, snap.NowPlaying)
	require.Len(t, snap.Pending, 1)

	// ведущий запускает очередь через WS
	require.NoError(t, host.WriteJSON(Message{Type: TypePlaybackEnsure}))
	var ev EventPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, "queue.updated"), &ev))
	assert.Equal(t, room.ID, ev.RoomID)

	now, err := f.ctl.Snapshot(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, now.NowPlaying)
	assert.Equal(t, "A", now.NowPlaying.Song.Title)

	require.NoError(t, host.WriteJSON(Message{Type: TypePlaybackEnded, Payload: PlaybackPayload{EntryID: now.NowPlaying.ID}}))
	readUntil(t, host, "queue.updated")

	after, err := f.ctl.Snapshot(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, after.NowPlaying)
}

func TestWSGuestCannotControlPlayback(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()

	room, err := f.ctl.CreateRoom(ctx, "host", "Host", "Friday")
	require.NoError(t, err)
	host := f.dial(t, room.ID, "host")
	readUntil(t, host, TypeSnapshot)

	_, err = f.ctl.RequestJoin(ctx, room.ID, "guest", "Guest")
	require.NoError(t, err)
	guest := f.dial(t, room.ID, "guest")
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(readUntil(t, guest, TypeSnapshot), &snap))
	assert.Equal(t, "pending", snap.Status)
	assert.Equal(t, "guest", snap.Role)

	var peer PeerEventPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, TypePeerJoined), &peer))
	if peer.UserID == "host" {
		require.NoError(t, json.Unmarshal(readUntil(t, host, TypePeerJoined), &peer))
	}
	assert.Equal(t, "guest", peer.UserID)

	require.NoError(t, guest.WriteJSON(Message{Type: TypePlaybackEnsure}))
	var e ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, guest, TypeError), &e))
	assert.Equal(t, TypePlaybackEnsure, e.Command)

	require.NoError(t, guest.WriteJSON(Message{Type: TypeSync}))
	readUntil(t, guest, TypeSnapshot)
}

func TestWSUnknownRoom(t *testing.T) {
	f := newWSFixture(t)
	_, resp, err := websocket.DefaultDialer.Dial(f.url+"/ws/rooms/missing?access_token=dev&user_id=u", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestWSRequiresMembership(t *testing.T) {
	f := newWSFixture(t)
	room, err := f.ctl.CreateRoom(context.Background(), "host", "Host", "Friday")
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(f.url+"/ws/rooms/"+room.ID+"?access_token=dev&user_id=stranger", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, 0, f.hub.Count(room.ID))
}

// A client that stops reading must not hold up room mutations.
func TestWSStalledClientDoesNotBlockController(t *testing.T) {
	f := newWSFixture(t)
	ctx := context.Background()
	room, err := f.ctl.CreateRoom(ctx, "host", "Host", "Friday")
	require.NoError(t, err)

	stalled := f.dial(t, room.ID, "host")
	_ = stalled // ничего не читаем
	require.Eventually(t, func() bool { return f.hub.Count(room.ID) == 1 }, 3*time.Second, 10*time.Millisecond)

	title := strings.Repeat("x", 4096)
	done := make(chan error, 1)
	go func() {
		for i := 0; i < 500; i++ {
			if _, err := f.ctl.SubmitSong(ctx, room.ID, "host", "", domain.Song{Title: title}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("SubmitSong blocked behind a stalled subscriber")
	}
}

func TestWSConnSendDropsSlowConsumer(t *testing.T) {
	f := newWSFixture(t)
	room, err := f.ctl.CreateRoom(context.Background(), "host", "Host", "Friday")
	require.NoError(t, err)

	// очередь без writeLoop: никто её не разбирает
	c := newWsConn(f.dial(t, room.ID, "host"), room.ID, "host")
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, c.Send(Message{Type: TypePeerJoined}))
	}

	err = c.Send(Message{Type: TypePeerJoined})
	assert.True(t, errors.Is(err, ErrSlowConsumer))
	select {
	case <-c.closed:
	default:
		t.Fatal("slow consumer was not closed")
	}
	assert.Error(t, c.Send(Message{Type: TypePeerJoined}))
}
