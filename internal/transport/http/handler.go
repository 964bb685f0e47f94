package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
	"github.com/cwrk-planet/karaoke-service/internal/service"
	httpmw "github.com/cwrk-planet/karaoke-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

// Controller is the part of service.Controller the HTTP API uses.
type Controller interface {
	CreateRoom(ctx context.Context, hostID, hostName, name string) (*domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*domain.Room, error)
	EndRoom(ctx context.Context, roomID, hostID string) (*domain.Room, error)

	RequestJoin(ctx context.Context, roomID, userID, displayName string) (*domain.Participant, error)
	Leave(ctx context.Context, roomID, userID string) error
	GetStatus(ctx context.Context, roomID, userID string) (domain.ParticipantState, error)
	ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)
	GetPendingParticipants(ctx context.Context, roomID string) ([]domain.Participant, int64, error)
	Approve(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error)
	Deny(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error)
	Kick(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error)
	Reapprove(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error)

	SubmitSong(ctx context.Context, roomID, userID, singerName string, song domain.Song) (*domain.QueueItem, error)
	Snapshot(ctx context.Context, roomID string) (*service.Snapshot, error)
	History(ctx context.Context, roomID string, limit int, cursor string) ([]domain.QueueItem, string, error)

	Advance(ctx context.Context, roomID string) (*repository.StepResult, error)
	AdvanceFrom(ctx context.Context, roomID, entryID string) (*repository.StepResult, error)
	EnsurePlaying(ctx context.Context, roomID string) (*repository.StepResult, error)
	SkipSong(ctx context.Context, roomID, itemID string) (*repository.StepResult, error)
	HandlePlaybackError(ctx context.Context, roomID, itemID string) (*repository.StepResult, error)

	RequireHost(ctx context.Context, roomID, userID string) error
	RequireMember(ctx context.Context, roomID, userID string) error
	CanSkip(ctx context.Context, roomID, itemID, userID string) error
}

var _ Controller = (*service.Controller)(nil)

type Handler struct {
	ctl Controller
}

func NewHandler(ctl Controller) *Handler {
	return &Handler{ctl: ctl}
}

// decodeBody accepts an empty body as the zero value.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	id, _ := httpmw.IdentityFromCtx(r.Context())
	hostName := req.HostName
	if hostName == "" {
		hostName = id.Name
	}
	room, err := h.ctl.CreateRoom(r.Context(), id.UserID, hostName, req.Name)
	if err != nil {
		writeError(w, r, "CreateRoom", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomItem(room))
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.ctl.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "GetRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomItem(room))
}

// GET /rooms/code/{code}
func (h *Handler) GetRoomByCode(w http.ResponseWriter, r *http.Request) {
	room, err := h.ctl.GetRoomByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, "GetRoomByCode", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomItem(room))
}

// POST /rooms/{id}/end
func (h *Handler) EndRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.ctl.EndRoom(r.Context(), chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, "EndRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomItem(room))
}

// POST /rooms/{id}/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	id, _ := httpmw.IdentityFromCtx(r.Context())
	name := req.DisplayName
	if name == "" {
		name = id.Name
	}
	p, err := h.ctl.RequestJoin(r.Context(), chi.URLParam(r, "id"), id.UserID, name)
	if err != nil {
		writeError(w, r, "JoinRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantItem(p))
}

// POST /rooms/{id}/leave
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.ctl.Leave(r.Context(), chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context())); err != nil {
		writeError(w, r, "LeaveRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// GET /rooms/{id}/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	userID := httpmw.UserIDFromCtx(r.Context())
	st, err := h.ctl.GetStatus(r.Context(), roomID, userID)
	if err != nil {
		writeError(w, r, "GetStatus", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		RoomID: roomID,
		UserID: userID,
		Status: string(st.Status),
		Reason: string(st.Reason),
		Role:   string(st.Role),
	})
}

// GET /rooms/{id}/participants (members only)
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if err := h.ctl.RequireMember(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context())); err != nil {
		writeError(w, r, "GetParticipants", err)
		return
	}
	list, err := h.ctl.ListParticipants(r.Context(), roomID)
	if err != nil {
		writeError(w, r, "GetParticipants", err)
		return
	}
	writeJSON(w, http.StatusOK, ParticipantsResponse{Items: toParticipantItems(list)})
}

// GET /rooms/{id}/participants/pending (host only)
func (h *Handler) GetPending(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if err := h.ctl.RequireHost(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context())); err != nil {
		writeError(w, r, "GetPending", err)
		return
	}
	active, expired, err := h.ctl.GetPendingParticipants(r.Context(), roomID)
	if err != nil {
		writeError(w, r, "GetPending", err)
		return
	}
	writeJSON(w, http.StatusOK, PendingResponse{Items: toParticipantItems(active), ExpiredCount: expired})
}

type admissionFunc func(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error)

// POST /rooms/{id}/participants/{userID}/{approve|deny|kick|reapprove}
func (h *Handler) admission(op string, fn admissionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := fn(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userID"), httpmw.UserIDFromCtx(r.Context()))
		if err != nil {
			writeError(w, r, op, err)
			return
		}
		writeJSON(w, http.StatusOK, toParticipantItem(p))
	}
}

// GET /rooms/{id}/queue (members only)
func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if err := h.ctl.RequireMember(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context())); err != nil {
		writeError(w, r, "GetQueue", err)
		return
	}
	snap, err := h.ctl.Snapshot(r.Context(), roomID)
	if err != nil {
		writeError(w, r, "GetQueue", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}

// POST /rooms/{id}/queue
func (h *Handler) SubmitSong(w http.ResponseWriter, r *http.Request) {
	var req SubmitSongRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.DurationMs < 0 {
		badRequest(w, "duration_ms must be >= 0")
		return
	}
	item, err := h.ctl.SubmitSong(r.Context(), chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context()), req.SingerName, domain.Song{
		Title:    req.Title,
		Artist:   req.Artist,
		VideoID:  req.VideoID,
		Duration: time.Duration(req.DurationMs) * time.Millisecond,
	})
	if err != nil {
		writeError(w, r, "SubmitSong", err)
		return
	}
	writeJSON(w, http.StatusCreated, toQueueItem(item))
}

// GET /rooms/{id}/history?limit=&cursor= (members only)
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	if err := h.ctl.RequireMember(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context())); err != nil {
		writeError(w, r, "GetHistory", err)
		return
	}
	items, next, err := h.ctl.History(r.Context(), roomID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, r, "GetHistory", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Items: toQueueItems(items), NextCursor: next})
}

// POST /rooms/{id}/queue/advance (host only)
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	var req AdvanceRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if err := h.ctl.RequireHost(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context())); err != nil {
		writeError(w, r, "Advance", err)
		return
	}

	var (
		res *repository.StepResult
		err error
	)
	if req.EntryID != "" {
		res, err = h.ctl.AdvanceFrom(r.Context(), roomID, req.EntryID)
	} else {
		res, err = h.ctl.Advance(r.Context(), roomID)
	}
	if err != nil {
		writeError(w, r, "Advance", err)
		return
	}
	writeJSON(w, http.StatusOK, toStepResponse(res))
}

// POST /rooms/{id}/queue/ensure (host only)
func (h *Handler) EnsurePlaying(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if err := h.ctl.RequireHost(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context())); err != nil {
		writeError(w, r, "EnsurePlaying", err)
		return
	}
	res, err := h.ctl.EnsurePlaying(r.Context(), roomID)
	if err != nil {
		writeError(w, r, "EnsurePlaying", err)
		return
	}
	writeJSON(w, http.StatusOK, toStepResponse(res))
}

// POST /rooms/{id}/queue/{itemID}/skip (host or submitter)
func (h *Handler) SkipSong(w http.ResponseWriter, r *http.Request) {
	roomID, itemID := chi.URLParam(r, "id"), chi.URLParam(r, "itemID")
	if err := h.ctl.CanSkip(r.Context(), roomID, itemID, httpmw.UserIDFromCtx(r.Context())); err != nil {
		writeError(w, r, "SkipSong", err)
		return
	}
	res, err := h.ctl.SkipSong(r.Context(), roomID, itemID)
	if err != nil {
		writeError(w, r, "SkipSong", err)
		return
	}
	writeJSON(w, http.StatusOK, toStepResponse(res))
}

// POST /rooms/{id}/queue/{itemID}/error (host only)
func (h *Handler) PlaybackError(w http.ResponseWriter, r *http.Request) {
	roomID, itemID := chi.URLParam(r, "id"), chi.URLParam(r, "itemID")
	if err := h.ctl.RequireHost(r.Context(), roomID, httpmw.UserIDFromCtx(r.Context())); err != nil {
		writeError(w, r, "PlaybackError", err)
		return
	}
	res, err := h.ctl.HandlePlaybackError(r.Context(), roomID, itemID)
	if err != nil {
		writeError(w, r, "PlaybackError", err)
		return
	}
	writeJSON(w, http.StatusOK, toStepResponse(res))
}
