package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
	"github.com/cwrk-planet/karaoke-service/internal/service"
	httpmw "github.com/cwrk-planet/karaoke-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Controller is the part of the room controller the WS endpoint drives.
type Controller interface {
	Snapshot(ctx context.Context, roomID string) (*service.Snapshot, error)
	GetStatus(ctx context.Context, roomID, userID string) (domain.ParticipantState, error)
	RequireHost(ctx context.Context, roomID, userID string) error
	AdvanceFrom(ctx context.Context, roomID, entryID string) (*repository.StepResult, error)
	HandlePlaybackError(ctx context.Context, roomID, itemID string) (*repository.StepResult, error)
	EnsurePlaying(ctx context.Context, roomID string) (*repository.StepResult, error)
}

var _ Controller = (*service.Controller)(nil)

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	ctl      Controller

	pingEvery time.Duration
	opTimeout time.Duration
}

func NewServer(hub *Hub, ctl Controller, opTimeout time.Duration) *Server {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Server{
		hub: hub,
		ctl: ctl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
		opTimeout: opTimeout,
	}
}

// WS endpoint: GET /ws/rooms/{id}?access_token=...&user_id=...
// Identity is resolved by the auth middleware.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	id, ok := httpmw.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	roomID := chi.URLParam(r, "id")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}
	snap, err := s.snapshot(r.Context(), roomID, id.UserID)
	if err != nil {
		if domain.IsNotFound(err) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		httpmw.L(r.Context()).Error("ws initial snapshot failed", slog.String("room", roomID), slog.Any("err", err))
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	// без записи участника комнату не показываем
	if snap.Status == string(domain.ParticipantNotJoined) {
		http.Error(w, "not a member of the room", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, roomID, id.UserID)
	s.hub.Add(c)

	if err := c.Send(Message{Type: TypeSnapshot, Payload: snap}); err != nil {
		slog.Warn("ws send initial state failed", "room", roomID, "user", id.UserID, "err", err)
	}

	s.hub.Broadcast(roomID, Message{
		Type:    TypePeerJoined,
		Payload: PeerEventPayload{RoomID: roomID, UserID: id.UserID},
	})

	go s.writeLoop(r.Context(), c)
	s.readLoop(r.Context(), c)

	s.hub.Remove(c)
	s.hub.Broadcast(roomID, Message{
		Type:    TypePeerLeft,
		Payload: PeerEventPayload{RoomID: roomID, UserID: id.UserID},
	})

	_ = c.Close()
}

func (s *Server) snapshot(ctx context.Context, roomID, userID string) (*SnapshotPayload, error) {
	snap, err := s.ctl.Snapshot(ctx, roomID)
	if err != nil {
		return nil, err
	}
	st, err := s.ctl.GetStatus(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	pending := snap.Pending
	if pending == nil {
		pending = []domain.QueueItem{}
	}
	return &SnapshotPayload{
		Room:       snap.Room,
		NowPlaying: snap.NowPlaying,
		Pending:    pending,
		Status:     string(st.Status),
		Role:       string(st.Role),
	}, nil
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 16)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if err := s.handle(ctx, c, msg); err != nil {
			slog.Debug("ws command failed", "room", c.roomID, "user", c.userID, "type", msg.Type, "err", err)
			_ = c.Send(Message{Type: TypeError, Payload: ErrorPayload{Command: msg.Type, Message: err.Error()}})
		}
	}
}

// handle runs one client command. Step results reach clients through the
// controller's queue.updated event, so success has no direct reply.
func (s *Server) handle(ctx context.Context, c *wsConn, msg inbound) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	switch msg.Type {
	case TypeSync:
		snap, err := s.snapshot(ctx, c.roomID, c.userID)
		if err != nil {
			return err
		}
		return c.Send(Message{Type: TypeSnapshot, Payload: snap})
	case TypePlaybackEnded, TypePlaybackError, TypePlaybackEnsure:
		// управлять плеером может только ведущий
		if err := s.ctl.RequireHost(ctx, c.roomID, c.userID); err != nil {
			return err
		}
		var p PlaybackPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return domain.ErrInvalidInput
			}
		}
		var err error
		switch msg.Type {
		case TypePlaybackEnded:
			_, err = s.ctl.AdvanceFrom(ctx, c.roomID, p.EntryID)
		case TypePlaybackError:
			_, err = s.ctl.HandlePlaybackError(ctx, c.roomID, p.EntryID)
		default:
			_, err = s.ctl.EnsurePlaying(ctx, c.roomID)
		}
		return err
	default:
		return errors.New("unknown command")
	}
}

// writeLoop is the only writer of the socket: queued messages and pings.
func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()
	defer func() { _ = c.Close() }()

	for {
		select {
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

const (
	writeWait = 5 * time.Second
	// sendBuffer ограничивает очередь исходящих сообщений одного клиента
	sendBuffer = 64
)

// ErrSlowConsumer is returned by Send when the outbound queue is full; the
// connection is closed.
var ErrSlowConsumer = errors.New("ws: slow consumer")

var errConnClosed = errors.New("ws: connection closed")

type wsConn struct {
	conn   *websocket.Conn
	roomID string
	userID string
	out    chan Message
	closed chan struct{}
	once   sync.Once
}

func newWsConn(c *websocket.Conn, roomID, userID string) *wsConn {
	return &wsConn{
		conn:   c,
		roomID: roomID,
		userID: userID,
		out:    make(chan Message, sendBuffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	default:
		_ = c.Close()
		return ErrSlowConsumer
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) UserID() string { return c.userID }
func (c *wsConn) RoomID() string { return c.roomID }
