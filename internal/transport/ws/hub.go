package ws

import (
	"context"
	"sync"

	"github.com/cwrk-planet/karaoke-service/internal/events"
)

// Conn is one subscriber of room events. Send enqueues and returns at once;
// a subscriber that cannot keep up is disconnected.
type Conn interface {
	Send(msg Message) error
	Close() error
	UserID() string
	RoomID() string
}

// Hub держит WS-подключения по комнатам и рассылает им события.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]struct{} // roomID -> set of connections
}

var _ events.Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Conn]struct{})}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[c.RoomID()]
	if !ok {
		rs = make(map[Conn]struct{})
		h.rooms[c.RoomID()] = rs
	}
	rs[c] = struct{}{}
}

func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[c.RoomID()]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, c.RoomID())
		}
	}
}

func (h *Hub) Count(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Broadcast hands msg to every connection of the room. Conn.Send must not
// block: the hub lock is released before sending.
func (h *Hub) Broadcast(roomID string, msg Message) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Send(msg) // best-effort
	}
}

// Publish delivers a room event to every connection of that room.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	h.Broadcast(ev.RoomID, Message{
		Type:    string(ev.Type),
		Payload: EventPayload{RoomID: ev.RoomID, At: ev.At, Data: ev.Data},
	})
	return nil
}
