package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	room, user string

	mu   sync.Mutex
	sent []Message
}

func (f *fakeConn) Send(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeConn) Close() error   { return nil }
func (f *fakeConn) UserID() string { return f.user }
func (f *fakeConn) RoomID() string { return f.room }

func (f *fakeConn) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func TestHubBroadcastIsScopedToRoom(t *testing.T) {
	h := NewHub()
	a := &fakeConn{room: "r1", user: "a"}
	b := &fakeConn{room: "r1", user: "b"}
	other := &fakeConn{room: "r2", user: "c"}
	h.Add(a)
	h.Add(b)
	h.Add(other)
	assert.Equal(t, 2, h.Count("r1"))

	h.Broadcast("r1", Message{Type: TypePeerJoined})
	assert.Len(t, a.messages(), 1)
	assert.Len(t, b.messages(), 1)
	assert.Empty(t, other.messages())

	h.Remove(a)
	h.Remove(b)
	assert.Equal(t, 0, h.Count("r1"))
	h.Broadcast("r1", Message{Type: TypePeerLeft})
	assert.Len(t, a.messages(), 1)
}

func TestHubPublishForwardsEvent(t *testing.T) {
	h := NewHub()
	c := &fakeConn{room: "r1", user: "a"}
	h.Add(c)

	at := time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)
	ev, err := events.New(events.QueueUpdated, "r1", at, map[string]string{"current_entry_id": "e1"})
	require.NoError(t, err)
	require.NoError(t, h.Publish(context.Background(), ev))

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "queue.updated", msgs[0].Type)
	p, ok := msgs[0].Payload.(EventPayload)
	require.True(t, ok)
	assert.Equal(t, "r1", p.RoomID)
	assert.True(t, p.At.Equal(at))

	var data map[string]string
	require.NoError(t, json.Unmarshal(p.Data, &data))
	assert.Equal(t, "e1", data["current_entry_id"])
}

// removingConn unsubscribes itself on delivery, like a connection that
// fails and is dropped mid-broadcast.
type removingConn struct {
	fakeConn
	hub *Hub
}

func (c *removingConn) Send(msg Message) error {
	c.hub.Remove(c)
	return c.fakeConn.Send(msg)
}

func TestHubBroadcastDoesNotHoldLockWhileSending(t *testing.T) {
	h := NewHub()
	c := &removingConn{fakeConn: fakeConn{room: "r1", user: "a"}, hub: h}
	h.Add(c)

	done := make(chan struct{})
	go func() {
		h.Broadcast("r1", Message{Type: TypePeerJoined})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast deadlocked")
	}
	assert.Equal(t, 0, h.Count("r1"))
	assert.Len(t, c.messages(), 1)
}
