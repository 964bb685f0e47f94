// Package events carries room change notifications from the controller to
// connected clients, optionally across instances through Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Type string

const (
	QueueUpdated       Type = "queue.updated"
	ParticipantUpdated Type = "participant.updated"
	RoomUpdated        Type = "room.updated"
)

type Event struct {
	Type   Type            `json:"type"`
	RoomID string          `json:"room_id"`
	At     time.Time       `json:"at"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// New builds an event with data encoded as JSON.
func New(typ Type, roomID string, at time.Time, data any) (Event, error) {
	ev := Event{Type: typ, RoomID: roomID, At: at}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s data: %w", typ, err)
		}
		ev.Data = b
	}
	return ev, nil
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// Multi delivers to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
