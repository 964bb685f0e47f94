package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-redis/redis/v8"
)

// RedisBridge publishes events to a per-room Redis channel and, while Run is
// active, delivers everything received on those channels to Local. Every
// instance, including the publisher, gets events through the subscription.
type RedisBridge struct {
	client *redis.Client
	prefix string
	local  Publisher
	log    *slog.Logger
}

func NewRedisBridge(client *redis.Client, prefix string, local Publisher, log *slog.Logger) *RedisBridge {
	if prefix == "" {
		prefix = "karaoke:room:"
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{client: client, prefix: prefix, local: local, log: log}
}

func (b *RedisBridge) Channel(roomID string) string { return b.prefix + roomID }

func (b *RedisBridge) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.Channel(ev.RoomID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Type, err)
	}
	return nil
}

// Run blocks until ctx is done, forwarding subscribed events to the local publisher.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	// дожидаемся подтверждения подписки, иначе первые сообщения теряются
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := decodeMessage(b.prefix, msg.Channel, msg.Payload)
			if err != nil {
				b.log.Warn("events: drop redis message", "channel", msg.Channel, slog.Any("err", err))
				continue
			}
			if err := b.local.Publish(ctx, ev); err != nil {
				b.log.Debug("events: local delivery failed", "room_id", ev.RoomID, slog.Any("err", err))
			}
		}
	}
}

func decodeMessage(prefix, channel, payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.RoomID == "" {
		ev.RoomID = strings.TrimPrefix(channel, prefix)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event without type on %s", channel)
	}
	return ev, nil
}
