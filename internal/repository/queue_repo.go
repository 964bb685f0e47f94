package repository

import (
	"context"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
)

// Step is one atomic playback transition of a room. Stores execute it as a
// single transaction holding the room lock:
//
//  1. finish: when Final is set, move the target entry (EntryID, or the
//     room's current entry when EntryID is empty) to Final. A target that is
//     already terminal is left untouched and reported via AlreadyTerminal.
//     Finishing the current entry clears Room.current_entry_id.
//  2. promote: when the room is idle, the earliest pending entry by
//     (created_at, seq) becomes playing and current; with nothing pending the
//     pointer stays empty.
type Step struct {
	RoomID  string
	EntryID string
	Final   domain.QueueStatus
	// RequireCurrent makes the finish step a no-op unless EntryID is the
	// room's current entry.
	RequireCurrent bool
	Now            time.Time
}

type StepResult struct {
	Room            domain.Room
	Finished        *domain.QueueItem
	AlreadyTerminal bool
	Promoted        *domain.QueueItem
	// Current is the playing entry after the step, nil when idle.
	Current *domain.QueueItem
}

// Advanced reports whether the step started a new entry.
func (r *StepResult) Advanced() bool { return r != nil && r.Promoted != nil }

type QueueRepository interface {
	// Fills Seq; Status must be pending.
	Enqueue(ctx context.Context, item *domain.QueueItem) error
	// domain.ErrQueueItemNotFound if the item is missing or belongs to another room
	Get(ctx context.Context, roomID, id string) (*domain.QueueItem, error)
	// Ordered by (created_at, seq); no statuses means all.
	List(ctx context.Context, roomID string, statuses ...domain.QueueStatus) ([]domain.QueueItem, error)
	// Terminal items newest first with cursor pagination.
	History(ctx context.Context, roomID string, limit int, cursor string) ([]domain.QueueItem, string, error)
	Step(ctx context.Context, s Step) (*StepResult, error)
}

// Store groups the repositories of one backend.
type Store interface {
	Rooms() RoomRepository
	Queue() QueueRepository
	Participants() ParticipantRepository
	Ping(ctx context.Context) error
	Close() error
}
