package repository

import (
	"context"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
)

// ParticipantChange is a compare-and-swap on one participant row: it applies
// only while the stored status is one of From.
type ParticipantChange struct {
	RoomID string
	UserID string
	From   []domain.ParticipantStatus
	To     domain.ParticipantStatus
	Reason domain.DenyReason
	// At becomes approved_at when To is approved.
	At time.Time
}

type ParticipantRepository interface {
	// ErrAlreadyExists если запись (room_id, user_id) уже есть
	Create(ctx context.Context, p *domain.Participant) error
	// domain.ErrParticipantNotFound если нет
	Get(ctx context.Context, roomID, userID string) (*domain.Participant, error)
	// Ordered by joined_at; no statuses means all.
	List(ctx context.Context, roomID string, statuses ...domain.ParticipantStatus) ([]domain.Participant, error)
	// Returns the row after the call and whether the change was applied.
	Transition(ctx context.Context, ch ParticipantChange) (*domain.Participant, bool, error)
	// Denies pending rows whose expires_at <= now. Empty userID means every
	// participant of the room.
	ExpirePending(ctx context.Context, roomID, userID string, now time.Time) (int64, error)
	Delete(ctx context.Context, roomID, userID string) error
}
