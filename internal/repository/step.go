package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
)

// StepTx is the row-level surface a store exposes inside the transaction that
// runs a Step. LockRoom must block concurrent steps of the same room until the
// transaction ends.
type StepTx interface {
	LockRoom(ctx context.Context, roomID string) (*domain.Room, error)
	GetItem(ctx context.Context, roomID, id string) (*domain.QueueItem, error)
	FinishItem(ctx context.Context, id string, status domain.QueueStatus, at time.Time) error
	StartItem(ctx context.Context, id string, at time.Time) error
	// Earliest pending item by (created_at, seq); nil when the queue is drained.
	NextPending(ctx context.Context, roomID string) (*domain.QueueItem, error)
	SetCurrent(ctx context.Context, roomID string, entryID, lastSingerID *string) error
}

// RunStep executes s against tx. The caller owns begin/commit/rollback.
func RunStep(ctx context.Context, tx StepTx, s Step) (*StepResult, error) {
	if s.Final != "" && !s.Final.Terminal() {
		return nil, fmt.Errorf("%w: %q is not a final status", domain.ErrInvalidTransition, s.Final)
	}

	room, err := tx.LockRoom(ctx, s.RoomID)
	if err != nil {
		return nil, err
	}
	res := &StepResult{}
	pointerChanged := false

	if s.Final != "" {
		targetID := s.EntryID
		if targetID == "" && !room.Idle() {
			targetID = *room.CurrentEntryID
		}
		isCurrent := targetID != "" && !room.Idle() && targetID == *room.CurrentEntryID

		if targetID != "" {
			item, err := tx.GetItem(ctx, s.RoomID, targetID)
			switch {
			case errors.Is(err, domain.ErrQueueItemNotFound) && isCurrent && s.EntryID == "":
				// висячий указатель: сбрасываем и продвигаемся дальше
				room.CurrentEntryID = nil
				pointerChanged = true
			case err != nil:
				return nil, err
			case s.RequireCurrent && !isCurrent:
				res.Finished = item
				res.AlreadyTerminal = item.Status.Terminal()
			case item.Status.Terminal():
				res.Finished = item
				res.AlreadyTerminal = true
				if isCurrent {
					room.CurrentEntryID = nil
					pointerChanged = true
				}
			case domain.CanTransition(item.Status, s.Final):
				if err := tx.FinishItem(ctx, item.ID, s.Final, s.Now); err != nil {
					return nil, err
				}
				at := s.Now
				item.Status = s.Final
				item.FinishedAt = &at
				res.Finished = item
				if isCurrent {
					room.CurrentEntryID = nil
					pointerChanged = true
				}
			default:
				return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, item.Status, s.Final)
			}
		}
	}

	if room.Idle() {
		next, err := tx.NextPending(ctx, s.RoomID)
		if err != nil {
			return nil, err
		}
		if next != nil {
			if err := tx.StartItem(ctx, next.ID, s.Now); err != nil {
				return nil, err
			}
			at := s.Now
			next.Status = domain.QueuePlaying
			next.StartedAt = &at
			id, singer := next.ID, next.SubmitterID
			room.CurrentEntryID = &id
			room.LastSingerID = &singer
			pointerChanged = true
			res.Promoted = next
		}
	}

	if pointerChanged {
		if err := tx.SetCurrent(ctx, room.ID, room.CurrentEntryID, room.LastSingerID); err != nil {
			return nil, err
		}
	}

	switch {
	case res.Promoted != nil:
		res.Current = res.Promoted
	case !room.Idle():
		cur, err := tx.GetItem(ctx, s.RoomID, *room.CurrentEntryID)
		if err != nil {
			return nil, err
		}
		res.Current = cur
	}
	res.Room = *room
	return res, nil
}
