package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cwrk-planet/karaoke-service/internal/clock"
	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
)

// PlaybackService drives a room's queue. Every method is a single store step,
// so concurrent callers on one room are serialized by the store.
type PlaybackService struct {
	queue repository.QueueRepository
	clock clock.Clock
}

func NewPlaybackService(queue repository.QueueRepository, clk clock.Clock) *PlaybackService {
	if clk == nil {
		clk = clock.Real()
	}
	return &PlaybackService{queue: queue, clock: clk}
}

// Advance completes the playing entry, if any, and starts the next pending one.
// res.Advanced() is false when nothing was left to start.
func (s *PlaybackService) Advance(ctx context.Context, roomID string) (*repository.StepResult, error) {
	return s.step(ctx, repository.Step{RoomID: roomID, Final: domain.QueueCompleted})
}

// AdvanceFrom is Advance for a "video ended" signal about entryID. Signals
// about an entry that is no longer current do not touch the queue.
func (s *PlaybackService) AdvanceFrom(ctx context.Context, roomID, entryID string) (*repository.StepResult, error) {
	if strings.TrimSpace(entryID) == "" {
		return nil, fmt.Errorf("%w: entry id is required", domain.ErrInvalidInput)
	}
	return s.step(ctx, repository.Step{
		RoomID:         roomID,
		EntryID:        entryID,
		Final:          domain.QueueCompleted,
		RequireCurrent: true,
	})
}

func (s *PlaybackService) SkipSong(ctx context.Context, roomID, itemID string) (*repository.StepResult, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, fmt.Errorf("%w: item id is required", domain.ErrInvalidInput)
	}
	return s.step(ctx, repository.Step{RoomID: roomID, EntryID: itemID, Final: domain.QueueSkipped})
}

func (s *PlaybackService) EnsurePlaying(ctx context.Context, roomID string) (*repository.StepResult, error) {
	return s.step(ctx, repository.Step{RoomID: roomID})
}

func (s *PlaybackService) HandlePlaybackError(ctx context.Context, roomID, itemID string) (*repository.StepResult, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, fmt.Errorf("%w: item id is required", domain.ErrInvalidInput)
	}
	return s.step(ctx, repository.Step{RoomID: roomID, EntryID: itemID, Final: domain.QueueError})
}

func (s *PlaybackService) step(ctx context.Context, st repository.Step) (*repository.StepResult, error) {
	if strings.TrimSpace(st.RoomID) == "" {
		return nil, fmt.Errorf("%w: room id is required", domain.ErrInvalidInput)
	}
	st.Now = s.clock.Now()
	res, err := s.queue.Step(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("queue step: %w", err)
	}
	return res, nil
}
