package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/clock"
	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/events"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
)

// Controller is the room session entry point used by every transport. It
// holds no per-room state; all coordination happens in the store.
type Controller struct {
	Rooms     *RoomService
	Playback  *PlaybackService
	Admission *AdmissionService

	clock     clock.Clock
	publisher events.Publisher
	log       *slog.Logger
}

type Options struct {
	Clock     clock.Clock
	Publisher events.Publisher
	Logger    *slog.Logger
	RoomTTL   time.Duration
	JoinTTL   time.Duration
}

func NewController(store repository.Store, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	rooms := NewRoomService(store, opts.Clock)
	rooms.SetRoomTTL(opts.RoomTTL)
	admission := NewAdmissionService(store.Rooms(), store.Participants(), opts.Clock)
	admission.SetJoinTTL(opts.JoinTTL)

	return &Controller{
		Rooms:     rooms,
		Playback:  NewPlaybackService(store.Queue(), opts.Clock),
		Admission: admission,
		clock:     opts.Clock,
		publisher: opts.Publisher,
		log:       opts.Logger,
	}
}

// --- playback ---

func (c *Controller) Advance(ctx context.Context, roomID string) (*repository.StepResult, error) {
	res, err := c.Playback.Advance(ctx, roomID)
	return c.afterStep(ctx, roomID, res, err)
}

func (c *Controller) AdvanceFrom(ctx context.Context, roomID, entryID string) (*repository.StepResult, error) {
	res, err := c.Playback.AdvanceFrom(ctx, roomID, entryID)
	return c.afterStep(ctx, roomID, res, err)
}

func (c *Controller) SkipSong(ctx context.Context, roomID, itemID string) (*repository.StepResult, error) {
	res, err := c.Playback.SkipSong(ctx, roomID, itemID)
	return c.afterStep(ctx, roomID, res, err)
}

func (c *Controller) EnsurePlaying(ctx context.Context, roomID string) (*repository.StepResult, error) {
	res, err := c.Playback.EnsurePlaying(ctx, roomID)
	return c.afterStep(ctx, roomID, res, err)
}

func (c *Controller) HandlePlaybackError(ctx context.Context, roomID, itemID string) (*repository.StepResult, error) {
	res, err := c.Playback.HandlePlaybackError(ctx, roomID, itemID)
	return c.afterStep(ctx, roomID, res, err)
}

func (c *Controller) afterStep(ctx context.Context, roomID string, res *repository.StepResult, err error) (*repository.StepResult, error) {
	if err != nil {
		return nil, err
	}
	// no-op шаги (повторный сигнал, пустая очередь) не рассылаем
	if res.Promoted != nil || (res.Finished != nil && !res.AlreadyTerminal) {
		c.publish(ctx, events.QueueUpdated, roomID, queueChange{
			CurrentEntryID: res.Room.CurrentEntryID,
			Finished:       res.Finished,
			Current:        res.Current,
		})
	}
	return res, nil
}

type queueChange struct {
	CurrentEntryID *string           `json:"current_entry_id"`
	Finished       *domain.QueueItem `json:"finished,omitempty"`
	Current        *domain.QueueItem `json:"current,omitempty"`
	Submitted      *domain.QueueItem `json:"submitted,omitempty"`
}

// CanSkip allows the host, or the submitter of the item.
func (c *Controller) CanSkip(ctx context.Context, roomID, itemID, userID string) error {
	room, err := c.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if userID != "" && room.HostID == userID {
		return nil
	}
	item, err := c.Rooms.GetItem(ctx, roomID, itemID)
	if err != nil {
		return err
	}
	if userID == "" || item.SubmitterID != userID {
		return domain.ErrForbidden
	}
	return nil
}

func (c *Controller) RequireHost(ctx context.Context, roomID, userID string) error {
	_, err := c.Admission.RequireHost(ctx, roomID, userID)
	return err
}

// --- admission ---

func (c *Controller) RequestJoin(ctx context.Context, roomID, userID, displayName string) (*domain.Participant, error) {
	p, err := c.Admission.RequestJoin(ctx, roomID, userID, displayName)
	return c.afterParticipant(ctx, roomID, p, err)
}

func (c *Controller) Approve(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error) {
	p, err := c.Admission.Approve(ctx, roomID, userID, hostID)
	return c.afterParticipant(ctx, roomID, p, err)
}

func (c *Controller) Deny(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error) {
	p, err := c.Admission.Deny(ctx, roomID, userID, hostID)
	return c.afterParticipant(ctx, roomID, p, err)
}

func (c *Controller) Kick(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error) {
	p, err := c.Admission.Kick(ctx, roomID, userID, hostID)
	return c.afterParticipant(ctx, roomID, p, err)
}

func (c *Controller) Reapprove(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error) {
	p, err := c.Admission.Reapprove(ctx, roomID, userID, hostID)
	return c.afterParticipant(ctx, roomID, p, err)
}

func (c *Controller) Leave(ctx context.Context, roomID, userID string) error {
	if err := c.Admission.Leave(ctx, roomID, userID); err != nil {
		return err
	}
	c.publish(ctx, events.ParticipantUpdated, roomID, participantChange{UserID: userID, Status: domain.ParticipantNotJoined})
	return nil
}

func (c *Controller) ExpireStalePending(ctx context.Context, roomID string) (int64, error) {
	n, err := c.Admission.ExpireStalePending(ctx, roomID)
	if err == nil && n > 0 {
		c.publish(ctx, events.ParticipantUpdated, roomID, participantChange{Expired: n})
	}
	return n, err
}

func (c *Controller) GetStatus(ctx context.Context, roomID, userID string) (domain.ParticipantState, error) {
	return c.Admission.GetStatus(ctx, roomID, userID)
}

func (c *Controller) GetPendingParticipants(ctx context.Context, roomID string) ([]domain.Participant, int64, error) {
	active, expired, err := c.Admission.GetPendingParticipants(ctx, roomID)
	if err == nil && expired > 0 {
		c.publish(ctx, events.ParticipantUpdated, roomID, participantChange{Expired: expired})
	}
	return active, expired, err
}

func (c *Controller) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	list, expired, err := c.Admission.ListParticipants(ctx, roomID)
	if err == nil && expired > 0 {
		c.publish(ctx, events.ParticipantUpdated, roomID, participantChange{Expired: expired})
	}
	return list, err
}

// RequireMember fails with ErrForbidden unless userID has any record in the room.
func (c *Controller) RequireMember(ctx context.Context, roomID, userID string) error {
	_, err := c.Admission.RequireMember(ctx, roomID, userID)
	return err
}

func (c *Controller) afterParticipant(ctx context.Context, roomID string, p *domain.Participant, err error) (*domain.Participant, error) {
	if err != nil {
		return nil, err
	}
	c.publish(ctx, events.ParticipantUpdated, roomID, participantChange{
		UserID: p.UserID,
		Status: p.Status,
		Reason: p.DenyReason,
	})
	return p, nil
}

type participantChange struct {
	UserID  string                   `json:"user_id,omitempty"`
	Status  domain.ParticipantStatus `json:"status,omitempty"`
	Reason  domain.DenyReason        `json:"reason,omitempty"`
	Expired int64                    `json:"expired,omitempty"`
}

// --- rooms & songs ---

func (c *Controller) CreateRoom(ctx context.Context, hostID, hostName, name string) (*domain.Room, error) {
	return c.Rooms.CreateRoom(ctx, hostID, hostName, name)
}

func (c *Controller) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	return c.Rooms.GetRoom(ctx, roomID)
}

func (c *Controller) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	return c.Rooms.GetRoomByCode(ctx, code)
}

func (c *Controller) EndRoom(ctx context.Context, roomID, hostID string) (*domain.Room, error) {
	room, err := c.Rooms.EndRoom(ctx, roomID, hostID)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, events.RoomUpdated, roomID, room)
	return room, nil
}

func (c *Controller) SubmitSong(ctx context.Context, roomID, userID, singerName string, song domain.Song) (*domain.QueueItem, error) {
	room, err := c.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, domain.ErrRoomInactive
	}
	submitter, err := c.Admission.RequireApproved(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	item, err := c.Rooms.SubmitSong(ctx, room, submitter, singerName, song)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, events.QueueUpdated, roomID, queueChange{CurrentEntryID: room.CurrentEntryID, Submitted: item})
	return item, nil
}

func (c *Controller) Snapshot(ctx context.Context, roomID string) (*Snapshot, error) {
	return c.Rooms.Snapshot(ctx, roomID)
}

func (c *Controller) History(ctx context.Context, roomID string, limit int, cursor string) ([]domain.QueueItem, string, error) {
	return c.Rooms.History(ctx, roomID, limit, cursor)
}

// publish is best-effort: the mutation is already committed.
func (c *Controller) publish(ctx context.Context, typ events.Type, roomID string, data any) {
	ev, err := events.New(typ, roomID, c.clock.Now(), data)
	if err != nil {
		c.log.Error("events: build failed", "type", typ, "room_id", roomID, slog.Any("err", err))
		return
	}
	if err := c.publisher.Publish(ctx, ev); err != nil {
		c.log.Warn("events: publish failed", "type", typ, "room_id", roomID, slog.Any("err", err))
	}
}
