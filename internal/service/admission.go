package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/clock"
	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
)

const DefaultJoinTTL = 5 * time.Minute

// AdmissionService gates who may interact with a room. Pending requests
// expire lazily whenever they are read; there is no background sweeper.
type AdmissionService struct {
	rooms        repository.RoomRepository
	participants repository.ParticipantRepository
	clock        clock.Clock

	joinTTL time.Duration
}

func NewAdmissionService(rooms repository.RoomRepository, participants repository.ParticipantRepository, clk clock.Clock) *AdmissionService {
	if clk == nil {
		clk = clock.Real()
	}
	return &AdmissionService{
		rooms:        rooms,
		participants: participants,
		clock:        clk,
		joinTTL:      DefaultJoinTTL,
	}
}

func (s *AdmissionService) SetJoinTTL(d time.Duration) {
	if d > 0 {
		s.joinTTL = d
	}
}

// RequestJoin records a pending join request. A user who already has a
// record gets it back unchanged; the host is always approved.
func (s *AdmissionService) RequestJoin(ctx context.Context, roomID, userID, displayName string) (*domain.Participant, error) {
	userID = strings.TrimSpace(userID)
	displayName = strings.TrimSpace(displayName)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if displayName == "" {
		displayName = userID
	}

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !room.IsActive || room.Expired(now) {
		return nil, domain.ErrRoomInactive
	}

	p := &domain.Participant{
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
		Status:      domain.ParticipantPending,
		Role:        domain.RoleGuest,
		JoinedAt:    now,
	}
	if userID == room.HostID {
		p.Status = domain.ParticipantApproved
		p.Role = domain.RoleHost
		p.ApprovedAt = &now
	} else {
		exp := now.Add(s.joinTTL)
		p.ExpiresAt = &exp
	}

	err = s.participants.Create(ctx, p)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrAlreadyExists) {
		return nil, fmt.Errorf("create participant: %w", err)
	}
	if _, err := s.participants.ExpirePending(ctx, roomID, userID, now); err != nil {
		return nil, err
	}
	return s.participants.Get(ctx, roomID, userID)
}

// Approve: pending|denied -> approved.
func (s *AdmissionService) Approve(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error) {
	return s.transition(ctx, roomID, userID, hostID,
		[]domain.ParticipantStatus{domain.ParticipantPending, domain.ParticipantDenied},
		domain.ParticipantApproved, domain.ReasonNone)
}

// Deny: pending -> denied.
func (s *AdmissionService) Deny(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error) {
	return s.transition(ctx, roomID, userID, hostID,
		[]domain.ParticipantStatus{domain.ParticipantPending},
		domain.ParticipantDenied, domain.ReasonDenied)
}

// Kick: approved -> denied. The host cannot kick themselves.
func (s *AdmissionService) Kick(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error) {
	if userID == hostID {
		return nil, fmt.Errorf("%w: host cannot be kicked", domain.ErrForbidden)
	}
	return s.transition(ctx, roomID, userID, hostID,
		[]domain.ParticipantStatus{domain.ParticipantApproved},
		domain.ParticipantDenied, domain.ReasonKicked)
}

// Reapprove: denied -> approved.
func (s *AdmissionService) Reapprove(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error) {
	return s.transition(ctx, roomID, userID, hostID,
		[]domain.ParticipantStatus{domain.ParticipantDenied},
		domain.ParticipantApproved, domain.ReasonNone)
}

func (s *AdmissionService) transition(
	ctx context.Context,
	roomID, userID, hostID string,
	from []domain.ParticipantStatus,
	to domain.ParticipantStatus,
	reason domain.DenyReason,
) (*domain.Participant, error) {
	room, err := s.RequireHost(ctx, roomID, hostID)
	if err != nil {
		return nil, err
	}
	if userID == room.HostID && to != domain.ParticipantApproved {
		return nil, fmt.Errorf("%w: host admission cannot change", domain.ErrForbidden)
	}

	now := s.clock.Now()
	if _, err := s.participants.ExpirePending(ctx, roomID, userID, now); err != nil {
		return nil, err
	}

	p, applied, err := s.participants.Transition(ctx, repository.ParticipantChange{
		RoomID: roomID,
		UserID: userID,
		From:   from,
		To:     to,
		Reason: reason,
		At:     now,
	})
	if err != nil {
		return nil, err
	}
	if applied {
		return p, nil
	}
	// повтор уже выполненного перехода не ошибка
	if p.Status == to && (reason != domain.ReasonKicked || p.DenyReason == domain.ReasonKicked) {
		return p, nil
	}
	return nil, fmt.Errorf("%w: participant %s -> %s", domain.ErrInvalidTransition, p.Status, to)
}

// ExpireStalePending denies every pending request of the room whose deadline has passed.
func (s *AdmissionService) ExpireStalePending(ctx context.Context, roomID string) (int64, error) {
	return s.participants.ExpirePending(ctx, roomID, "", s.clock.Now())
}

// GetStatus returns what userID sees when polling. A lapsed request is
// expired before it is reported.
func (s *AdmissionService) GetStatus(ctx context.Context, roomID, userID string) (domain.ParticipantState, error) {
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return domain.ParticipantState{}, err
	}
	if _, err := s.participants.ExpirePending(ctx, roomID, userID, s.clock.Now()); err != nil {
		return domain.ParticipantState{}, err
	}
	p, err := s.participants.Get(ctx, roomID, userID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return domain.ParticipantState{Status: domain.ParticipantNotJoined}, nil
	}
	if err != nil {
		return domain.ParticipantState{}, err
	}
	return domain.ParticipantState{Status: p.Status, Reason: p.DenyReason, Role: p.Role}, nil
}

// GetPendingParticipants expires stale requests and returns the ones still
// waiting, oldest first, with the number expired by this call.
func (s *AdmissionService) GetPendingParticipants(ctx context.Context, roomID string) ([]domain.Participant, int64, error) {
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return nil, 0, err
	}
	expired, err := s.ExpireStalePending(ctx, roomID)
	if err != nil {
		return nil, 0, err
	}
	active, err := s.participants.List(ctx, roomID, domain.ParticipantPending)
	if err != nil {
		return nil, 0, err
	}
	return active, expired, nil
}

// ListParticipants returns every record of the room after expiring stale
// requests, with the number expired by this call.
func (s *AdmissionService) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, int64, error) {
	expired, err := s.ExpireStalePending(ctx, roomID)
	if err != nil {
		return nil, 0, err
	}
	list, err := s.participants.List(ctx, roomID)
	if err != nil {
		return nil, 0, err
	}
	return list, expired, nil
}

// RequireMember checks that userID has a record in the room, whatever its
// status. Room state is visible to members only.
func (s *AdmissionService) RequireMember(ctx context.Context, roomID, userID string) (domain.ParticipantState, error) {
	st, err := s.GetStatus(ctx, roomID, userID)
	if err != nil {
		return st, err
	}
	if st.Status == domain.ParticipantNotJoined {
		return st, fmt.Errorf("%w: not a member of the room", domain.ErrForbidden)
	}
	return st, nil
}

// Leave removes the user's record. The host ends the room instead.
func (s *AdmissionService) Leave(ctx context.Context, roomID, userID string) error {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if userID == room.HostID {
		return fmt.Errorf("%w: host cannot leave, end the room instead", domain.ErrForbidden)
	}
	return s.participants.Delete(ctx, roomID, userID)
}

// RequireHost loads the room and checks that userID is its host.
func (s *AdmissionService) RequireHost(ctx context.Context, roomID, userID string) (*domain.Room, error) {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if userID == "" || room.HostID != userID {
		return nil, domain.ErrForbidden
	}
	return room, nil
}

// RequireApproved returns the participant record when userID may act in the room.
func (s *AdmissionService) RequireApproved(ctx context.Context, roomID, userID string) (*domain.Participant, error) {
	if _, err := s.participants.ExpirePending(ctx, roomID, userID, s.clock.Now()); err != nil {
		return nil, err
	}
	p, err := s.participants.Get(ctx, roomID, userID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return nil, domain.ErrNotApproved
	}
	if err != nil {
		return nil, err
	}
	if p.Status != domain.ParticipantApproved {
		return nil, domain.ErrNotApproved
	}
	return p, nil
}
