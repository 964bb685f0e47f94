package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/clock"
	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"

	"github.com/google/uuid"
)

const (
	DefaultRoomTTL = 12 * time.Hour

	codeLength   = 6
	codeAttempts = 8
	// без 0/O и 1/I, чтобы код было легко ввести вручную
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxTitleLen = 200
)

type RoomService struct {
	rooms        repository.RoomRepository
	participants repository.ParticipantRepository
	queue        repository.QueueRepository
	clock        clock.Clock

	roomTTL time.Duration
	newCode func() (string, error)
}

func NewRoomService(store repository.Store, clk clock.Clock) *RoomService {
	if clk == nil {
		clk = clock.Real()
	}
	return &RoomService{
		rooms:        store.Rooms(),
		participants: store.Participants(),
		queue:        store.Queue(),
		clock:        clk,
		roomTTL:      DefaultRoomTTL,
		newCode:      randomCode,
	}
}

func (s *RoomService) SetRoomTTL(d time.Duration) {
	if d > 0 {
		s.roomTTL = d
	}
}

// CreateRoom starts a session hosted by hostID. The host is stored as an
// approved participant.
func (s *RoomService) CreateRoom(ctx context.Context, hostID, hostName, name string) (*domain.Room, error) {
	hostID = strings.TrimSpace(hostID)
	if hostID == "" {
		return nil, fmt.Errorf("%w: host id is required", domain.ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Karaoke"
	}
	hostName = strings.TrimSpace(hostName)
	if hostName == "" {
		hostName = hostID
	}

	now := s.clock.Now()
	room := &domain.Room{
		ID:        uuid.NewString(),
		Name:      name,
		HostID:    hostID,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(s.roomTTL),
	}

	var err error
	for attempt := 0; attempt < codeAttempts; attempt++ {
		if room.Code, err = s.newCode(); err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		err = s.rooms.Create(ctx, room)
		if !errors.Is(err, repository.ErrAlreadyExists) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("roomRepo.Create: %w", err)
	}

	host := &domain.Participant{
		RoomID:      room.ID,
		UserID:      hostID,
		DisplayName: hostName,
		Status:      domain.ParticipantApproved,
		Role:        domain.RoleHost,
		JoinedAt:    now,
		ApprovedAt:  &now,
	}
	if err := s.participants.Create(ctx, host); err != nil {
		return nil, fmt.Errorf("participantRepo.Create: %w", err)
	}
	return room, nil
}

// GetRoom возвращает комнату по ID; просроченная комната помечается неактивной.
func (s *RoomService) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.rooms.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.expireRoom(ctx, room)
}

func (s *RoomService) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.ErrRoomNotFound
	}
	room, err := s.rooms.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.expireRoom(ctx, room)
}

func (s *RoomService) expireRoom(ctx context.Context, room *domain.Room) (*domain.Room, error) {
	if !room.IsActive || !room.Expired(s.clock.Now()) {
		return room, nil
	}
	if err := s.rooms.Deactivate(ctx, room.ID); err != nil {
		return nil, err
	}
	room.IsActive = false
	return room, nil
}

// EndRoom marks the room inactive. Only the host may end it.
func (s *RoomService) EndRoom(ctx context.Context, roomID, hostID string) (*domain.Room, error) {
	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostID != hostID {
		return nil, domain.ErrForbidden
	}
	if room.IsActive {
		if err := s.rooms.Deactivate(ctx, roomID); err != nil {
			return nil, err
		}
		room.IsActive = false
	}
	return room, nil
}

// SubmitSong appends a pending entry. The caller must be an approved
// participant of an active room; admission is checked by the controller.
func (s *RoomService) SubmitSong(ctx context.Context, room *domain.Room, submitter *domain.Participant, singerName string, song domain.Song) (*domain.QueueItem, error) {
	if !room.IsActive || room.Expired(s.clock.Now()) {
		return nil, domain.ErrRoomInactive
	}
	song.Title = strings.TrimSpace(song.Title)
	song.Artist = strings.TrimSpace(song.Artist)
	song.VideoID = strings.TrimSpace(song.VideoID)
	switch {
	case song.Title == "" && song.VideoID == "":
		return nil, fmt.Errorf("%w: song title or video id is required", domain.ErrInvalidInput)
	case len(song.Title) > maxTitleLen:
		return nil, fmt.Errorf("%w: song title too long", domain.ErrInvalidInput)
	case song.Duration < 0:
		return nil, fmt.Errorf("%w: negative duration", domain.ErrInvalidInput)
	}
	singerName = strings.TrimSpace(singerName)
	if singerName == "" {
		singerName = submitter.DisplayName
	}

	item := &domain.QueueItem{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		SubmitterID: submitter.UserID,
		SingerName:  singerName,
		Song:        song,
		Status:      domain.QueuePending,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return nil, fmt.Errorf("queueRepo.Enqueue: %w", err)
	}
	return item, nil
}

// Snapshot is the room state presenters and participants render.
type Snapshot struct {
	Room       domain.Room
	NowPlaying *domain.QueueItem
	Pending    []domain.QueueItem
}

func (s *RoomService) Snapshot(ctx context.Context, roomID string) (*Snapshot, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	items, err := s.queue.List(ctx, roomID, domain.QueuePlaying, domain.QueuePending)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Room: *room, Pending: make([]domain.QueueItem, 0, len(items))}
	for i := range items {
		if items[i].Status == domain.QueuePlaying {
			it := items[i]
			snap.NowPlaying = &it
			continue
		}
		snap.Pending = append(snap.Pending, items[i])
	}
	return snap, nil
}

// History возвращает сыгранные песни, новые первыми, с курсорной пагинацией.
func (s *RoomService) History(ctx context.Context, roomID string, limit int, cursor string) ([]domain.QueueItem, string, error) {
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return nil, "", err
	}
	items, next, err := s.queue.History(ctx, roomID, limit, cursor)
	if errors.Is(err, repository.ErrInvalidCursor) {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return items, next, err
}

func (s *RoomService) GetItem(ctx context.Context, roomID, itemID string) (*domain.QueueItem, error) {
	return s.queue.Get(ctx, roomID, itemID)
}

func randomCode() (string, error) {
	var b strings.Builder
	b.Grow(codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
