package grpcx

import (
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
	"github.com/cwrk-planet/karaoke-service/internal/service"
)

type RoomRequest struct {
	RoomID string `json:"room_id"`
}

type CreateRoomRequest struct {
	Name     string `json:"name"`
	HostName string `json:"host_name"`
}

type GetRoomByCodeRequest struct {
	Code string `json:"code"`
}

type JoinRoomRequest struct {
	RoomID      string `json:"room_id"`
	DisplayName string `json:"display_name"`
}

type ParticipantRequest struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type SubmitSongRequest struct {
	RoomID     string `json:"room_id"`
	SingerName string `json:"singer_name"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	VideoID    string `json:"video_id"`
	DurationMs int64  `json:"duration_ms"`
}

type EntryRequest struct {
	RoomID  string `json:"room_id"`
	EntryID string `json:"entry_id"`
}

type HistoryRequest struct {
	RoomID string `json:"room_id"`
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor"`
}

type Empty struct{}

type Room struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	HostID         string    `json:"host_id"`
	CurrentEntryID string    `json:"current_entry_id,omitempty"`
	LastSingerID   string    `json:"last_singer_id,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type QueueItem struct {
	ID          string     `json:"id"`
	SubmitterID string     `json:"submitter_id"`
	SingerName  string     `json:"singer_name"`
	Title       string     `json:"title"`
	Artist      string     `json:"artist,omitempty"`
	VideoID     string     `json:"video_id,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

type Participant struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Status      string    `json:"status"`
	Role        string    `json:"role"`
	Reason      string    `json:"reason,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

type StatusResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Role   string `json:"role,omitempty"`
}

type ParticipantsResponse struct {
	Items        []Participant `json:"items"`
	ExpiredCount int64         `json:"expired_count,omitempty"`
}

type StepResponse struct {
	Advanced        bool       `json:"advanced"`
	AlreadyTerminal bool       `json:"already_terminal,omitempty"`
	CurrentEntryID  string     `json:"current_entry_id,omitempty"`
	Current         *QueueItem `json:"current,omitempty"`
	Finished        *QueueItem `json:"finished,omitempty"`
}

type SnapshotResponse struct {
	Room       Room        `json:"room"`
	NowPlaying *QueueItem  `json:"now_playing,omitempty"`
	Pending    []QueueItem `json:"pending"`
}

type HistoryResponse struct {
	Items      []QueueItem `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func valueOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func mapRoom(r *domain.Room) *Room {
	return &Room{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		HostID:         r.HostID,
		CurrentEntryID: valueOrEmpty(r.CurrentEntryID),
		LastSingerID:   valueOrEmpty(r.LastSingerID),
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
	}
}

func mapItem(it *domain.QueueItem) *QueueItem {
	if it == nil {
		return nil
	}
	return &QueueItem{
		ID:          it.ID,
		SubmitterID: it.SubmitterID,
		SingerName:  it.SingerName,
		Title:       it.Song.Title,
		Artist:      it.Song.Artist,
		VideoID:     it.Song.VideoID,
		DurationMs:  it.Song.Duration.Milliseconds(),
		Status:      string(it.Status),
		CreatedAt:   it.CreatedAt,
		StartedAt:   it.StartedAt,
		FinishedAt:  it.FinishedAt,
	}
}

func mapItems(items []domain.QueueItem) []QueueItem {
	out := make([]QueueItem, 0, len(items))
	for i := range items {
		out = append(out, *mapItem(&items[i]))
	}
	return out
}

func mapParticipant(p *domain.Participant) *Participant {
	return &Participant{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Status:      string(p.Status),
		Role:        string(p.Role),
		Reason:      string(p.DenyReason),
		JoinedAt:    p.JoinedAt,
	}
}

func mapParticipants(list []domain.Participant) []Participant {
	out := make([]Participant, 0, len(list))
	for i := range list {
		out = append(out, *mapParticipant(&list[i]))
	}
	return out
}

func mapStep(res *repository.StepResult) *StepResponse {
	return &StepResponse{
		Advanced:        res.Advanced(),
		AlreadyTerminal: res.AlreadyTerminal,
		CurrentEntryID:  valueOrEmpty(res.Room.CurrentEntryID),
		Current:         mapItem(res.Current),
		Finished:        mapItem(res.Finished),
	}
}

func mapSnapshot(s *service.Snapshot) *SnapshotResponse {
	return &SnapshotResponse{
		Room:       *mapRoom(&s.Room),
		NowPlaying: mapItem(s.NowPlaying),
		Pending:    mapItems(s.Pending),
	}
}
