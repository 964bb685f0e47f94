package http

import (
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
	"github.com/cwrk-planet/karaoke-service/internal/service"
)

type CreateRoomRequest struct {
	Name     string `json:"name"`
	HostName string `json:"host_name"`
}

type JoinRoomRequest struct {
	DisplayName string `json:"display_name"`
}

type SubmitSongRequest struct {
	SingerName string `json:"singer_name"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	VideoID    string `json:"video_id"`
	DurationMs int64  `json:"duration_ms"`
}

// AdvanceRequest is optional; with entry_id the call only completes that entry
// if it is still playing.
type AdvanceRequest struct {
	EntryID string `json:"entry_id"`
}

type RoomItem struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	HostID         string    `json:"host_id"`
	CurrentEntryID *string   `json:"current_entry_id"`
	LastSingerID   *string   `json:"last_singer_id"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type QueueItem struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"room_id"`
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

type ParticipantItem struct {
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Status      string     `json:"status"`
	Role        string     `json:"role"`
	Reason      string     `json:"reason,omitempty"`
	JoinedAt    time.Time  `json:"joined_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type ParticipantsResponse struct {
	Items []ParticipantItem `json:"items"`
}

type PendingResponse struct {
	Items        []ParticipantItem `json:"items"`
	ExpiredCount int64             `json:"expired_count"`
}

type StatusResponse struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Role   string `json:"role,omitempty"`
}

type StepResponse struct {
	Advanced        bool       `json:"advanced"`
	AlreadyTerminal bool       `json:"already_terminal,omitempty"`
	CurrentEntryID  *string    `json:"current_entry_id"`
	Current         *QueueItem `json:"current,omitempty"`
	Finished        *QueueItem `json:"finished,omitempty"`
}

type SnapshotResponse struct {
	Room       RoomItem    `json:"room"`
	NowPlaying *QueueItem  `json:"now_playing"`
	Pending    []QueueItem `json:"pending"`
}

type HistoryResponse struct {
	Items      []QueueItem `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toRoomItem(r *domain.Room) RoomItem {
	return RoomItem{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		HostID:         r.HostID,
		CurrentEntryID: r.CurrentEntryID,
		LastSingerID:   r.LastSingerID,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
	}
}

func toQueueItem(it *domain.QueueItem) *QueueItem {
	if it == nil {
		return nil
	}
	return &QueueItem{
		ID:          it.ID,
		RoomID:      it.RoomID,
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

func toQueueItems(items []domain.QueueItem) []QueueItem {
	out := make([]QueueItem, 0, len(items))
	for i := range items {
		out = append(out, *toQueueItem(&items[i]))
	}
	return out
}

func toParticipantItem(p *domain.Participant) ParticipantItem {
	return ParticipantItem{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Status:      string(p.Status),
		Role:        string(p.Role),
		Reason:      string(p.DenyReason),
		JoinedAt:    p.JoinedAt,
		ApprovedAt:  p.ApprovedAt,
		ExpiresAt:   p.ExpiresAt,
	}
}

func toParticipantItems(list []domain.Participant) []ParticipantItem {
	out := make([]ParticipantItem, 0, len(list))
	for i := range list {
		out = append(out, toParticipantItem(&list[i]))
	}
	return out
}

func toStepResponse(res *repository.StepResult) StepResponse {
	return StepResponse{
		Advanced:        res.Advanced(),
		AlreadyTerminal: res.AlreadyTerminal,
		CurrentEntryID:  res.Room.CurrentEntryID,
		Current:         toQueueItem(res.Current),
		Finished:        toQueueItem(res.Finished),
	}
}

func toSnapshotResponse(s *service.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		Room:       toRoomItem(&s.Room),
		NowPlaying: toQueueItem(s.NowPlaying),
		Pending:    toQueueItems(s.Pending),
	}
}
