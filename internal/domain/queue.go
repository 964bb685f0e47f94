package domain

import "time"

type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueuePlaying   QueueStatus = "playing"
	QueueCompleted QueueStatus = "completed"
	QueueSkipped   QueueStatus = "skipped"
	QueueError     QueueStatus = "error"
)

// queueTransitions: допустимые переходы; терминальные статусы не имеют исходящих рёбер.
var queueTransitions = map[QueueStatus][]QueueStatus{
	QueuePending: {QueuePlaying, QueueSkipped, QueueError},
	QueuePlaying: {QueueCompleted, QueueSkipped, QueueError},
}

func (s QueueStatus) Valid() bool {
	switch s {
	case QueuePending, QueuePlaying, QueueCompleted, QueueSkipped, QueueError:
		return true
	}
	return false
}

// Terminal reports whether the status can never change again.
func (s QueueStatus) Terminal() bool {
	return s == QueueCompleted || s == QueueSkipped || s == QueueError
}

// CanTransition reports whether a queue item may move from one status to another.
func CanTransition(from, to QueueStatus) bool {
	for _, next := range queueTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Song struct {
	Title    string        `db:"title" json:"title"`
	Artist   string        `db:"artist" json:"artist"`
	VideoID  string        `db:"video_id" json:"video_id"`
	Duration time.Duration `db:"duration_ms" json:"duration"`
}

type QueueItem struct {
	ID          string      `db:"id" json:"id"`
	RoomID      string      `db:"room_id" json:"room_id"`
	SubmitterID string      `db:"submitter_id" json:"submitter_id"`
	SingerName  string      `db:"singer_name" json:"singer_name"`
	Song        Song        `db:"-" json:"song"`
	Status      QueueStatus `db:"status" json:"status"`
	Seq         int64       `db:"seq" json:"seq"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	StartedAt   *time.Time  `db:"started_at" json:"started_at"`
	FinishedAt  *time.Time  `db:"finished_at" json:"finished_at"`
}
