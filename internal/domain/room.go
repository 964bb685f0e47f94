package domain

import "time"

type Room struct {
	ID             string    `db:"id" json:"id"`
	Code           string    `db:"code" json:"code"`
	Name           string    `db:"name" json:"name"`
	HostID         string    `db:"host_id" json:"host_id"`
	CurrentEntryID *string   `db:"current_entry_id" json:"current_entry_id"`
	LastSingerID   *string   `db:"last_singer_id" json:"last_singer_id"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
}

// Idle reports whether nothing is currently playing in the room.
func (r *Room) Idle() bool {
	return r.CurrentEntryID == nil || *r.CurrentEntryID == ""
}

// Expired reports whether the session deadline has passed at now.
func (r *Room) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
