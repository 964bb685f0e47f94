package domain

import "time"

type ParticipantStatus string

const (
	// ParticipantNotJoined is virtual: there is no stored record for the user.
	ParticipantNotJoined ParticipantStatus = "not_joined"
	ParticipantPending   ParticipantStatus = "pending"
	ParticipantApproved  ParticipantStatus = "approved"
	ParticipantDenied    ParticipantStatus = "denied"
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// DenyReason records why a participant ended up denied. Stored status is
// "denied" in every case.
type DenyReason string

const (
	ReasonNone    DenyReason = ""
	ReasonDenied  DenyReason = "denied"
	ReasonKicked  DenyReason = "kicked"
	ReasonExpired DenyReason = "expired"
)

type Participant struct {
	RoomID      string            `db:"room_id" json:"room_id"`
	UserID      string            `db:"user_id" json:"user_id"`
	DisplayName string            `db:"display_name" json:"display_name"`
	Status      ParticipantStatus `db:"status" json:"status"`
	Role        Role              `db:"role" json:"role"`
	DenyReason  DenyReason        `db:"deny_reason" json:"deny_reason"`
	JoinedAt    time.Time         `db:"joined_at" json:"joined_at"`
	ApprovedAt  *time.Time        `db:"approved_at" json:"approved_at"`
	ExpiresAt   *time.Time        `db:"expires_at" json:"expires_at"`
}

// PendingExpired reports whether a pending request has lapsed at now.
func (p *Participant) PendingExpired(now time.Time) bool {
	return p.Status == ParticipantPending && p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// ParticipantState is what a user sees when polling their own status.
type ParticipantState struct {
	Status ParticipantStatus
	Reason DenyReason
	Role   Role
}
