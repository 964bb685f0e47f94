package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
)

const participantColumns = `room_id, user_id, display_name, status, role, deny_reason, joined_at, approved_at, expires_at`

type ParticipantRepository struct {
	db *sql.DB
}

func (r *ParticipantRepository) Create(ctx context.Context, p *domain.Participant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO participants (`+participantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.RoomID, p.UserID, p.DisplayName, string(p.Status), string(p.Role), string(p.DenyReason),
		toMillis(p.JoinedAt), nullMillis(p.ApprovedAt), nullMillis(p.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return wrapErr("create participant", err)
	}
	return nil
}

func (r *ParticipantRepository) Get(ctx context.Context, roomID, userID string) (*domain.Participant, error) {
	p, err := scanParticipant(r.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE room_id = ? AND user_id = ?`, roomID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, wrapErr("get participant", err)
	}
	return p, nil
}

func (r *ParticipantRepository) List(ctx context.Context, roomID string, statuses ...domain.ParticipantStatus) ([]domain.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE room_id = ?`
	args := []any{roomID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY joined_at ASC, user_id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list participants", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, wrapErr("scan participant", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list participants", err)
	}
	return out, nil
}

func (r *ParticipantRepository) Transition(ctx context.Context, ch repository.ParticipantChange) (*domain.Participant, bool, error) {
	if len(ch.From) == 0 {
		return nil, false, domain.ErrInvalidTransition
	}
	args := []any{string(ch.To), string(ch.Reason), string(ch.To), toMillis(ch.At), ch.RoomID, ch.UserID}
	for _, s := range ch.From {
		args = append(args, string(s))
	}
	p, err := scanParticipant(r.db.QueryRowContext(ctx, `
		UPDATE participants
		SET status = ?,
		    deny_reason = ?,
		    expires_at = NULL,
		    approved_at = CASE WHEN ? = 'approved' THEN ? ELSE approved_at END
		WHERE room_id = ? AND user_id = ? AND status IN (`+placeholders(len(ch.From))+`)
		RETURNING `+participantColumns, args...))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, wrapErr("transition participant", err)
	}
	cur, err := r.Get(ctx, ch.RoomID, ch.UserID)
	if err != nil {
		return nil, false, err
	}
	return cur, false, nil
}

func (r *ParticipantRepository) ExpirePending(ctx context.Context, roomID, userID string, now time.Time) (int64, error) {
	query := `
		UPDATE participants
		SET status = 'denied', deny_reason = 'expired', expires_at = NULL
		WHERE room_id = ? AND status = 'pending' AND expires_at IS NOT NULL AND expires_at <= ?`
	args := []any{roomID, toMillis(now)}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapErr("expire pending", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("expire pending", err)
	}
	return n, nil
}

func (r *ParticipantRepository) Delete(ctx context.Context, roomID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE room_id = ? AND user_id = ?`, roomID, userID)
	if err != nil {
		return wrapErr("delete participant", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func scanParticipant(row scanner) (*domain.Participant, error) {
	var (
		p                    domain.Participant
		status, role, reason string
		joined               int64
		approved, expires    sql.NullInt64
	)
	if err := row.Scan(&p.RoomID, &p.UserID, &p.DisplayName, &status, &role, &reason,
		&joined, &approved, &expires); err != nil {
		return nil, err
	}
	p.Status = domain.ParticipantStatus(status)
	p.Role = domain.Role(role)
	p.DenyReason = domain.DenyReason(reason)
	p.JoinedAt = fromMillis(joined)
	p.ApprovedAt = timePtr(approved)
	p.ExpiresAt = timePtr(expires)
	return &p, nil
}
