package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const participantColumns = `room_id, user_id, display_name, status, role, deny_reason, joined_at, approved_at, expires_at`

type ParticipantRepository struct {
	db *pgxpool.Pool
}

var _ repository.ParticipantRepository = (*ParticipantRepository)(nil)

func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func (r *ParticipantRepository) Create(ctx context.Context, p *domain.Participant) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO room_participants (`+participantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.RoomID, p.UserID, p.DisplayName, string(p.Status), string(p.Role), string(p.DenyReason),
		p.JoinedAt, p.ApprovedAt, p.ExpiresAt)
	return mapPgError("create participant", err)
}

func (r *ParticipantRepository) Get(ctx context.Context, roomID, userID string) (*domain.Participant, error) {
	p, err := scanParticipant(r.db.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM room_participants WHERE room_id=$1 AND user_id=$2`,
		roomID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, mapPgError("get participant", err)
	}
	return p, nil
}

func (r *ParticipantRepository) List(ctx context.Context, roomID string, statuses ...domain.ParticipantStatus) ([]domain.Participant, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+participantColumns+`
		FROM room_participants
		WHERE room_id=$1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY joined_at ASC, user_id ASC`, roomID, names)
	if err != nil {
		return nil, mapPgError("list participants", err)
	}
	defer rows.Close()

	var list []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, mapPgError("scan participant", err)
		}
		list = append(list, *p)
	}
	return list, mapPgError("list participants", rows.Err())
}

// Transition: CAS по статусу: строка меняется только если текущий статус входит в From.
func (r *ParticipantRepository) Transition(ctx context.Context, ch repository.ParticipantChange) (*domain.Participant, bool, error) {
	if len(ch.From) == 0 {
		return nil, false, domain.ErrInvalidTransition
	}
	from := make([]string, 0, len(ch.From))
	for _, s := range ch.From {
		from = append(from, string(s))
	}
	p, err := scanParticipant(r.db.QueryRow(ctx, `
		UPDATE room_participants
		SET status=$1,
		    deny_reason=$2,
		    expires_at=NULL,
		    approved_at=CASE WHEN $1 = 'approved' THEN $3::timestamptz ELSE approved_at END
		WHERE room_id=$4 AND user_id=$5 AND status = ANY($6)
		RETURNING `+participantColumns,
		string(ch.To), string(ch.Reason), ch.At, ch.RoomID, ch.UserID, from))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, mapPgError("transition participant", err)
	}
	cur, err := r.Get(ctx, ch.RoomID, ch.UserID)
	if err != nil {
		return nil, false, err
	}
	return cur, false, nil
}

func (r *ParticipantRepository) ExpirePending(ctx context.Context, roomID, userID string, now time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx, `
		UPDATE room_participants
		SET status='denied', deny_reason='expired', expires_at=NULL
		WHERE room_id=$1
		  AND status='pending'
		  AND expires_at IS NOT NULL
		  AND expires_at <= $2
		  AND ($3 = '' OR user_id = $3)`, roomID, now, userID)
	if err != nil {
		return 0, mapPgError("expire pending", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *ParticipantRepository) Delete(ctx context.Context, roomID, userID string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM room_participants WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if err != nil {
		return mapPgError("delete participant", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var (
		p                    domain.Participant
		status, role, reason string
	)
	if err := row.Scan(&p.RoomID, &p.UserID, &p.DisplayName, &status, &role, &reason,
		&p.JoinedAt, &p.ApprovedAt, &p.ExpiresAt); err != nil {
		return nil, err
	}
	p.Status = domain.ParticipantStatus(status)
	p.Role = domain.Role(role)
	p.DenyReason = domain.DenyReason(reason)
	return &p, nil
}
