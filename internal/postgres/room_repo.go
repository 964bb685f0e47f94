package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const roomColumns = `id, code, name, host_id, current_entry_id, last_singer_id, is_active, created_at, expires_at`

type RoomRepository struct {
	db *pgxpool.Pool
}

var _ repository.RoomRepository = (*RoomRepository)(nil)

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	query := `
		INSERT INTO rooms (` + roomColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		room.ID, room.Code, room.Name, room.HostID, room.CurrentEntryID, room.LastSingerID,
		room.IsActive, room.CreatedAt, room.ExpiresAt)
	return mapPgError("create room", err)
}

func (r *RoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	return getRoom(ctx, r.db, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, id)
}

func (r *RoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	return getRoom(ctx, r.db, `SELECT `+roomColumns+` FROM rooms WHERE code=$1`, code)
}

func (r *RoomRepository) Deactivate(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE rooms SET is_active=false WHERE id=$1`, id)
	if err != nil {
		return mapPgError("deactivate room", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func getRoom(ctx context.Context, q querier, query string, arg any) (*domain.Room, error) {
	var rm domain.Room
	err := q.QueryRow(ctx, query, arg).Scan(
		&rm.ID, &rm.Code, &rm.Name, &rm.HostID, &rm.CurrentEntryID, &rm.LastSingerID,
		&rm.IsActive, &rm.CreatedAt, &rm.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, mapPgError("get room", err)
	}
	return &rm, nil
}
