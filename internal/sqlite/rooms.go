package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
)

const roomColumns = `id, code, name, host_id, current_entry_id, last_singer_id, is_active, created_at, expires_at`

type RoomRepository struct {
	db *sql.DB
}

func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID, room.Code, room.Name, room.HostID,
		nullString(room.CurrentEntryID), nullString(room.LastSingerID),
		room.IsActive, toMillis(room.CreatedAt), toMillis(room.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return wrapErr("create room", err)
	}
	return nil
}

func (r *RoomRepository) Get(ctx context.Context, id string) (*domain.Room, error) {
	return getRoom(ctx, r.db, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
}

func (r *RoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	return getRoom(ctx, r.db, `SELECT `+roomColumns+` FROM rooms WHERE code = ?`, code)
}

func (r *RoomRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return wrapErr("deactivate room", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func getRoom(ctx context.Context, q querier, query string, arg any) (*domain.Room, error) {
	room, err := scanRoom(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, wrapErr("get room", err)
	}
	return room, nil
}

func scanRoom(row scanner) (*domain.Room, error) {
	var (
		rm                  domain.Room
		current, lastSinger sql.NullString
		createdAt, expires  int64
	)
	if err := row.Scan(&rm.ID, &rm.Code, &rm.Name, &rm.HostID, &current, &lastSinger,
		&rm.IsActive, &createdAt, &expires); err != nil {
		return nil, err
	}
	rm.CurrentEntryID = stringPtr(current)
	rm.LastSingerID = stringPtr(lastSinger)
	rm.CreatedAt = fromMillis(createdAt)
	rm.ExpiresAt = fromMillis(expires)
	return &rm, nil
}
