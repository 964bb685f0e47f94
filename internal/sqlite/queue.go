package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
)

const queueColumns = `id, room_id, submitter_id, singer_name, title, artist, video_id, duration_ms,
	status, seq, created_at, started_at, finished_at`

type QueueRepository struct {
	db *sql.DB
}

func (r *QueueRepository) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	if item.Status == "" {
		item.Status = domain.QueuePending
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO queue_items (id, room_id, submitter_id, singer_name, title, artist, video_id,
		                         duration_ms, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.RoomID, item.SubmitterID, item.SingerName,
		item.Song.Title, item.Song.Artist, item.Song.VideoID, item.Song.Duration.Milliseconds(),
		string(item.Status), toMillis(item.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrAlreadyExists
		}
		return wrapErr("enqueue", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return wrapErr("enqueue seq", err)
	}
	item.Seq = seq
	return nil
}

func (r *QueueRepository) Get(ctx context.Context, roomID, id string) (*domain.QueueItem, error) {
	return getItem(ctx, r.db, roomID, id)
}

func (r *QueueRepository) List(ctx context.Context, roomID string, statuses ...domain.QueueStatus) ([]domain.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_items WHERE room_id = ?`
	args := []any{roomID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY created_at ASC, seq ASC`
	return queryItems(ctx, r.db, query, args...)
}

func (r *QueueRepository) History(ctx context.Context, roomID string, limit int, cursorStr string) ([]domain.QueueItem, string, error) {
	cur, err := repository.DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}
	limit = repository.ClampLimit(limit, 20, 100)

	query := `SELECT ` + queueColumns + ` FROM queue_items
		WHERE room_id = ? AND status IN ('completed', 'skipped', 'error')`
	args := []any{roomID}
	if cur != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND seq < ?))`
		at := toMillis(cur.CreatedAt)
		args = append(args, at, at, cur.Seq)
	}
	query += ` ORDER BY created_at DESC, seq DESC LIMIT ?`
	args = append(args, limit)

	items, err := queryItems(ctx, r.db, query, args...)
	if err != nil {
		return nil, "", err
	}
	var next string
	if len(items) == limit {
		last := items[len(items)-1]
		next, _ = repository.EncodeCursor(repository.Cursor{CreatedAt: last.CreatedAt, Seq: last.Seq})
	}
	return items, next, nil
}

func (r *QueueRepository) Step(ctx context.Context, s repository.Step) (*repository.StepResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("begin step", err)
	}
	defer tx.Rollback()

	res, err := repository.RunStep(ctx, stepTx{tx: tx}, s)
	if err != nil {
		return nil, wrapErr("step", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapErr("commit step", err)
	}
	return res, nil
}

// stepTx implements repository.StepTx over one immediate transaction; the
// write lock taken at BEGIN already excludes other steps.
type stepTx struct {
	tx *sql.Tx
}

func (s stepTx) LockRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	return getRoom(ctx, s.tx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, roomID)
}

func (s stepTx) GetItem(ctx context.Context, roomID, id string) (*domain.QueueItem, error) {
	return getItem(ctx, s.tx, roomID, id)
}

func (s stepTx) FinishItem(ctx context.Context, id string, status domain.QueueStatus, at time.Time) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, finished_at = ? WHERE id = ?`,
		string(status), toMillis(at), id)
	return err
}

func (s stepTx) StartItem(ctx context.Context, id string, at time.Time) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE queue_items SET status = 'playing', started_at = ? WHERE id = ? AND status = 'pending'`,
		toMillis(at), id)
	return err
}

func (s stepTx) NextPending(ctx context.Context, roomID string) (*domain.QueueItem, error) {
	item, err := scanItem(s.tx.QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM queue_items
		WHERE room_id = ? AND status = 'pending'
		ORDER BY created_at ASC, seq ASC
		LIMIT 1`, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

func (s stepTx) SetCurrent(ctx context.Context, roomID string, entryID, lastSingerID *string) error {
	_, err := s.tx.ExecContext(ctx,
		`UPDATE rooms SET current_entry_id = ?, last_singer_id = ? WHERE id = ?`,
		nullString(entryID), nullString(lastSingerID), roomID)
	return err
}

func getItem(ctx context.Context, q querier, roomID, id string) (*domain.QueueItem, error) {
	item, err := scanItem(q.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM queue_items WHERE id = ? AND room_id = ?`, id, roomID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrQueueItemNotFound
		}
		return nil, wrapErr("get queue item", err)
	}
	return item, nil
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]domain.QueueItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list queue", err)
	}
	defer rows.Close()

	var out []domain.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, wrapErr("scan queue item", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list queue", err)
	}
	return out, nil
}

func scanItem(row scanner) (*domain.QueueItem, error) {
	var (
		it                  domain.QueueItem
		status              string
		durationMs, created int64
		started, finished   sql.NullInt64
	)
	if err := row.Scan(&it.ID, &it.RoomID, &it.SubmitterID, &it.SingerName,
		&it.Song.Title, &it.Song.Artist, &it.Song.VideoID, &durationMs,
		&status, &it.Seq, &created, &started, &finished); err != nil {
		return nil, err
	}
	it.Status = domain.QueueStatus(status)
	if !it.Status.Valid() {
		return nil, fmt.Errorf("unknown queue status %q", status)
	}
	it.Song.Duration = time.Duration(durationMs) * time.Millisecond
	it.CreatedAt = fromMillis(created)
	it.StartedAt = timePtr(started)
	it.FinishedAt = timePtr(finished)
	return &it, nil
}
