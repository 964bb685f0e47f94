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

const queueColumns = `id, room_id, submitter_id, singer_name, title, artist, video_id, duration_ms,
	status, seq, created_at, started_at, finished_at`

type QueueRepository struct {
	db *pgxpool.Pool
}

var _ repository.QueueRepository = (*QueueRepository)(nil)

func NewQueueRepository(db *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	if item.Status == "" {
		item.Status = domain.QueuePending
	}
	query := `
		INSERT INTO queue_items (id, room_id, submitter_id, singer_name, title, artist, video_id,
		                         duration_ms, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq`
	err := r.db.QueryRow(ctx, query,
		item.ID, item.RoomID, item.SubmitterID, item.SingerName,
		item.Song.Title, item.Song.Artist, item.Song.VideoID, item.Song.Duration.Milliseconds(),
		string(item.Status), item.CreatedAt,
	).Scan(&item.Seq)
	return mapPgError("enqueue", err)
}

func (r *QueueRepository) Get(ctx context.Context, roomID, id string) (*domain.QueueItem, error) {
	return getItem(ctx, r.db, roomID, id)
}

func (r *QueueRepository) List(ctx context.Context, roomID string, statuses ...domain.QueueStatus) ([]domain.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_items
		WHERE room_id=$1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY created_at ASC, seq ASC`
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	return queryItems(ctx, r.db, query, roomID, names)
}

// History возвращает завершённые элементы очереди, курсор по (created_at, seq) DESC.
func (r *QueueRepository) History(ctx context.Context, roomID string, limit int, cursorStr string) ([]domain.QueueItem, string, error) {
	cur, err := repository.DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}
	limit = repository.ClampLimit(limit, 20, 100)

	query := `
		SELECT ` + queueColumns + `
		FROM queue_items
		WHERE room_id = $1
		  AND status IN ('completed', 'skipped', 'error')
		  AND ($2::timestamptz IS NULL
		       OR created_at < $2
		       OR (created_at = $2 AND seq < $3))
		ORDER BY created_at DESC, seq DESC
		LIMIT $4`

	var createdAt any
	var seq any
	if cur != nil {
		createdAt = cur.CreatedAt
		seq = cur.Seq
	}

	items, err := queryItems(ctx, r.db, query, roomID, createdAt, seq, limit)
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

// Step: вся транзакция под блокировкой строки комнаты. Параллельные шаги по той же комнате ждут.
func (r *QueueRepository) Step(ctx context.Context, s repository.Step) (*repository.StepResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, mapPgError("begin step", err)
	}
	defer tx.Rollback(ctx)

	res, err := repository.RunStep(ctx, stepTx{tx: tx}, s)
	if err != nil {
		return nil, mapPgError("step", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError("commit step", err)
	}
	return res, nil
}

type stepTx struct {
	tx pgx.Tx
}

func (s stepTx) LockRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	return getRoom(ctx, s.tx, `SELECT `+roomColumns+` FROM rooms WHERE id=$1 FOR UPDATE`, roomID)
}

func (s stepTx) GetItem(ctx context.Context, roomID, id string) (*domain.QueueItem, error) {
	return getItem(ctx, s.tx, roomID, id)
}

func (s stepTx) FinishItem(ctx context.Context, id string, status domain.QueueStatus, at time.Time) error {
	_, err := s.tx.Exec(ctx, `UPDATE queue_items SET status=$1, finished_at=$2 WHERE id=$3`,
		string(status), at, id)
	return err
}

func (s stepTx) StartItem(ctx context.Context, id string, at time.Time) error {
	_, err := s.tx.Exec(ctx,
		`UPDATE queue_items SET status='playing', started_at=$1 WHERE id=$2 AND status='pending'`, at, id)
	return err
}

func (s stepTx) NextPending(ctx context.Context, roomID string) (*domain.QueueItem, error) {
	item, err := scanItem(s.tx.QueryRow(ctx, `
		SELECT `+queueColumns+` FROM queue_items
		WHERE room_id=$1 AND status='pending'
		ORDER BY created_at ASC, seq ASC
		LIMIT 1`, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

func (s stepTx) SetCurrent(ctx context.Context, roomID string, entryID, lastSingerID *string) error {
	_, err := s.tx.Exec(ctx, `UPDATE rooms SET current_entry_id=$1, last_singer_id=$2 WHERE id=$3`,
		entryID, lastSingerID, roomID)
	return err
}

func getItem(ctx context.Context, q querier, roomID, id string) (*domain.QueueItem, error) {
	item, err := scanItem(q.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM queue_items WHERE id=$1 AND room_id=$2`, id, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQueueItemNotFound
		}
		return nil, mapPgError("get queue item", err)
	}
	return item, nil
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]domain.QueueItem, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError("list queue", err)
	}
	defer rows.Close()

	var out []domain.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, mapPgError("scan queue item", err)
		}
		out = append(out, *item)
	}
	return out, mapPgError("list queue", rows.Err())
}

func scanItem(row pgx.Row) (*domain.QueueItem, error) {
	var (
		it         domain.QueueItem
		status     string
		durationMs int64
	)
	if err := row.Scan(&it.ID, &it.RoomID, &it.SubmitterID, &it.SingerName,
		&it.Song.Title, &it.Song.Artist, &it.Song.VideoID, &durationMs,
		&status, &it.Seq, &it.CreatedAt, &it.StartedAt, &it.FinishedAt); err != nil {
		return nil, err
	}
	it.Status = domain.QueueStatus(status)
	it.Song.Duration = time.Duration(durationMs) * time.Millisecond
	return &it, nil
}
