package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/postgres/migrations"
	"github.com/cwrk-planet/karaoke-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ApplicationName   string // пусто: не устанавливать
}

// NewPool создаёт *pgxpool.Pool с применением настроек и проверкой Ping().
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.ApplicationName != "" {
		if pc.ConnConfig.RuntimeParams == nil {
			pc.ConnConfig.RuntimeParams = map[string]string{}
		}
		pc.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}

	if err := ping(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func ping(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return pool.Ping(ctx)
}

// Store bundles the Postgres repositories over one pool.
type Store struct {
	Pool *pgxpool.Pool

	rooms        *RoomRepository
	queue        *QueueRepository
	participants *ParticipantRepository
}

var _ repository.Store = (*Store)(nil)

// Open connects, applies migrations and returns the store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool), nil
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Pool:         pool,
		rooms:        NewRoomRepository(pool),
		queue:        NewQueueRepository(pool),
		participants: NewParticipantRepository(pool),
	}
}

func (s *Store) Rooms() repository.RoomRepository               { return s.rooms }
func (s *Store) Queue() repository.QueueRepository              { return s.queue }
func (s *Store) Participants() repository.ParticipantRepository { return s.participants }

func (s *Store) Ping(ctx context.Context) error {
	return mapPgError("ping", ping(ctx, s.Pool))
}

func (s *Store) Close() error {
	s.Pool.Close()
	return nil
}

// migrationLockID: ключ advisory lock, чтобы параллельные инстансы не гоняли миграции одновременно.
const migrationLockID = 7_305_119

// Migrate applies embedded migrations once per file.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migrations: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("migration lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		var applied bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, upSection(string(content))); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return tx.Commit(ctx)
}

func upSection(content string) string {
	const upMarker, downMarker = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, upMarker)
	if start == -1 {
		return content
	}
	rest := content[start+len(upMarker):]
	if end := strings.Index(rest, downMarker); end != -1 {
		return rest[:end]
	}
	return rest
}

/*
абстрактный слой над *pgxpool.Pool / pgx.Tx
чтобы запросы можно было делать атомарно а не по одному
*/
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// mapPgError оставляет доменные ошибки как есть, 23505 превращает в ErrAlreadyExists,
// всё остальное помечает как ErrStoreUnavailable.
func mapPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsNotFound(err) || errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, repository.ErrAlreadyExists) || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 - unique violation
		if pgErr.Code == "23505" {
			return repository.ErrAlreadyExists
		}
	}
	return fmt.Errorf("postgres %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
