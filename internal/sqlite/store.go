// Package sqlite provides a SQLite-backed durable store for single-node
// deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
	"github.com/cwrk-planet/karaoke-service/internal/sqlite/migrations"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists rooms, queue items and participants in one SQLite file.
// It keeps a single connection: SQLite has one writer anyway, and
// _txlock=immediate takes the write lock at BEGIN so steps serialize.
type Store struct {
	db *sql.DB

	rooms        *RoomRepository
	queue        *QueueRepository
	participants *ParticipantRepository
}

var _ repository.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:           db,
		rooms:        &RoomRepository{db: db},
		queue:        &QueueRepository{db: db},
		participants: &ParticipantRepository{db: db},
	}, nil
}

func (s *Store) Rooms() repository.RoomRepository               { return s.rooms }
func (s *Store) Queue() repository.QueueRepository              { return s.queue }
func (s *Store) Participants() repository.ParticipantRepository { return s.participants }

func (s *Store) Ping(ctx context.Context) error {
	return wrapErr("ping", s.db.PingContext(ctx))
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// wrapErr marks driver failures as retryable infrastructure errors. Domain
// errors pass through unchanged.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsNotFound(err) || errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, repository.ErrAlreadyExists) || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("sqlite %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
