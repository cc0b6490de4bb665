// Package sqlite persists saga instances, the dead letter queue, and the
// subscriber registry in a single SQLite database via the pure-Go
// modernc.org driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store owns the SQLite handle shared by the saga stores, the DLQ store,
// and the subscriber registry.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" opens a private in-memory database, used in tests.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if path == ":memory:" {
		// Each pool connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	s := New(db, opts...)
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle. The caller owns the *sql.DB lifecycle
// unless the Store came from Open, in which case Close releases it.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying handle for advanced usage.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS saga_instances (
			workflow        TEXT NOT NULL,
			correlation_id  TEXT NOT NULL,
			state           TEXT NOT NULL,
			version         INTEGER NOT NULL,
			data            TEXT NOT NULL,
			outbox          TEXT,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			completed_at    INTEGER,
			PRIMARY KEY (workflow, correlation_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_saga_instances_state
			ON saga_instances (workflow, state)`,
		`CREATE TABLE IF NOT EXISTS dlq_entries (
			id              TEXT PRIMARY KEY,
			message_id      TEXT NOT NULL,
			name            TEXT NOT NULL,
			consumer        TEXT NOT NULL,
			correlation_id  TEXT NOT NULL,
			payload         TEXT,
			error           TEXT NOT NULL DEFAULT '',
			attempts        INTEGER NOT NULL DEFAULT 0,
			failed_at       INTEGER NOT NULL,
			replayed_at     INTEGER,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dlq_entries_failed_at
			ON dlq_entries (failed_at)`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			id          TEXT PRIMARY KEY,
			email       TEXT NOT NULL UNIQUE,
			created_at  INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ── helpers ──────────────────────────────────────────────────────

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// isDuplicateKey checks if a SQLite error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
