package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"scrumboard/internal/models"
)

// Options tunes engine behaviour that is not part of the stored data.
type Options struct {
	WIPEnforcement models.WIPEnforcement
	MaxRetries     int
	RetryBackoff   time.Duration
	SprintColumns  []string
}

// Store wraps access to the SQLite database and implements the ordered
// work-item engine on top of it.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	opts   Options
	now    func() time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger, opts Options) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.WIPEnforcement == "" {
		opts.WIPEnforcement = models.WIPAdvisory
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	// _txlock=immediate takes the write lock at BEGIN, so every position
	// mutation on a scope is serialized against concurrent writers.
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON&_txlock=immediate", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{
		db:     conn,
		logger: logger,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sprints (
            id TEXT PRIMARY KEY,
            space_id TEXT NOT NULL,
            name TEXT NOT NULL,
            goal TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'PLANNING',
            start_date DATETIME,
            end_date DATETIME,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_sprints_space ON sprints(space_id);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sprints_one_active ON sprints(space_id) WHERE status = 'ACTIVE';`,
		`CREATE TABLE IF NOT EXISTS columns (
            id TEXT PRIMARY KEY,
            space_id TEXT NOT NULL,
            sprint_id TEXT,
            name TEXT NOT NULL,
            wip_limit INTEGER,
            position INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(sprint_id) REFERENCES sprints(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_columns_board ON columns(space_id, sprint_id, position);`,
		`CREATE TABLE IF NOT EXISTS work_items (
            id TEXT PRIMARY KEY,
            space_id TEXT NOT NULL,
            column_id TEXT,
            sequence_number INTEGER NOT NULL,
            position INTEGER NOT NULL DEFAULT 0,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            assignee_id TEXT,
            created_by_id TEXT NOT NULL,
            origin_item_id TEXT,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(column_id) REFERENCES columns(id) ON DELETE CASCADE
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_work_items_sequence ON work_items(space_id, sequence_number);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_backlog ON work_items(space_id, column_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_column ON work_items(column_id, position);`,
		`CREATE TABLE IF NOT EXISTS space_sequences (
            space_id TEXT PRIMARY KEY,
            last_value INTEGER NOT NULL
        );`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// withTx runs fn in a transaction. Busy or locked databases are retried up to
// MaxRetries times; fn must therefore re-read whatever state it depends on.
// Domain errors from fn are returned untouched.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		var domainErr *models.Error
		if errors.As(err, &domainErr) {
			return err
		}
		if !isTransient(err) || attempt >= s.opts.MaxRetries {
			return fmt.Errorf("%s: %w", op, err)
		}

		wait := s.opts.RetryBackoff * time.Duration(attempt+1)
		s.logger.Warn("retrying transaction", slog.String("op", op), slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isTransient(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrConstraint
}

func newID() string {
	return uuid.NewString()
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return models.Validation("%s id is required", kind)
	}
	return nil
}
