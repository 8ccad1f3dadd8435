// Package sqlite persists quota ledgers in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
)

const schema = `
CREATE TABLE IF NOT EXISTS quota_usage (
	user_id      TEXT    NOT NULL,
	plan         TEXT    NOT NULL,
	window_start INTEGER NOT NULL,
	window_end   INTEGER NOT NULL,
	used         INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, plan, window_start)
);

CREATE TABLE IF NOT EXISTS quota_opened (
	user_id   TEXT    NOT NULL,
	plan      TEXT    NOT NULL,
	opened_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, plan)
);
`

// Store is a SQLite-backed ledger store.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer: counters are updated with read-modify-write statements.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Reserve increments the bucket if it is below limit (limit <= 0 means unlimited).
func (s *Store) Reserve(ctx context.Context, b domquota.Bucket, limit int64) (int64, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO quota_usage (user_id, plan, window_start, window_end, used) VALUES (?, ?, ?, ?, 0)`,
		b.UserID, b.Plan, b.Start.Unix(), b.End.Unix(),
	); err != nil {
		return 0, false, fmt.Errorf("insert bucket: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE quota_usage SET used = used + 1
		 WHERE user_id = ? AND plan = ? AND window_start = ? AND (? <= 0 OR used < ?)`,
		b.UserID, b.Plan, b.Start.Unix(), limit, limit,
	)
	if err != nil {
		return 0, false, fmt.Errorf("reserve: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("reserve rows: %w", err)
	}

	var used int64
	if err := tx.GetContext(ctx, &used,
		`SELECT used FROM quota_usage WHERE user_id = ? AND plan = ? AND window_start = ?`,
		b.UserID, b.Plan, b.Start.Unix(),
	); err != nil {
		return 0, false, fmt.Errorf("read bucket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}
	return used, affected == 1, nil
}

// Release returns one unit to the bucket.
func (s *Store) Release(ctx context.Context, b domquota.Bucket) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE quota_usage SET used = used - 1
		 WHERE user_id = ? AND plan = ? AND window_start = ? AND used > 0`,
		b.UserID, b.Plan, b.Start.Unix(),
	)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

// Used returns the bucket's counter, 0 if it was never written.
func (s *Store) Used(ctx context.Context, b domquota.Bucket) (int64, error) {
	var used int64
	err := s.db.GetContext(ctx, &used,
		`SELECT used FROM quota_usage WHERE user_id = ? AND plan = ? AND window_start = ?`,
		b.UserID, b.Plan, b.Start.Unix(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read bucket: %w", err)
	}
	return used, nil
}

// Open records now as the first admission unless one is recorded.
func (s *Store) Open(ctx context.Context, userID, plan string, now time.Time) (time.Time, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO quota_opened (user_id, plan, opened_at) VALUES (?, ?, ?)`,
		userID, plan, now.Unix(),
	); err != nil {
		return time.Time{}, fmt.Errorf("open window: %w", err)
	}
	t, _, err := s.OpenedAt(ctx, userID, plan)
	return t, err
}

// OpenedAt returns the recorded first admission, if any.
func (s *Store) OpenedAt(ctx context.Context, userID, plan string) (time.Time, bool, error) {
	var sec int64
	err := s.db.GetContext(ctx, &sec,
		`SELECT opened_at FROM quota_opened WHERE user_id = ? AND plan = ?`,
		userID, plan,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read window: %w", err)
	}
	return time.Unix(sec, 0).UTC(), true, nil
}
