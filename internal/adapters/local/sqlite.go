package local

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/okian/arena/pkg/metrics"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a Store backed by a single SQLite file in WAL mode.
type SQLite struct {
	db    *sql.DB
	clock clockwork.Clock
}

// SQLiteOption configures a SQLite store.
type SQLiteOption func(*SQLite)

// WithSQLiteClock sets the clock used for expiry.
func WithSQLiteClock(c clockwork.Clock) SQLiteOption {
	return func(s *SQLite) {
		if c != nil {
			s.clock = c
		}
	}
}

// OpenSQLite creates or opens the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open local state: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect local state: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply local schema: %w", err)
	}

	s := &SQLite{db: db, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value     string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordLocalOp("get", "miss")
		return "", false, nil
	}
	if err != nil {
		metrics.RecordLocalOp("get", "error")
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	if expiresAt > 0 && s.clock.Now().UnixMilli() >= expiresAt {
		metrics.RecordLocalOp("get", "expired")
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ? AND expires_at = ?`, key, expiresAt); err != nil {
			return "", false, fmt.Errorf("evict %s: %w", key, err)
		}
		return "", false, nil
	}
	metrics.RecordLocalOp("get", "hit")
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.clock.Now().Add(ttl).UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		metrics.RecordLocalOp("set", "error")
		return fmt.Errorf("write %s: %w", key, err)
	}
	metrics.RecordLocalOp("set", "ok")
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		metrics.RecordLocalOp("delete", "error")
		return fmt.Errorf("delete %s: %w", key, err)
	}
	metrics.RecordLocalOp("delete", "ok")
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
