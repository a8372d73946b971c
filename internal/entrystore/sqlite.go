package entrystore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"blogwatch/internal/logger"
)

// SQLiteStore is a file-backed entry store, used for CACHE__BACKEND=filesystem.
// It follows the teacher's single-file-per-dataDir convention.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a cache_entries table inside
// dataDir/cache.db.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("entrystore: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "cache.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("entrystore: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("entrystore: initialize schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt sql.NullTime
	row := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM cache_entries WHERE key = ?`, key)
	if err := row.Scan(&value, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("entrystore: get %q: %w", key, err)
	}

	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		// Lazy eviction: the entry is past expiry, remove it and report a miss.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("entrystore: set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("entrystore: delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, prefix string) error {
	var err error
	if prefix == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key LIKE ?`, prefix+"%")
	}
	if err != nil {
		return fmt.Errorf("entrystore: clear prefix %q: %w", prefix, err)
	}
	return nil
}

// Sweep deletes all entries past their expiry, the optional background
// sweep spec.md §4.A allows in lieu of pure lazy eviction. Scheduled
// periodically by internal/orchestrator via robfig/cron.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("entrystore: sweep: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Component("entrystore").Debug().Int64("reaped", n).Msg("swept expired cache entries")
	}
	return n, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
