package entrystore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"blogwatch/internal/logger"
)

// PostgresStore backs the entry store with the cache_entries table defined
// in spec.md §6, sharing a connection pool that the vector store (component
// B) can also attach to — the two components are explicitly allowed to
// share one pool with no cross-component transaction.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgresPool opens a new relational pool on every call; sharing it
// is up to the caller. Sizing follows spec.md §5: at most 10 open
// connections, with up to 2 kept idle.
func OpenPostgresPool(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("entrystore: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("entrystore: ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresStore wraps an already-open pool (typically shared with the
// vector store) and ensures the cache_entries table exists.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value BYTEA NOT NULL,
		expires_at TIMESTAMPTZ NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("entrystore: initialize postgres schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt sql.NullTime
	row := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM cache_entries WHERE key = $1`, key)
	if err := row.Scan(&value, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("entrystore: get %q: %w", key, err)
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
		return nil, false, nil
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("entrystore: set %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("entrystore: delete %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context, prefix string) error {
	var err error
	if prefix == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key LIKE $1`, prefix+"%")
	}
	if err != nil {
		return fmt.Errorf("entrystore: clear prefix %q: %w", prefix, err)
	}
	return nil
}

// Sweep mirrors SQLiteStore.Sweep for the postgres backend.
func (s *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("entrystore: sweep: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Component("entrystore").Debug().Int64("reaped", n).Msg("swept expired cache entries")
	}
	return n, nil
}

// Close is a no-op when the pool is shared with the vector store; the
// owner of the pool (AppContext) closes it once at shutdown.
func (s *PostgresStore) Close() error { return nil }
