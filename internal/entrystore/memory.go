package entrystore

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memEntry pairs a value with its expiry instant (zero = never expires).
type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is the CACHE__BACKEND=memory option: an in-process,
// LRU-bounded map. Unlike the SQL backends it never persists across
// restarts — suitable for local development or tests, not production
// at-most-once guarantees across crashes.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, memEntry]
}

// NewMemoryStore builds a bounded in-memory store holding at most
// maxEntries keys (least-recently-used evicted first beyond that).
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	c, err := lru.New[string, memEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.cache.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.cache.Add(key, memEntry{value: value, expiresAt: expiresAt})
	return nil
}

func (m *MemoryStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(key)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prefix == "" {
		m.cache.Purge()
		return nil
	}
	for _, key := range m.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.cache.Remove(key)
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
