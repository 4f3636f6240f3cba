package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"webrelay/internal/domain"
)

type memEntry struct {
	target    string
	payload   []byte
	expiresAt time.Time
	readSeq   uint64
	hits      int64
}

// MemoryStore is the bounded in-memory fallback used when the durable store
// cannot be opened. It mirrors SQLiteStore semantics: TTL expiry on read,
// recency bump on hit, least-recently-read eviction when full.
//
// Recency is a monotonic sequence rather than wall time so eviction order is
// exact even for back-to-back accesses.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memEntry
	maxEntries int
	seq        uint64

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	now func() time.Time
}

var _ domain.CacheStore = (*MemoryStore)(nil)

// NewMemory returns an empty in-memory store holding at most maxEntries.
func NewMemory(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &MemoryStore{
		entries:    make(map[string]*memEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get implements domain.CacheStore.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.misses.Add(1)
		return nil, false, nil
	}
	if !e.expiresAt.After(m.now()) {
		delete(m.entries, key)
		m.misses.Add(1)
		return nil, false, nil
	}

	m.seq++
	e.readSeq = m.seq
	e.hits++
	m.hits.Add(1)
	return e.payload, true, nil
}

// Put implements domain.CacheStore.
func (m *MemoryStore) Put(ctx context.Context, key, target string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be > 0", domain.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists {
		for len(m.entries) >= m.maxEntries {
			m.evictOldest()
		}
	}

	m.seq++
	m.entries[key] = &memEntry{
		target:    target,
		payload:   payload,
		expiresAt: m.now().Add(ttl),
		readSeq:   m.seq,
	}
	return nil
}

// Delete implements domain.CacheStore.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// evictOldest removes the entry with the lowest read sequence.
// Caller must hold mu.
func (m *MemoryStore) evictOldest() {
	var oldestKey string
	var oldestSeq uint64
	first := true
	for k, e := range m.entries {
		if first || e.readSeq < oldestSeq {
			oldestKey, oldestSeq = k, e.readSeq
			first = false
		}
	}
	if !first {
		delete(m.entries, oldestKey)
		m.evictions.Add(1)
	}
}

// Sweep implements domain.CacheStore.
func (m *MemoryStore) Sweep(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var removed int64
	for k, e := range m.entries {
		if !e.expiresAt.After(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Stats implements domain.CacheStore.
func (m *MemoryStore) Stats(ctx context.Context) (domain.CacheStats, error) {
	m.mu.Lock()
	size := len(m.entries)
	var totalBytes int64
	for _, e := range m.entries {
		totalBytes += int64(len(e.payload))
	}
	m.mu.Unlock()

	hits, misses := m.hits.Load(), m.misses.Load()
	return domain.CacheStats{
		Backend:    "memory",
		Size:       size,
		MaxSize:    m.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate(hits, misses),
		Evictions:  m.evictions.Load(),
		TotalBytes: totalBytes,
	}, nil
}

// Clear implements domain.CacheStore.
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memEntry)
	return nil
}

// Close implements domain.CacheStore.
func (m *MemoryStore) Close() error { return nil }
