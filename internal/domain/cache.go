package domain

import (
	"context"
	"time"
)

// CacheStats is a point-in-time snapshot of cache effectiveness counters.
type CacheStats struct {
	Backend    string  `json:"backend"`
	Size       int     `json:"size"`
	MaxSize    int     `json:"max_size"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
	Evictions  int64   `json:"evictions"`
	TotalBytes int64   `json:"total_bytes"`
}

// CacheStore is the persistence contract for response caching. A Get error
// means the backend misbehaved; callers treat it as a miss and carry on,
// since caching must never fail the request it serves.
type CacheStore interface {
	// Get returns the payload for key, or found=false on a miss. Expired
	// entries are purged on access and reported as misses.
	Get(ctx context.Context, key string) (payload []byte, found bool, err error)
	// Put stores payload under key with the given lifetime, evicting the
	// least recently read entry if the store is full.
	Put(ctx context.Context, key, target string, payload []byte, ttl time.Duration) error
	// Delete removes one entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Sweep removes all expired entries and returns the number removed.
	Sweep(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (CacheStats, error)
	Clear(ctx context.Context) error
	Close() error
}
