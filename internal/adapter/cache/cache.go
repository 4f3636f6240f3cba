// Package cache provides the response cache backing search and fetch
// operations. The durable backend is SQLite; when it cannot be opened the
// relay degrades to a bounded in-memory store with identical semantics so
// callers never need to care which backend is live.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"strings"

	"webrelay/internal/domain"
)

// Fingerprint returns the canonical cache key for an operation on a target.
// Extra parts distinguish parameter variants of the same target, e.g. the
// result limit of a search. The same inputs always yield the same key.
func Fingerprint(op, target string, extra ...string) string {
	parts := append([]string{op, target}, extra...)
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// New opens the durable store at path. If the database cannot be opened or
// migrated, it logs a warning and returns an in-memory store instead;
// a broken cache file must not keep the relay from starting.
func New(path string, maxEntries int, logger *slog.Logger) domain.CacheStore {
	store, err := NewSQLite(path, maxEntries, logger)
	if err != nil {
		logger.Warn("cache: durable store unavailable, using in-memory fallback",
			"path", path, "error", err)
		return NewMemory(maxEntries)
	}
	return store
}
