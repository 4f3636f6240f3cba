package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"webrelay/internal/domain"
)

// SQLiteStore implements domain.CacheStore backed by a single SQLite file.
//
// last_accessed and expires_at are stored as unix nanoseconds so recency
// ordering and expiry comparisons stay exact; created_at is RFC 3339 text
// for inspection with the sqlite3 shell.
type SQLiteStore struct {
	db         *sql.DB
	logger     *slog.Logger
	maxEntries int

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	now func() time.Time
}

var _ domain.CacheStore = (*SQLiteStore)(nil)

// NewSQLite opens (or creates) the cache database at dbPath, runs migrations,
// and returns a ready store.
func NewSQLite(dbPath string, maxEntries int, logger *slog.Logger) (*SQLiteStore, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("%w: max entries must be > 0", domain.ErrInvalidInput)
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("%w: create cache dir: %v", domain.ErrCacheStorage, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrCacheStorage, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	// Pragmas for performance.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrCacheStorage, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrCacheStorage, err)
	}

	return &SQLiteStore{
		db:         db,
		logger:     logger,
		maxEntries: maxEntries,
		now:        time.Now,
	}, nil
}

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS cache (
			key           TEXT PRIMARY KEY,
			target        TEXT NOT NULL,
			payload       BLOB NOT NULL,
			created_at    TEXT NOT NULL,
			expires_at    INTEGER NOT NULL,
			hits          INTEGER NOT NULL DEFAULT 0,
			last_accessed INTEGER NOT NULL,
			size_bytes    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_cache_expiry ON cache(expires_at);
		CREATE INDEX IF NOT EXISTS idx_cache_lru ON cache(last_accessed);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get implements domain.CacheStore. Expired entries are deleted on access
// and counted as misses; live hits bump the entry's recency.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	nowNS := s.now().UnixNano()

	var payload []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get: %v", domain.ErrCacheStorage, err)
	}

	if expiresAt <= nowNS {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
			s.logger.Warn("cache: purge expired entry failed", "key", key, "error", err)
		}
		s.misses.Add(1)
		return nil, false, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE cache SET hits = hits + 1, last_accessed = ? WHERE key = ?`, nowNS, key,
	); err != nil {
		s.logger.Warn("cache: recency update failed", "key", key, "error", err)
	}
	s.hits.Add(1)
	return payload, true, nil
}

// Put implements domain.CacheStore. Inserting into a full store first evicts
// entries in least-recently-read order; overwriting an existing key never
// evicts.
func (s *SQLiteStore) Put(ctx context.Context, key, target string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be > 0", domain.ErrInvalidInput)
	}

	now := s.now()
	nowNS := now.UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrCacheStorage, err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM cache WHERE key = ?)`, key,
	).Scan(&exists); err != nil {
		return fmt.Errorf("%w: exists: %v", domain.ErrCacheStorage, err)
	}

	if !exists {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache`).Scan(&count); err != nil {
			return fmt.Errorf("%w: count: %v", domain.ErrCacheStorage, err)
		}
		if overflow := count - s.maxEntries + 1; overflow > 0 {
			res, err := tx.ExecContext(ctx, `
				DELETE FROM cache WHERE key IN (
					SELECT key FROM cache ORDER BY last_accessed ASC LIMIT ?
				)`, overflow)
			if err != nil {
				return fmt.Errorf("%w: evict: %v", domain.ErrCacheStorage, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				s.evictions.Add(n)
			}
		}
	}

	const upsert = `
		INSERT INTO cache (key, target, payload, created_at, expires_at, hits, last_accessed, size_bytes)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			target        = excluded.target,
			payload       = excluded.payload,
			created_at    = excluded.created_at,
			expires_at    = excluded.expires_at,
			hits          = 0,
			last_accessed = excluded.last_accessed,
			size_bytes    = excluded.size_bytes
	`
	_, err = tx.ExecContext(ctx, upsert,
		key,
		target,
		payload,
		now.UTC().Format(time.RFC3339),
		now.Add(ttl).UnixNano(),
		nowNS,
		len(payload),
	)
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", domain.ErrCacheStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrCacheStorage, err)
	}
	return nil
}

// Delete implements domain.CacheStore.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: delete: %v", domain.ErrCacheStorage, err)
	}
	return nil
}

// Sweep implements domain.CacheStore.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: sweep: %v", domain.ErrCacheStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: sweep: %v", domain.ErrCacheStorage, err)
	}
	return n, nil
}

// Stats implements domain.CacheStore.
func (s *SQLiteStore) Stats(ctx context.Context) (domain.CacheStats, error) {
	var count int
	var totalBytes int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM cache`,
	).Scan(&count, &totalBytes)
	if err != nil {
		return domain.CacheStats{}, fmt.Errorf("%w: stats: %v", domain.ErrCacheStorage, err)
	}

	hits, misses := s.hits.Load(), s.misses.Load()
	return domain.CacheStats{
		Backend:    "sqlite",
		Size:       count,
		MaxSize:    s.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate(hits, misses),
		Evictions:  s.evictions.Load(),
		TotalBytes: totalBytes,
	}, nil
}

// Clear implements domain.CacheStore. Counters survive; Clear empties
// storage only.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache`); err != nil {
		return fmt.Errorf("%w: clear: %v", domain.ErrCacheStorage, err)
	}
	return nil
}

func hitRate(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
