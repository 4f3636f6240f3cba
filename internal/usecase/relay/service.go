// Package relay orchestrates resilient web access: cache-first search across
// multiple engines with per-engine circuit breakers and pacing, and single
// URL retrieval through the transport strategy selector with token-budget
// truncation.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"webrelay/internal/adapter/transport"
	"webrelay/internal/domain"
	"webrelay/internal/infra/config"
)

// Transport is the outbound request surface the relay depends on. The
// transport.Selector satisfies it.
type Transport interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, transport.Strategy, error)
	RenewCircuit(ctx context.Context) error
	Stats() []domain.StrategyStats
}

// Truncator cuts fetched content to a token budget.
type Truncator interface {
	Truncate(content string, maxTokens int) (string, bool)
}

// Service is the relay's request orchestrator.
type Service struct {
	engines   []domain.SearchEngine
	breakers  *breakerSet
	cache     domain.CacheStore
	transport Transport
	truncator Truncator
	pacer     *rate.Limiter

	searchCfg config.SearchConfig
	fetchCfg  config.FetchConfig
	cacheCfg  config.CacheConfig

	logger *slog.Logger
	now    func() time.Time
}

func New(
	engines []domain.SearchEngine,
	cache domain.CacheStore,
	tp Transport,
	truncator Truncator,
	searchCfg config.SearchConfig,
	fetchCfg config.FetchConfig,
	cacheCfg config.CacheConfig,
	logger *slog.Logger,
) *Service {
	pacing := rate.Inf
	if searchCfg.PacingInterval > 0 {
		pacing = rate.Every(searchCfg.PacingInterval)
	}

	return &Service{
		engines:   engines,
		breakers:  newBreakerSet(searchCfg.Engines, logger),
		cache:     cache,
		transport: tp,
		truncator: truncator,
		pacer:     rate.NewLimiter(pacing, 1),
		searchCfg: searchCfg,
		fetchCfg:  fetchCfg,
		cacheCfg:  cacheCfg,
		logger:    logger,
		now:       time.Now,
	}
}

// RenewCircuit forces a fresh proxy circuit.
func (s *Service) RenewCircuit(ctx context.Context) error {
	return s.transport.RenewCircuit(ctx)
}

// Stats assembles a point-in-time view of cache, transport and engine health.
func (s *Service) Stats(ctx context.Context) (domain.RelayStats, error) {
	cacheStats, err := s.cache.Stats(ctx)
	if err != nil {
		s.logger.Warn("relay: cache stats unavailable", "error", err)
	}
	return domain.RelayStats{
		Cache:      cacheStats,
		Strategies: s.transport.Stats(),
		Engines:    s.breakers.stats(),
	}, nil
}

// cacheGet reads a cache entry, treating backend errors as misses.
func (s *Service) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	payload, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("relay: cache read failed", "key", key, "error", err)
		return nil, false
	}
	return payload, found
}

// cacheDrop removes an entry whose payload no longer decodes, so later
// requests miss cleanly instead of re-paying the failed decode until expiry.
func (s *Service) cacheDrop(ctx context.Context, key string) {
	s.logger.Warn("relay: dropping undecodable cache entry", "key", key)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("relay: cache delete failed", "key", key, "error", err)
	}
}

// cachePut stores v as JSON. Failures are logged, never surfaced; the cache
// must not be able to fail a request that already succeeded.
func (s *Service) cachePut(ctx context.Context, key, target string, v any, ttl time.Duration) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("relay: cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.cache.Put(ctx, key, target, payload, ttl); err != nil {
		s.logger.Warn("relay: cache write failed", "key", key, "error", err)
	}
}
