package relay

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"webrelay/internal/adapter/cache"
	"webrelay/internal/domain"
)

// Search consults engines in configured order until one returns usable
// results. Engines with open circuits are skipped, consulted engines are
// paced, and the winning response is cached. Every engine failing is a
// normal outcome: the response carries Success false and the full attempt
// trail, not an error.
func (s *Service) Search(ctx context.Context, query string, maxResults int) (*domain.SearchResponse, error) {
	started := s.now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewDomainError("Relay.Search", domain.ErrInvalidInput, "empty query")
	}
	if maxResults <= 0 || maxResults > s.searchCfg.MaxResults {
		maxResults = s.searchCfg.MaxResults
	}

	key := cache.Fingerprint("search", strings.ToLower(query), strconv.Itoa(maxResults))
	if payload, found := s.cacheGet(ctx, key); found {
		var resp domain.SearchResponse
		if err := json.Unmarshal(payload, &resp); err == nil {
			resp.ServedFromCache = true
			resp.Attempts = nil
			resp.ExecutionMS = s.now().Sub(started).Milliseconds()
			s.logger.Debug("relay: search served from cache", "query", query)
			return &resp, nil
		}
		s.cacheDrop(ctx, key)
	}

	if s.searchCfg.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.searchCfg.OverallTimeout)
		defer cancel()
	}

	var attempts []domain.EngineAttempt
	var tried []string

	for _, eng := range s.engines {
		if ctx.Err() != nil {
			break
		}
		name := eng.Name()
		tried = append(tried, name)

		if s.breakers.open(name) {
			attempts = append(attempts, domain.EngineAttempt{
				Engine: name, Skipped: true, Reason: domain.ReasonCircuitOpen,
			})
			s.logger.Debug("relay: engine skipped", "engine", name, "reason", domain.ReasonCircuitOpen)
			continue
		}

		if err := s.pacer.Wait(ctx); err != nil {
			break
		}

		done, err := s.breakers.allow(name)
		if err != nil {
			attempts = append(attempts, domain.EngineAttempt{
				Engine: name, Skipped: true, Reason: domain.ReasonCircuitOpen,
			})
			continue
		}

		attemptStart := s.now()
		results, strategy, err := eng.Search(ctx, query, maxResults)
		elapsed := s.now().Sub(attemptStart).Milliseconds()
		if err != nil {
			done(false)
			attempts = append(attempts, domain.EngineAttempt{
				Engine: name, Success: false, Error: err.Error(), ElapsedMS: elapsed,
			})
			s.logger.Warn("relay: engine failed", "engine", name, "error", err, "elapsed_ms", elapsed)
			continue
		}

		if !usableResults(results) {
			// The backend answered; an empty result set must not trip its
			// circuit.
			done(true)
			attempts = append(attempts, domain.EngineAttempt{
				Engine: name, Success: false, Reason: domain.ReasonNoResults, ElapsedMS: elapsed,
			})
			s.logger.Debug("relay: engine returned nothing usable", "engine", name, "query", query)
			continue
		}

		done(true)
		attempts = append(attempts, domain.EngineAttempt{Engine: name, Success: true, ElapsedMS: elapsed})

		resp := &domain.SearchResponse{
			Success:     true,
			Engine:      name,
			Strategy:    strategy,
			Query:       query,
			Results:     results,
			Total:       len(results),
			Attempts:    attempts,
			ExecutionMS: s.now().Sub(started).Milliseconds(),
		}
		s.cachePut(ctx, key, query, resp, s.cacheCfg.SearchTTL)
		s.logger.Info("relay: search served",
			"engine", name, "query", query, "results", len(results), "elapsed_ms", resp.ExecutionMS)
		return resp, nil
	}

	s.logger.Warn("relay: all engines exhausted", "query", query, "tried", tried)
	return &domain.SearchResponse{
		Success:      false,
		Query:        query,
		Results:      []domain.SearchResult{},
		Attempts:     attempts,
		EnginesTried: tried,
		ExecutionMS:  s.now().Sub(started).Milliseconds(),
	}, nil
}

// usableResults requires a non-empty set whose leading entries all carry a
// title and URL. A backend that answers with junk rows is treated the same
// as one that found nothing.
func usableResults(results []domain.SearchResult) bool {
	if len(results) == 0 {
		return false
	}
	head := results
	if len(head) > 3 {
		head = head[:3]
	}
	for _, r := range head {
		if r.Title == "" || r.URL == "" {
			return false
		}
	}
	return true
}
