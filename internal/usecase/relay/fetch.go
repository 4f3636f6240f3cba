package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"webrelay/internal/adapter/cache"
	"webrelay/internal/adapter/extract"
	"webrelay/internal/adapter/transport"
	"webrelay/internal/domain"
)

// Fetch retrieves one URL through the strategy selector, truncates the body
// to the token budget and caches the outcome. maxTokens <= 0 uses the
// configured default.
func (s *Service) Fetch(ctx context.Context, rawURL string, maxTokens int) (*domain.FetchResult, error) {
	started := s.now()

	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, domain.NewDomainError("Relay.Fetch", domain.ErrInvalidInput, err.Error())
	}
	if maxTokens <= 0 {
		maxTokens = s.fetchCfg.MaxTokens
	}

	key := cache.Fingerprint("fetch", target, strconv.Itoa(maxTokens))
	if payload, found := s.cacheGet(ctx, key); found {
		var result domain.FetchResult
		if err := json.Unmarshal(payload, &result); err == nil {
			result.ServedFromCache = true
			result.ElapsedMS = s.now().Sub(started).Milliseconds()
			return &result, nil
		}
		s.cacheDrop(ctx, key)
	}

	body, status, strategy, err := s.fetchRaw(ctx, target)
	if err != nil {
		return nil, domain.WrapOp("Relay.Fetch", err)
	}

	content := string(body)
	originalSize := len(content)
	content, truncated := s.truncator.Truncate(content, maxTokens)

	result := &domain.FetchResult{
		URL:          target,
		StatusCode:   status,
		Content:      content,
		ContentSize:  len(content),
		OriginalSize: originalSize,
		Truncated:    truncated,
		Strategy:     string(strategy),
		ElapsedMS:    s.now().Sub(started).Milliseconds(),
	}
	s.cachePut(ctx, key, target, result, s.cacheCfg.FetchTTL)
	s.logger.Info("relay: fetch served",
		"url", target, "status", status, "strategy", result.Strategy,
		"bytes", originalSize, "truncated", truncated)
	return result, nil
}

// Analyze fetches a URL and summarizes its structure without returning the
// content itself.
func (s *Service) Analyze(ctx context.Context, rawURL string) (*domain.PageAnalysis, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, domain.NewDomainError("Relay.Analyze", domain.ErrInvalidInput, err.Error())
	}

	key := cache.Fingerprint("analyze", target)
	if payload, found := s.cacheGet(ctx, key); found {
		var analysis domain.PageAnalysis
		if err := json.Unmarshal(payload, &analysis); err == nil {
			return &analysis, nil
		}
		s.cacheDrop(ctx, key)
	}

	body, _, _, err := s.fetchRaw(ctx, target)
	if err != nil {
		return nil, domain.WrapOp("Relay.Analyze", err)
	}

	analysis, err := extract.Analyze(body)
	if err != nil {
		return nil, domain.NewDomainError("Relay.Analyze", domain.ErrEngineFailure, err.Error())
	}

	s.cachePut(ctx, key, target, &analysis, s.cacheCfg.FetchTTL)
	return &analysis, nil
}

// Extract fetches a URL and returns its structured form: head metadata,
// classified links and readable text.
func (s *Service) Extract(ctx context.Context, rawURL string) (*domain.Document, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, domain.NewDomainError("Relay.Extract", domain.ErrInvalidInput, err.Error())
	}

	key := cache.Fingerprint("extract", target)
	if payload, found := s.cacheGet(ctx, key); found {
		var doc domain.Document
		if err := json.Unmarshal(payload, &doc); err == nil {
			return &doc, nil
		}
		s.cacheDrop(ctx, key)
	}

	body, _, _, err := s.fetchRaw(ctx, target)
	if err != nil {
		return nil, domain.WrapOp("Relay.Extract", err)
	}

	doc, err := extract.ParseDocument(body, target)
	if err != nil {
		return nil, domain.NewDomainError("Relay.Extract", domain.ErrEngineFailure, err.Error())
	}

	s.cachePut(ctx, key, target, &doc, s.cacheCfg.FetchTTL)
	return &doc, nil
}

// fetchRaw performs the transport round trip shared by Fetch, Analyze and
// Extract: request, status gate, size-capped body read.
func (s *Service) fetchRaw(ctx context.Context, target string) ([]byte, int, transport.Strategy, error) {
	if s.fetchCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchCfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, "", domain.NewDomainError("Relay.fetch", domain.ErrInvalidInput, err.Error())
	}

	resp, strategy, err := s.transport.Do(ctx, req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, resp.StatusCode, strategy, domain.NewDomainError("Relay.fetch", domain.ErrHTTPStatus,
			fmt.Sprintf("status %d from %s", resp.StatusCode, target))
	}

	limit := s.fetchCfg.MaxBodyBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, resp.StatusCode, strategy, fmt.Errorf("%w: read body from %s: %v",
			domain.ErrTransport, target, err)
	}
	return body, resp.StatusCode, strategy, nil
}

// normalizeURL fills in a missing scheme and rejects anything that is not
// plain http(s) with a host.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host")
	}
	return u.String(), nil
}
