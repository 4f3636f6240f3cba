package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"webrelay/internal/domain"
	"webrelay/internal/infra/config"
)

// Searx queries SearXNG instances over their JSON API. Instances are
// rotated round-robin and a failed instance just advances the cursor, so
// one dead or rate-limited instance cannot take the engine down.
type Searx struct {
	doer     Doer
	pool     []string
	maxTries int
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cursor int
}

var _ domain.SearchEngine = (*Searx)(nil)

func NewSearx(doer Doer, cfg config.SearXNGConfig, logger *slog.Logger) *Searx {
	maxTries := cfg.MaxPerQuery
	if maxTries <= 0 || maxTries > len(cfg.Instances) {
		maxTries = len(cfg.Instances)
	}
	return &Searx{
		doer:     doer,
		pool:     cfg.Instances,
		maxTries: maxTries,
		timeout:  cfg.QueryTimeout,
		logger:   logger,
	}
}

func (s *Searx) Name() string { return "searx" }

// Search tries up to maxTries instances and returns the first successful
// answer. A reachable instance that finds nothing is an answer, not a
// failure; rotation is only for instances that cannot be queried at all.
func (s *Searx) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, string, error) {
	var lastErr error
	for try := 0; try < s.maxTries; try++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		instance := s.nextInstance()
		results, strategy, err := s.queryInstance(ctx, instance, query, limit)
		if err != nil {
			lastErr = err
			s.logger.Debug("searx: instance failed", "instance", instance, "error", err)
			continue
		}
		return results, strategy, nil
	}
	return nil, "", domain.NewDomainError("Engine.searx", domain.ErrEngineFailure,
		fmt.Sprintf("instance pool exhausted after %d tries, last: %v", s.maxTries, lastErr))
}

func (s *Searx) nextInstance() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance := s.pool[s.cursor%len(s.pool)]
	s.cursor++
	return instance
}

type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *Searx) queryInstance(ctx context.Context, instance, query string, limit int) ([]domain.SearchResult, string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", "1")
	endpoint := strings.TrimRight(instance, "/") + "/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, strategy, err := s.doer.Do(ctx, req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d", domain.ErrHTTPStatus, resp.StatusCode)
	}

	var parsed searxResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&parsed); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}

	out := make([]domain.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if limit > 0 && len(out) >= limit {
			break
		}
		title := strings.TrimSpace(r.Title)
		if title == "" || r.URL == "" {
			continue
		}
		out = append(out, domain.SearchResult{
			Title:   title,
			URL:     r.URL,
			Snippet: strings.TrimSpace(r.Content),
			Engine:  s.Name(),
			Rank:    len(out) + 1,
		})
	}
	return out, string(strategy), nil
}
