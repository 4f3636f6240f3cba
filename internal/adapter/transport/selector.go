// Package transport picks how each outbound request reaches the network.
// Four strategies are tried in health order: the primary SOCKS proxy, the
// proxy after a circuit renewal, an alternate bridge proxy, and a direct
// connection. Per-strategy health is an exponentially weighted success rate,
// so a strategy that starts failing drains influence quickly and recovers
// as soon as it works again. No strategy is ever hard-blocked.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"webrelay/internal/domain"
	"webrelay/internal/infra/config"
)

// Strategy identifies one way of reaching the network.
type Strategy string

const (
	StrategyProxyPrimary    Strategy = "proxy_primary"
	StrategyProxyNewCircuit Strategy = "proxy_new_circuit"
	StrategyProxyBridge     Strategy = "proxy_bridge"
	StrategyDirect          Strategy = "direct"
)

const (
	// ewmaWeight is the weight of history in the success-rate update.
	ewmaWeight = 0.7
	// rateFloor and rateCeil clamp the success rate so no strategy is ever
	// written off entirely or trusted unconditionally.
	rateFloor = 0.10
	rateCeil  = 0.95
	// recencyWindow is how long a recent use keeps boosting a strategy's score.
	recencyWindow = time.Hour
	recencyBonus  = 0.1
)

// strategyState tracks one strategy's health.
type strategyState struct {
	name        Strategy
	successRate float64
	failures    int64
	lastUsed    time.Time
}

// AttemptError describes one failed strategy attempt.
type AttemptError struct {
	Strategy Strategy
	Err      error
}

// ExhaustedError aggregates every failed attempt after no strategy produced
// an HTTP response. It unwraps to domain.ErrTransport.
type ExhaustedError struct {
	Attempts []AttemptError
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	return fmt.Sprintf("%v (%s)", domain.ErrTransport, strings.Join(parts, "; "))
}

func (e *ExhaustedError) Unwrap() error { return domain.ErrTransport }

// Selector routes requests through the healthiest strategy first, falling
// back through the rest. Safe for concurrent use.
type Selector struct {
	mu     sync.Mutex
	states []*strategyState

	clients map[Strategy]*http.Client
	renewer *Renewer
	headers *headerRotator
	logger  *slog.Logger

	minPause     time.Duration
	maxPause     time.Duration
	allowPrivate bool

	rng *rand.Rand
	now func() time.Time
}

// New builds a Selector from config. With the proxy disabled only the direct
// strategy is used. Initial success rates are priors, not measurements: the
// direct path starts most trusted and the proxies earn their place.
func New(cfg config.TransportConfig, logger *slog.Logger) (*Selector, error) {
	clients, err := buildClients(cfg)
	if err != nil {
		return nil, domain.WrapOp("transport.New", err)
	}

	states := []*strategyState{
		{name: StrategyProxyPrimary, successRate: 0.5},
		{name: StrategyProxyNewCircuit, successRate: 0.7},
		{name: StrategyProxyBridge, successRate: 0.6},
		{name: StrategyDirect, successRate: 0.9},
	}
	var renewer *Renewer
	if cfg.ProxyEnabled {
		renewer = NewRenewer(cfg.ControlAddr, cfg.ControlPassword, cfg.RenewalInterval, logger)
	} else {
		states = states[3:]
	}

	return &Selector{
		states:       states,
		clients:      clients,
		renewer:      renewer,
		headers:      newHeaderRotator(),
		logger:       logger,
		minPause:     cfg.MinAttemptPause,
		maxPause:     cfg.MaxAttemptPause,
		allowPrivate: cfg.AllowPrivate,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
	}, nil
}

// score ranks a strategy by success rate plus a small bonus for recent use.
func (s *Selector) score(st *strategyState, now time.Time) float64 {
	bonus := 0.0
	if !st.lastUsed.IsZero() {
		age := now.Sub(st.lastUsed)
		if age < recencyWindow {
			bonus = 1 - age.Seconds()/recencyWindow.Seconds()
		}
	}
	return st.successRate + recencyBonus*bonus
}

// ranked returns strategies in descending score order. Ties keep declaration
// order, which places the cheaper strategy first.
func (s *Selector) ranked() []Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	idx := make([]int, len(s.states))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.score(s.states[idx[a]], now) > s.score(s.states[idx[b]], now)
	})

	out := make([]Strategy, len(idx))
	for i, j := range idx {
		out[i] = s.states[j].name
	}
	return out
}

// recordSuccess folds a success into the strategy's rate.
func (s *Selector) recordSuccess(name Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(name)
	if st == nil {
		return
	}
	st.successRate = clampRate(st.successRate*ewmaWeight + (1 - ewmaWeight))
	st.lastUsed = s.now()
}

// recordFailure folds a failure into the strategy's rate.
func (s *Selector) recordFailure(name Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(name)
	if st == nil {
		return
	}
	st.successRate = clampRate(st.successRate * ewmaWeight)
	st.failures++
	st.lastUsed = s.now()
}

// state returns the tracked state for name. Caller must hold mu.
func (s *Selector) state(name Strategy) *strategyState {
	for _, st := range s.states {
		if st.name == name {
			return st
		}
	}
	return nil
}

func clampRate(r float64) float64 {
	if r < rateFloor {
		return rateFloor
	}
	if r > rateCeil {
		return rateCeil
	}
	return r
}

// Do issues req through strategies in health order until one yields an HTTP
// response. Receiving any response, whatever its status code, is transport
// success; judging the status is the caller's business. When every strategy
// fails, the returned error is an *ExhaustedError.
func (s *Selector) Do(ctx context.Context, req *http.Request) (*http.Response, Strategy, error) {
	// Literal private IPs are refused before any strategy runs, so they are
	// never forwarded to a proxy either. Hostnames that resolve privately
	// are caught at dial time on the direct path; proxied lookups happen at
	// the proxy's egress, outside this process.
	if !s.allowPrivate {
		if err := rejectLiteralPrivate(req.URL.Hostname()); err != nil {
			return nil, "", domain.WrapOp("Transport.Do", err)
		}
	}

	var attempts []AttemptError

	order := s.ranked()
	for i, name := range order {
		if err := ctx.Err(); err != nil {
			break
		}

		if name == StrategyProxyNewCircuit && s.renewer != nil {
			if err := s.renewer.Renew(ctx); err != nil {
				// A failed renewal still leaves a usable circuit.
				s.logger.Debug("transport: circuit renewal skipped", "error", err)
			}
		}

		attempt := req.Clone(ctx)
		s.headers.apply(attempt, name)

		client, ok := s.clients[name]
		if !ok {
			continue
		}

		resp, err := client.Do(attempt)
		if err == nil {
			s.recordSuccess(name)
			s.logger.Debug("transport: request served",
				"strategy", string(name), "status", resp.StatusCode, "url", req.URL.String())
			return resp, name, nil
		}

		s.recordFailure(name)
		attempts = append(attempts, AttemptError{Strategy: name, Err: err})
		s.logger.Warn("transport: strategy failed",
			"strategy", string(name), "error", err, "url", req.URL.String())

		if i < len(order)-1 {
			if err := s.pause(ctx); err != nil {
				break
			}
		}
	}

	return nil, "", &ExhaustedError{Attempts: attempts}
}

// pause sleeps a jittered interval between strategy attempts so fallbacks
// don't hammer the target in a burst.
func (s *Selector) pause(ctx context.Context) error {
	s.mu.Lock()
	d := s.minPause
	if span := s.maxPause - s.minPause; span > 0 {
		d += time.Duration(s.rng.Int63n(int64(span)))
	}
	s.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats snapshots per-strategy health in declaration order.
func (s *Selector) Stats() []domain.StrategyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]domain.StrategyStats, 0, len(s.states))
	for _, st := range s.states {
		stat := domain.StrategyStats{
			Name:        string(st.name),
			SuccessRate: st.successRate,
			Failures:    st.failures,
			Score:       s.score(st, now),
		}
		if !st.lastUsed.IsZero() {
			t := st.lastUsed
			stat.LastUsed = &t
		}
		out = append(out, stat)
	}
	return out
}

// RenewCircuit requests a fresh circuit outside of the normal strategy loop,
// for callers that want to force one.
func (s *Selector) RenewCircuit(ctx context.Context) error {
	if s.renewer == nil {
		return domain.NewDomainError("Transport.RenewCircuit", domain.ErrCircuitRenewal, "proxy disabled")
	}
	return s.renewer.Renew(ctx)
}
