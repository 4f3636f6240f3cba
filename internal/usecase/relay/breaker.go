package relay

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/sony/gobreaker/v2"

	"webrelay/internal/domain"
	"webrelay/internal/infra/config"
)

// breakerSet guards each search engine with its own circuit breaker. A
// breaker opens after the configured run of consecutive failures, stays open
// for the cooldown, then lets one probe through half-open. An empty result
// set is recorded as success: the backend answered, the query was fruitless.
type breakerSet struct {
	order    []string
	breakers map[string]*gobreaker.TwoStepCircuitBreaker[any]
	trips    map[string]*atomic.Int64
}

func newBreakerSet(engines []config.EngineConfig, logger *slog.Logger) *breakerSet {
	bs := &breakerSet{
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker[any], len(engines)),
		trips:    make(map[string]*atomic.Int64, len(engines)),
	}
	for _, e := range engines {
		threshold := uint32(e.FailureThreshold)
		trip := &atomic.Int64{}

		bs.order = append(bs.order, e.Name)
		bs.trips[e.Name] = trip
		bs.breakers[e.Name] = gobreaker.NewTwoStepCircuitBreaker[any](gobreaker.Settings{
			Name:        e.Name,
			MaxRequests: 1,
			Timeout:     e.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if to == gobreaker.StateOpen {
					trip.Add(1)
					logger.Warn("relay: engine circuit opened",
						"engine", name, "from", from.String())
					return
				}
				logger.Info("relay: engine circuit state changed",
					"engine", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return bs
}

// open reports whether the engine's circuit is open right now. Half-open
// circuits report false so a probe can go through.
func (b *breakerSet) open(engine string) bool {
	cb, ok := b.breakers[engine]
	if !ok {
		return false
	}
	return cb.State() == gobreaker.StateOpen
}

// allow reserves a request slot. The returned done func must be called
// exactly once with the outcome. A nil error with a breaker that flipped
// open concurrently is surfaced as domain.ErrCircuitOpen.
func (b *breakerSet) allow(engine string) (func(success bool), error) {
	cb, ok := b.breakers[engine]
	if !ok {
		// Engines without breaker config run unguarded.
		return func(bool) {}, nil
	}
	done, err := cb.Allow()
	if err != nil {
		return nil, domain.NewDomainError("Relay.breaker", domain.ErrCircuitOpen, engine)
	}
	return func(success bool) {
		if success {
			done(nil)
			return
		}
		done(errBreakerFailure)
	}, nil
}

// errBreakerFailure marks a failed request to the breaker, which counts any
// non-nil error as a failure.
var errBreakerFailure = errors.New("request failed")

// stats snapshots breaker state per engine in configuration order.
func (b *breakerSet) stats() []domain.EngineStats {
	out := make([]domain.EngineStats, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, domain.EngineStats{
			Engine: name,
			State:  b.breakers[name].State().String(),
			Trips:  b.trips[name].Load(),
		})
	}
	return out
}
