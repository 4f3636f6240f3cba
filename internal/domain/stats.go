package domain

import "time"

// StrategyStats is a snapshot of one transport strategy's health.
type StrategyStats struct {
	Name        string     `json:"name"`
	SuccessRate float64    `json:"success_rate"`
	Failures    int64      `json:"failures"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	Score       float64    `json:"score"`
}

// EngineStats is a snapshot of one search engine's circuit state.
type EngineStats struct {
	Engine string `json:"engine"`
	State  string `json:"state"`
	Trips  int64  `json:"trips"`
}

// RelayStats aggregates component health for diagnostics.
type RelayStats struct {
	Cache      CacheStats      `json:"cache"`
	Strategies []StrategyStats `json:"strategies"`
	Engines    []EngineStats   `json:"engines"`
}
