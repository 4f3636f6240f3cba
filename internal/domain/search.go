package domain

import "context"

// SearchResult is a single result row returned by a search engine.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Engine  string `json:"engine,omitempty"`
	Rank    int    `json:"rank,omitempty"`
}

// EngineAttempt records one engine consulted during a search, in consultation
// order. Skipped engines (circuit open) appear with Skipped set, no Success
// and a zero ElapsedMS, since no call was made.
type EngineAttempt struct {
	Engine    string `json:"engine"`
	Success   bool   `json:"success"`
	Skipped   bool   `json:"skipped,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Skip reasons and soft-failure reasons recorded in EngineAttempt.Reason.
const (
	ReasonCircuitOpen = "circuit_open"
	ReasonNoResults   = "no_results"
)

// SearchResponse is the full outcome of one orchestrated search. Exhausting
// every engine is a normal outcome, reported with Success false rather than
// an error.
type SearchResponse struct {
	Success         bool            `json:"success"`
	Engine          string          `json:"engine,omitempty"`
	Strategy        string          `json:"strategy,omitempty"`
	Query           string          `json:"query"`
	Results         []SearchResult  `json:"results"`
	Total           int             `json:"total"`
	Attempts        []EngineAttempt `json:"attempts,omitempty"`
	EnginesTried    []string        `json:"engines_tried,omitempty"`
	ServedFromCache bool            `json:"served_from_cache,omitempty"`
	ExecutionMS     int64           `json:"execution_ms"`
}

// SearchEngine is implemented by each upstream search backend. Search also
// reports which transport strategy carried the winning request, so responses
// can say how they reached the network.
type SearchEngine interface {
	Name() string
	Search(ctx context.Context, query string, limit int) (results []SearchResult, strategy string, err error)
}
