// Package engine implements the search backends. Each engine turns a query
// into domain.SearchResult values over whatever wire format the backend
// speaks; choosing between engines, pacing them and tracking their health
// happens a layer up.
package engine

import (
	"context"
	"net/http"

	"webrelay/internal/adapter/transport"
)

// maxResponseBytes caps how much of a search response is read. Result pages
// past this size are cut off rather than buffered whole.
const maxResponseBytes = 2 << 20

// Doer issues one HTTP request through the strategy selector and reports
// which strategy served it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, transport.Strategy, error)
}
