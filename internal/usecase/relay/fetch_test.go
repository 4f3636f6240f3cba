package relay

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webrelay/internal/adapter/transport"
	"webrelay/internal/domain"
)

const fetchedPage = `<html><head><title>Fetched</title>
<meta name="description" content="A fetched page.">
</head><body>
<p>Hello from the page body.</p>
<a href="/next">Next page</a>
<a href="https://elsewhere.example/doc">Elsewhere</a>
<img src="/logo.png">
</body></html>`

func respondingTransport(status int, body string, strategy transport.Strategy) *fakeTransport {
	return &fakeTransport{handler: func(*http.Request) (*http.Response, transport.Strategy, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, strategy, nil
	}}
}

func failingTransport() *fakeTransport {
	return &fakeTransport{handler: func(*http.Request) (*http.Response, transport.Strategy, error) {
		return nil, "", &transport.ExhaustedError{Attempts: []transport.AttemptError{
			{Strategy: transport.StrategyDirect, Err: context.DeadlineExceeded},
		}}
	}}
}

func TestFetchSuccess(t *testing.T) {
	tp := respondingTransport(http.StatusOK, fetchedPage, transport.StrategyProxyPrimary)
	svc := newTestService(t, nil, tp)

	result, err := svc.Fetch(context.Background(), "example.com/page", 0)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/page", result.URL, "missing scheme must default to https")
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, fetchedPage, result.Content)
	assert.Equal(t, len(fetchedPage), result.OriginalSize)
	assert.Equal(t, string(transport.StrategyProxyPrimary), result.Strategy)
	assert.False(t, result.Truncated)
	assert.False(t, result.ServedFromCache)
}

func TestFetchServesFromCache(t *testing.T) {
	tp := respondingTransport(http.StatusOK, fetchedPage, transport.StrategyDirect)
	svc := newTestService(t, nil, tp)

	_, err := svc.Fetch(context.Background(), "https://example.com/page", 0)
	require.NoError(t, err)

	second, err := svc.Fetch(context.Background(), "https://example.com/page", 0)
	require.NoError(t, err)

	assert.True(t, second.ServedFromCache)
	assert.Equal(t, fetchedPage, second.Content)
	assert.Equal(t, 1, tp.callCount(), "cache hit must not touch the network")
}

func TestFetchCacheKeyedByTokenBudget(t *testing.T) {
	tp := respondingTransport(http.StatusOK, fetchedPage, transport.StrategyDirect)
	svc := newTestService(t, nil, tp)

	_, err := svc.Fetch(context.Background(), "https://example.com/page", 500)
	require.NoError(t, err)
	_, err = svc.Fetch(context.Background(), "https://example.com/page", 900)
	require.NoError(t, err)

	assert.Equal(t, 2, tp.callCount(), "different budgets are different cache entries")
}

func TestFetchErrorStatusSurfacesAndSkipsCache(t *testing.T) {
	tp := respondingTransport(http.StatusNotFound, "not here", transport.StrategyDirect)
	svc := newTestService(t, nil, tp)

	_, err := svc.Fetch(context.Background(), "https://example.com/missing", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrHTTPStatus)
	assert.Equal(t, domain.CodeHTTPStatus, domain.ErrorCodeOf(err))

	_, err = svc.Fetch(context.Background(), "https://example.com/missing", 0)
	require.Error(t, err)
	assert.Equal(t, 2, tp.callCount(), "error responses must not be cached")
}

func TestFetchTransportExhaustion(t *testing.T) {
	svc := newTestService(t, nil, failingTransport())

	_, err := svc.Fetch(context.Background(), "https://unreachable.example/", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestFetchRejectsBadURLs(t *testing.T) {
	svc := newTestService(t, nil, failingTransport())

	for _, raw := range []string{"", "   ", "ftp://example.com/file", "https://"} {
		_, err := svc.Fetch(context.Background(), raw, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "url %q", raw)
	}
}

type cuttingTruncator struct{ keep int }

func (c cuttingTruncator) Truncate(content string, _ int) (string, bool) {
	if len(content) <= c.keep {
		return content, false
	}
	return content[:c.keep], true
}

func TestFetchTruncatesToBudget(t *testing.T) {
	tp := respondingTransport(http.StatusOK, fetchedPage, transport.StrategyDirect)
	svc := newTestService(t, nil, tp)
	svc.truncator = cuttingTruncator{keep: 40}

	result, err := svc.Fetch(context.Background(), "https://example.com/page", 10)
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.Equal(t, 40, result.ContentSize)
	assert.Equal(t, len(fetchedPage), result.OriginalSize)

	cached, err := svc.Fetch(context.Background(), "https://example.com/page", 10)
	require.NoError(t, err)
	assert.True(t, cached.Truncated, "truncation flag must survive the cache")
}

func TestAnalyzeSummarizesPage(t *testing.T) {
	tp := respondingTransport(http.StatusOK, fetchedPage, transport.StrategyDirect)
	svc := newTestService(t, nil, tp)

	analysis, err := svc.Analyze(context.Background(), "https://example.com/page")
	require.NoError(t, err)

	assert.Equal(t, "Fetched", analysis.Title)
	assert.Equal(t, "A fetched page.", analysis.MetaDescription)
	assert.True(t, analysis.HasImages)
	assert.True(t, analysis.HasLinks)
	assert.False(t, analysis.HasForms)
	assert.NotZero(t, analysis.WordCount)

	_, err = svc.Analyze(context.Background(), "https://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, 1, tp.callCount(), "analysis is cached")
}

func TestExtractReturnsStructuredDocument(t *testing.T) {
	tp := respondingTransport(http.StatusOK, fetchedPage, transport.StrategyDirect)
	svc := newTestService(t, nil, tp)

	doc, err := svc.Extract(context.Background(), "https://example.com/page")
	require.NoError(t, err)

	assert.Equal(t, "Fetched", doc.Metadata.Title)
	require.Len(t, doc.Links, 2)
	assert.Equal(t, domain.LinkInternal, doc.Links[0].Kind)
	assert.Equal(t, "https://example.com/next", doc.Links[0].URL)
	assert.Equal(t, domain.LinkExternal, doc.Links[1].Kind)
	assert.Contains(t, doc.Text, "Hello from the page body.")
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"https://example.com/a", "https://example.com/a", false},
		{"http://example.com", "http://example.com", false},
		{"example.com/path?q=1", "https://example.com/path?q=1", false},
		{"  example.com  ", "https://example.com", false},
		{"", "", true},
		{"ftp://example.com", "", true},
		{"https://", "", true},
	}
	for _, tt := range tests {
		got, err := normalizeURL(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, "raw %q", tt.raw)
			continue
		}
		require.NoError(t, err, "raw %q", tt.raw)
		assert.Equal(t, tt.want, got)
	}
}
