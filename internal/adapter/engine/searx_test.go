package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"webrelay/internal/adapter/transport"
	"webrelay/internal/domain"
	"webrelay/internal/infra/config"
)

type doerFunc func(ctx context.Context, req *http.Request) (*http.Response, transport.Strategy, error)

func (f doerFunc) Do(ctx context.Context, req *http.Request) (*http.Response, transport.Strategy, error) {
	return f(ctx, req)
}

func fakeResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func searxPool(instances ...string) config.SearXNGConfig {
	return config.SearXNGConfig{
		Instances:    instances,
		MaxPerQuery:  3,
		QueryTimeout: time.Second,
	}
}

const searxBody = `{
	"query": "golang",
	"results": [
		{"title": "The Go Programming Language", "url": "https://go.dev", "content": "Build simple, secure, scalable systems."},
		{"title": "Go (programming language)", "url": "https://en.wikipedia.org/wiki/Go_(programming_language)", "content": "Statically typed, compiled."},
		{"title": "", "url": "https://untitled.example", "content": "dropped"},
		{"title": "Go by Example", "url": "https://gobyexample.com", "content": "Hands-on introduction."}
	]
}`

func TestSearxParsesResults(t *testing.T) {
	var gotURL, gotAccept string
	doer := doerFunc(func(_ context.Context, req *http.Request) (*http.Response, transport.Strategy, error) {
		gotURL = req.URL.String()
		gotAccept = req.Header.Get("Accept")
		return fakeResponse(http.StatusOK, searxBody), transport.StrategyDirect, nil
	})

	s := NewSearx(doer, searxPool("https://searx-a.example"), testLogger())
	results, strategy, err := s.Search(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if strategy != string(transport.StrategyDirect) {
		t.Fatalf("strategy = %q, want %q", strategy, transport.StrategyDirect)
	}

	if !strings.Contains(gotURL, "searx-a.example/search?") {
		t.Fatalf("request URL = %q", gotURL)
	}
	if !strings.Contains(gotURL, "format=json") || !strings.Contains(gotURL, "q=golang") {
		t.Fatalf("request URL missing params: %q", gotURL)
	}
	if gotAccept != "application/json" {
		t.Fatalf("Accept = %q", gotAccept)
	}

	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3 (untitled dropped)", len(results))
	}
	first := results[0]
	if first.Title != "The Go Programming Language" || first.URL != "https://go.dev" {
		t.Fatalf("first result = %+v", first)
	}
	if first.Engine != "searx" || first.Rank != 1 {
		t.Fatalf("first result attribution = %+v", first)
	}
	if results[2].Rank != 3 {
		t.Fatalf("ranks not sequential: %+v", results[2])
	}
}

func TestSearxRotatesOnInstanceFailure(t *testing.T) {
	var hosts []string
	doer := doerFunc(func(_ context.Context, req *http.Request) (*http.Response, transport.Strategy, error) {
		hosts = append(hosts, req.URL.Host)
		if req.URL.Host == "searx-a.example" {
			return nil, "", errors.New("connection refused")
		}
		return fakeResponse(http.StatusOK, searxBody), transport.StrategyDirect, nil
	})

	s := NewSearx(doer, searxPool("https://searx-a.example", "https://searx-b.example"), testLogger())
	results, _, err := s.Search(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(hosts) != 2 || hosts[0] != "searx-a.example" || hosts[1] != "searx-b.example" {
		t.Fatalf("hosts tried = %v", hosts)
	}
	if len(results) == 0 {
		t.Fatal("no results from healthy instance")
	}
}

func TestSearxRotatesOnBadStatus(t *testing.T) {
	doer := doerFunc(func(_ context.Context, req *http.Request) (*http.Response, transport.Strategy, error) {
		if req.URL.Host == "searx-a.example" {
			return fakeResponse(http.StatusTooManyRequests, "slow down"), transport.StrategyDirect, nil
		}
		return fakeResponse(http.StatusOK, searxBody), transport.StrategyDirect, nil
	})

	s := NewSearx(doer, searxPool("https://searx-a.example", "https://searx-b.example"), testLogger())
	results, _, err := s.Search(context.Background(), "golang", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results after rotating past rate-limited instance")
	}
}

func TestSearxPoolExhausted(t *testing.T) {
	calls := 0
	doer := doerFunc(func(_ context.Context, _ *http.Request) (*http.Response, transport.Strategy, error) {
		calls++
		return nil, "", errors.New("connection refused")
	})

	s := NewSearx(doer, searxPool("https://searx-a.example", "https://searx-b.example", "https://searx-c.example"), testLogger())
	_, _, err := s.Search(context.Background(), "golang", 10)
	if !errors.Is(err, domain.ErrEngineFailure) {
		t.Fatalf("err = %v, want domain.ErrEngineFailure", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestSearxEmptyAnswerIsNotError(t *testing.T) {
	calls := 0
	doer := doerFunc(func(_ context.Context, _ *http.Request) (*http.Response, transport.Strategy, error) {
		calls++
		return fakeResponse(http.StatusOK, `{"results": []}`), transport.StrategyDirect, nil
	})

	s := NewSearx(doer, searxPool("https://searx-a.example", "https://searx-b.example"), testLogger())
	results, _, err := s.Search(context.Background(), "no such thing xyzzy", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %v, want none", results)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (empty answer must not rotate)", calls)
	}
}

func TestSearxHonorsLimit(t *testing.T) {
	doer := doerFunc(func(_ context.Context, _ *http.Request) (*http.Response, transport.Strategy, error) {
		return fakeResponse(http.StatusOK, searxBody), transport.StrategyDirect, nil
	})

	s := NewSearx(doer, searxPool("https://searx-a.example"), testLogger())
	results, _, err := s.Search(context.Background(), "golang", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
}

func TestSearxCursorPersistsAcrossQueries(t *testing.T) {
	var hosts []string
	doer := doerFunc(func(_ context.Context, req *http.Request) (*http.Response, transport.Strategy, error) {
		hosts = append(hosts, req.URL.Host)
		return fakeResponse(http.StatusOK, searxBody), transport.StrategyDirect, nil
	})

	s := NewSearx(doer, searxPool("https://searx-a.example", "https://searx-b.example"), testLogger())
	if _, _, err := s.Search(context.Background(), "one", 5); err != nil {
		t.Fatalf("first Search: %v", err)
	}
	if _, _, err := s.Search(context.Background(), "two", 5); err != nil {
		t.Fatalf("second Search: %v", err)
	}

	if len(hosts) != 2 || hosts[0] != "searx-a.example" || hosts[1] != "searx-b.example" {
		t.Fatalf("hosts = %v, want rotation across queries", hosts)
	}
}
