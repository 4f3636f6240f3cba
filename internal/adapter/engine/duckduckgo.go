package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"webrelay/internal/domain"
)

// ddgEndpoint is the JavaScript-free HTML frontend. It renders server side,
// which makes it scrapeable and far more tolerant of proxy egress than the
// main site.
const ddgEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the HTML search frontend.
type DuckDuckGo struct {
	doer    Doer
	timeout time.Duration
	logger  *slog.Logger
}

var _ domain.SearchEngine = (*DuckDuckGo)(nil)

func NewDuckDuckGo(doer Doer, timeout time.Duration, logger *slog.Logger) *DuckDuckGo {
	return &DuckDuckGo{doer: doer, timeout: timeout, logger: logger}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ddgEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, "", err
	}

	resp, strategy, err := d.doer.Do(ctx, req)
	if err != nil {
		return nil, "", domain.NewDomainError("Engine.duckduckgo", domain.ErrEngineFailure,
			fmt.Sprintf("request: %v", err))
	}
	defer resp.Body.Close()

	// A 202 here is the anti-bot challenge page, not a result set.
	if resp.StatusCode != http.StatusOK {
		return nil, "", domain.NewDomainError("Engine.duckduckgo", domain.ErrEngineFailure,
			fmt.Sprintf("status %d", resp.StatusCode))
	}

	results, err := parseResultsPage(io.LimitReader(resp.Body, maxResponseBytes), d.Name(), limit)
	if err != nil {
		return nil, "", domain.NewDomainError("Engine.duckduckgo", domain.ErrEngineFailure,
			fmt.Sprintf("parse: %v", err))
	}
	return results, string(strategy), nil
}

// parseResultsPage pulls organic results out of the HTML frontend markup.
// Ad blocks carry the result--ad class and are skipped.
func parseResultsPage(r io.Reader, engineName string, limit int) ([]domain.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var out []domain.SearchResult
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		if sel.HasClass("result--ad") {
			return true
		}

		link := sel.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		target := unwrapRedirect(href)
		if title == "" || target == "" {
			return true
		}

		out = append(out, domain.SearchResult{
			Title:   title,
			URL:     target,
			Snippet: strings.TrimSpace(sel.Find(".result__snippet").First().Text()),
			Engine:  engineName,
			Rank:    len(out) + 1,
		})
		return true
	})
	return out, nil
}

// unwrapRedirect extracts the destination from the frontend's /l/?uddg=
// redirect links. Direct links pass through, with protocol-relative ones
// normalized to https.
func unwrapRedirect(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}
