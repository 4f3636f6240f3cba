// Package extract turns fetched HTML into structured data: head metadata,
// classified links and readable text, plus a cheap structural analysis and
// token-budget truncation for relay responses.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"webrelay/internal/domain"
)

// maxLinks caps how many links a single page contributes.
const maxLinks = 200

// ParseDocument extracts metadata, links and text from an HTML page.
// baseURL anchors relative links and decides internal versus external.
func ParseDocument(content []byte, baseURL string) (domain.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return domain.Document{}, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return domain.Document{}, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}

	return domain.Document{
		Metadata: extractMetadata(doc),
		Links:    extractLinks(doc, base),
		Text:     extractText(doc),
	}, nil
}

func extractMetadata(doc *goquery.Document) domain.PageMetadata {
	md := domain.PageMetadata{
		Title: strings.TrimSpace(doc.Find("head title").First().Text()),
	}

	doc.Find("head meta").Each(func(_ int, sel *goquery.Selection) {
		content, ok := sel.Attr("content")
		if !ok || content == "" {
			return
		}
		content = strings.TrimSpace(content)

		if name, ok := sel.Attr("name"); ok {
			switch strings.ToLower(name) {
			case "description":
				md.Description = content
			case "keywords":
				md.Keywords = content
			case "author":
				md.Author = content
			default:
				if strings.HasPrefix(strings.ToLower(name), "twitter:") {
					if md.Twitter == nil {
						md.Twitter = make(map[string]string)
					}
					md.Twitter[strings.ToLower(name)] = content
				}
			}
			return
		}
		if prop, ok := sel.Attr("property"); ok {
			if strings.HasPrefix(strings.ToLower(prop), "og:") {
				if md.OpenGraph == nil {
					md.OpenGraph = make(map[string]string)
				}
				md.OpenGraph[strings.ToLower(prop)] = content
			}
		}
	})

	if href, ok := doc.Find(`head link[rel="canonical"]`).First().Attr("href"); ok {
		md.Canonical = strings.TrimSpace(href)
	}
	return md
}

func extractLinks(doc *goquery.Document, base *url.URL) []domain.Link {
	var links []domain.Link
	seen := make(map[string]bool)

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(links) >= maxLinks {
			return false
		}

		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return true
		}

		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return true
		}

		abs := resolved.String()
		if seen[abs] {
			return true
		}
		seen[abs] = true

		kind := domain.LinkExternal
		if strings.EqualFold(resolved.Hostname(), base.Hostname()) {
			kind = domain.LinkInternal
		}
		links = append(links, domain.Link{
			URL:  abs,
			Text: strings.TrimSpace(sel.Text()),
			Kind: kind,
		})
		return true
	})
	return links
}

// extractText returns the page's readable text with scripts, styles and
// empty lines stripped.
func extractText(doc *goquery.Document) string {
	clone := doc.Selection.Clone()
	clone.Find("script, style, noscript, template").Remove()

	body := clone.Find("body")
	if body.Length() == 0 {
		body = clone
	}
	return collapseWhitespace(body.Text())
}

// collapseWhitespace trims every line and squeezes blank runs down to a
// single separator line.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
