package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"webrelay/internal/domain"
)

// Analyze summarizes a page's structure without a full extraction pass.
// Word and line counts are computed over the readable text, not the markup.
func Analyze(content []byte) (domain.PageAnalysis, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return domain.PageAnalysis{}, fmt.Errorf("parse html: %w", err)
	}

	text := extractText(doc)

	lineCount := 0
	if text != "" {
		lineCount = strings.Count(text, "\n") + 1
	}

	analysis := domain.PageAnalysis{
		ContentLength:   len(content),
		WordCount:       len(strings.Fields(text)),
		LineCount:       lineCount,
		HasForms:        doc.Find("form").Length() > 0,
		HasScripts:      doc.Find("script").Length() > 0,
		HasImages:       doc.Find("img").Length() > 0,
		HasLinks:        doc.Find("a[href]").Length() > 0,
		Title:           strings.TrimSpace(doc.Find("head title").First().Text()),
		MetaDescription: metaDescription(doc),
	}
	return analysis, nil
}

func metaDescription(doc *goquery.Document) string {
	desc, _ := doc.Find(`head meta[name="description"]`).First().Attr("content")
	return strings.TrimSpace(desc)
}
