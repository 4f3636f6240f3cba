package extract

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// heuristicCharsPerToken approximates token counts when no encoder is
	// available. Four characters per token is close enough for budgeting.
	heuristicCharsPerToken = 4

	truncationNotice = "\n<!-- TRUNCATED -->"
)

// Truncator cuts page content down to a token budget. It prefers the
// cl100k_base encoder for exact counts and falls back to a character
// heuristic when the encoding data cannot be loaded.
type Truncator struct {
	enc    *tiktoken.Tiktoken
	logger *slog.Logger
}

func NewTruncator(logger *slog.Logger) *Truncator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("extract: token encoder unavailable, using character heuristic", "error", err)
		enc = nil
	}
	return &Truncator{enc: enc, logger: logger}
}

// CountTokens estimates how many tokens s costs.
func (t *Truncator) CountTokens(s string) int {
	if t.enc != nil {
		return len(t.enc.Encode(s, nil, nil))
	}
	return (len(s) + heuristicCharsPerToken - 1) / heuristicCharsPerToken
}

// Truncate returns content cut to at most maxTokens, with a marker appended
// when anything was removed. The cut lands on a tag or line boundary when
// one falls in the last fifth of the kept range, so markup is not severed
// mid-element. maxTokens <= 0 disables truncation.
func (t *Truncator) Truncate(content string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || content == "" {
		return content, false
	}

	total := t.CountTokens(content)
	if total <= maxTokens {
		return content, false
	}

	keep := len(content) * maxTokens / total
	if keep <= 0 {
		return truncationNotice, true
	}
	for keep > 0 && !utf8.RuneStart(content[keep]) {
		keep--
	}

	cut := content[:keep]
	floor := keep * 4 / 5
	if idx := strings.LastIndex(cut, ">"); idx >= floor {
		cut = cut[:idx+1]
	} else if idx := strings.LastIndex(cut, "\n"); idx >= floor {
		cut = cut[:idx]
	}

	return cut + truncationNotice, true
}
