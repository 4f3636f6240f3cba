package transport

import (
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// userAgents holds current desktop browser identities. Rotation keeps the
// relay from presenting one fingerprint across every request.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0",
	"Mozilla/5.0 (X11; Fedora; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.8,de;q=0.5",
	"en-GB,en-US;q=0.9,en;q=0.8",
	"en-US,en;q=0.9,fr;q=0.6",
	"en-US,en;q=0.9,es;q=0.7",
}

const browserAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"

// headerRotator applies a coherent browser identity to each outbound request.
type headerRotator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newHeaderRotator() *headerRotator {
	return &headerRotator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (h *headerRotator) pick() (ua, lang string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return userAgents[h.rng.Intn(len(userAgents))], acceptLanguages[h.rng.Intn(len(acceptLanguages))]
}

// apply fills in browser headers, keeping any User-Agent or Accept the
// caller already set. Accept-Encoding stays untouched so the standard
// library negotiates and decodes gzip itself.
func (h *headerRotator) apply(req *http.Request, strategy Strategy) {
	ua, lang := h.pick()

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", ua)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", browserAccept)
	}
	req.Header.Set("Accept-Language", lang)
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")

	effective := req.Header.Get("User-Agent")
	if strings.Contains(effective, "Chrome/") {
		req.Header.Set("Sec-Ch-Ua-Platform", platformFor(effective))
	}
	if strategy == StrategyProxyBridge {
		req.Header.Set("Cache-Control", "no-cache")
	}
}

// platformFor maps a user agent string to its client-hint platform value.
func platformFor(ua string) string {
	switch {
	case strings.Contains(ua, "Windows NT"):
		return `"Windows"`
	case strings.Contains(ua, "Macintosh"):
		return `"macOS"`
	default:
		return `"Linux"`
	}
}
