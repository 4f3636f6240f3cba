package transport

import (
	"net/http"
	"strings"
	"testing"
)

func TestApplySetsBrowserHeaders(t *testing.T) {
	h := newHeaderRotator()
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)

	h.apply(req, StrategyProxyPrimary)

	ua := req.Header.Get("User-Agent")
	if !strings.HasPrefix(ua, "Mozilla/5.0") {
		t.Fatalf("User-Agent = %q", ua)
	}
	if req.Header.Get("Accept") != browserAccept {
		t.Fatalf("Accept = %q", req.Header.Get("Accept"))
	}
	if req.Header.Get("Accept-Language") == "" {
		t.Fatal("Accept-Language missing")
	}
	if req.Header.Get("DNT") != "1" || req.Header.Get("Upgrade-Insecure-Requests") != "1" {
		t.Fatal("privacy headers missing")
	}
	if req.Header.Get("Sec-Fetch-Mode") != "navigate" {
		t.Fatalf("Sec-Fetch-Mode = %q", req.Header.Get("Sec-Fetch-Mode"))
	}
	// Accept-Encoding must stay unset so the stdlib transport negotiates
	// gzip and decodes it transparently.
	if req.Header.Get("Accept-Encoding") != "" {
		t.Fatalf("Accept-Encoding = %q, want unset", req.Header.Get("Accept-Encoding"))
	}
}

func TestApplyKeepsCallerHeaders(t *testing.T) {
	h := newHeaderRotator()
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/api", nil)
	req.Header.Set("User-Agent", "webrelay-test/1.0")
	req.Header.Set("Accept", "application/json")

	h.apply(req, StrategyDirect)

	if req.Header.Get("User-Agent") != "webrelay-test/1.0" {
		t.Fatalf("User-Agent overwritten: %q", req.Header.Get("User-Agent"))
	}
	if req.Header.Get("Accept") != "application/json" {
		t.Fatalf("Accept overwritten: %q", req.Header.Get("Accept"))
	}
}

func TestApplyBridgeAddsCacheControl(t *testing.T) {
	h := newHeaderRotator()

	req, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	h.apply(req, StrategyProxyBridge)
	if req.Header.Get("Cache-Control") != "no-cache" {
		t.Fatalf("Cache-Control = %q, want no-cache", req.Header.Get("Cache-Control"))
	}

	req2, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	h.apply(req2, StrategyProxyPrimary)
	if req2.Header.Get("Cache-Control") != "" {
		t.Fatalf("primary strategy set Cache-Control = %q", req2.Header.Get("Cache-Control"))
	}
}

func TestPlatformFollowsUserAgent(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/126.0.0.0", `"Windows"`},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Chrome/126.0.0.0", `"macOS"`},
		{"Mozilla/5.0 (X11; Linux x86_64) Chrome/126.0.0.0", `"Linux"`},
	}
	for _, tt := range tests {
		if got := platformFor(tt.ua); got != tt.want {
			t.Errorf("platformFor(%q) = %s, want %s", tt.ua, got, tt.want)
		}
	}
}

func TestApplyOmitsClientHintsForFirefox(t *testing.T) {
	h := newHeaderRotator()
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0")

	h.apply(req, StrategyDirect)

	if req.Header.Get("Sec-Ch-Ua-Platform") != "" {
		t.Fatalf("Firefox identity got client hints: %q", req.Header.Get("Sec-Ch-Ua-Platform"))
	}
}
