package transport

import (
	"errors"
	"net"
	"testing"

	"webrelay/internal/domain"
)

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"192.168.0.1", true},
		{"169.254.1.1", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"224.0.0.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"fc00::1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"203.0.113.10", false},
		{"172.32.0.1", false},
		{"2606:4700:4700::1111", false},
	}

	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		if ip == nil {
			t.Fatalf("bad test IP %q", tt.ip)
		}
		if got := isPrivateIP(ip); got != tt.private {
			t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}

func TestRejectLiteralPrivate(t *testing.T) {
	blocked := []string{"127.0.0.1", "192.168.1.1", "10.0.0.5", "::1", "localhost", "LOCALHOST"}
	for _, host := range blocked {
		if err := rejectLiteralPrivate(host); !errors.Is(err, domain.ErrSSRFBlocked) {
			t.Errorf("rejectLiteralPrivate(%q) = %v, want domain.ErrSSRFBlocked", host, err)
		}
	}

	allowed := []string{"8.8.8.8", "example.com", "203.0.113.10", "internal.example.com"}
	for _, host := range allowed {
		if err := rejectLiteralPrivate(host); err != nil {
			t.Errorf("rejectLiteralPrivate(%q) = %v, want nil", host, err)
		}
	}
}
