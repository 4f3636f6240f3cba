package transport

import (
	"fmt"
	"net"
	"strings"

	"webrelay/internal/domain"
)

// privateRanges lists the address blocks that outbound requests must not
// reach: RFC 1918, loopback, link-local, CGNAT, benchmarking, multicast and
// their IPv6 equivalents.
var privateRanges = mustCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"::/128",
	"fc00::/7",
	"fe80::/10",
)

func mustCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, block, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("bad builtin CIDR %q: %v", c, err))
		}
		out = append(out, block)
	}
	return out
}

// isPrivateIP reports whether ip falls in a private or reserved range.
func isPrivateIP(ip net.IP) bool {
	if ip.IsUnspecified() {
		return true
	}
	for _, block := range privateRanges {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// rejectLiteralPrivate blocks targets whose host is a literal private IP or
// the name localhost. It never resolves DNS; hostname resolution is judged
// at dial time instead.
func rejectLiteralPrivate(host string) error {
	if strings.EqualFold(host, "localhost") {
		return domain.NewDomainError("Transport.validate", domain.ErrSSRFBlocked, "target localhost")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return domain.NewDomainError("Transport.validate", domain.ErrSSRFBlocked,
			fmt.Sprintf("target %s is in a private range", host))
	}
	return nil
}
