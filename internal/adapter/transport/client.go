package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"webrelay/internal/domain"
	"webrelay/internal/infra/config"
)

const (
	dialTimeout  = 10 * time.Second
	maxRedirects = 5
)

// buildClients constructs one http.Client per enabled strategy. Proxy
// strategies share the SOCKS endpoint addresses from config; the direct
// client dials itself and enforces the private-range policy at dial time.
func buildClients(cfg config.TransportConfig) (map[Strategy]*http.Client, error) {
	clients := map[Strategy]*http.Client{
		StrategyDirect: newDirectClient(cfg.AllowPrivate),
	}
	if !cfg.ProxyEnabled {
		return clients, nil
	}

	primary, err := newSOCKSClient(cfg.ProxyAddr)
	if err != nil {
		return nil, fmt.Errorf("proxy %s: %w", cfg.ProxyAddr, err)
	}
	bridge, err := newSOCKSClient(cfg.BridgeAddr)
	if err != nil {
		return nil, fmt.Errorf("bridge %s: %w", cfg.BridgeAddr, err)
	}

	clients[StrategyProxyPrimary] = primary
	clients[StrategyProxyNewCircuit] = primary
	clients[StrategyProxyBridge] = bridge
	return clients, nil
}

// newSOCKSClient returns a client that tunnels through the SOCKS5 proxy at
// addr. Hostnames are passed to the proxy unresolved, so DNS happens at the
// proxy's egress rather than locally.
func newSOCKSClient(addr string) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", addr, nil, &net.Dialer{Timeout: dialTimeout})
	if err != nil {
		return nil, err
	}
	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer for %s does not support context", addr)
	}

	return &http.Client{
		Transport: &http.Transport{
			DialContext:           cd.DialContext,
			ForceAttemptHTTP2:     true,
			TLSHandshakeTimeout:   dialTimeout,
			ResponseHeaderTimeout: 30 * time.Second,
			// Pooled connections keep the circuit they were opened on, which
			// would defeat circuit renewal between requests.
			DisableKeepAlives: true,
		},
		CheckRedirect: limitRedirects(nil),
	}, nil
}

// newDirectClient returns a client that dials targets itself. Unless
// allowPrivate is set, every resolved address is checked against the private
// and reserved ranges before the connection is made, and each redirect hop
// is re-checked.
func newDirectClient(allowPrivate bool) *http.Client {
	inner := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}

	dial := inner.DialContext
	var perHop func(*http.Request) error
	if !allowPrivate {
		dial = safeDialContext(inner)
		perHop = func(req *http.Request) error {
			return rejectLiteralPrivate(req.URL.Hostname())
		}
	}

	return &http.Client{
		Transport: &http.Transport{
			DialContext:           dial,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          20,
			IdleConnTimeout:       60 * time.Second,
			TLSHandshakeTimeout:   dialTimeout,
			ResponseHeaderTimeout: 30 * time.Second,
		},
		CheckRedirect: limitRedirects(perHop),
	}
}

// safeDialContext resolves the host itself and validates every returned
// address before dialing, so a hostname cannot be re-pointed at a private
// address between validation and connection.
func safeDialContext(inner *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address %s: %w", addr, err)
		}

		ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", host, err)
		}
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return nil, domain.NewDomainError("Transport.dial", domain.ErrSSRFBlocked,
					fmt.Sprintf("%s resolves to %s", host, ip))
			}
		}

		return inner.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
	}
}

// limitRedirects caps redirect chains and runs an optional per-hop check.
func limitRedirects(perHop func(*http.Request) error) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if perHop != nil {
			if err := perHop(req); err != nil {
				return err
			}
		}
		return nil
	}
}
