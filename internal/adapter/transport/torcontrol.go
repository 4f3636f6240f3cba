package transport

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"webrelay/internal/domain"
)

const (
	controlDialTimeout = 5 * time.Second
	defaultSettle      = 3 * time.Second
)

// renewGate caps how often a new circuit may be requested. It keeps the
// timestamps of recent renewals and prunes ones older than the window.
type renewGate struct {
	mu     sync.Mutex
	window time.Duration
	calls  []time.Time
	now    func() time.Time
}

func newRenewGate(window time.Duration) *renewGate {
	return &renewGate{window: window, now: time.Now}
}

// allow records the renewal and returns true, unless one already happened
// inside the window.
func (g *renewGate) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	cutoff := now.Add(-g.window)
	kept := g.calls[:0]
	for _, t := range g.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.calls = kept

	if len(g.calls) >= 1 {
		return false
	}
	g.calls = append(g.calls, now)
	return true
}

// Renewer asks the proxy's control port for a fresh circuit. Renewals are
// rate capped, and after a successful signal the renewer waits briefly for
// the new circuit to establish.
type Renewer struct {
	addr     string
	password string
	gate     *renewGate
	settle   time.Duration
	logger   *slog.Logger

	dial func(ctx context.Context, addr string) (net.Conn, error)
}

func NewRenewer(addr, password string, interval time.Duration, logger *slog.Logger) *Renewer {
	d := &net.Dialer{Timeout: controlDialTimeout}
	return &Renewer{
		addr:     addr,
		password: password,
		gate:     newRenewGate(interval),
		settle:   defaultSettle,
		logger:   logger,
		dial: func(ctx context.Context, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

// Renew authenticates against the control port and signals for a new
// circuit. A renewal inside the rate window returns domain.ErrRateLimit;
// any control-port failure returns domain.ErrCircuitRenewal.
func (r *Renewer) Renew(ctx context.Context) error {
	if !r.gate.allow() {
		return domain.NewDomainError("Transport.Renew", domain.ErrRateLimit, "circuit renewal capped")
	}

	conn, err := r.dial(ctx, r.addr)
	if err != nil {
		return domain.NewDomainError("Transport.Renew", domain.ErrCircuitRenewal,
			fmt.Sprintf("dial control port: %v", err))
	}
	defer conn.Close()

	deadline := time.Now().Add(controlDialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	br := bufio.NewReader(conn)
	if err := roundTrip(conn, br, "AUTHENTICATE "+strconv.Quote(r.password)); err != nil {
		return domain.NewDomainError("Transport.Renew", domain.ErrCircuitRenewal,
			fmt.Sprintf("authenticate: %v", err))
	}
	if err := roundTrip(conn, br, "SIGNAL NEWNYM"); err != nil {
		return domain.NewDomainError("Transport.Renew", domain.ErrCircuitRenewal,
			fmt.Sprintf("signal newnym: %v", err))
	}
	fmt.Fprint(conn, "QUIT\r\n")

	r.logger.Info("transport: circuit renewed", "control", r.addr)

	if r.settle > 0 {
		timer := time.NewTimer(r.settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// roundTrip sends one control command and checks for a 250 reply.
func roundTrip(conn net.Conn, br *bufio.Reader, cmd string) error {
	if _, err := fmt.Fprintf(conn, "%s\r\n", cmd); err != nil {
		return err
	}
	line, err := br.ReadString('\n')
	if err != nil {
		return err
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "250") {
		return fmt.Errorf("unexpected reply %q", line)
	}
	return nil
}
