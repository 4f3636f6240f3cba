package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"webrelay/internal/adapter/cache"
	"webrelay/internal/adapter/engine"
	"webrelay/internal/adapter/extract"
	"webrelay/internal/adapter/transport"
	"webrelay/internal/domain"
	"webrelay/internal/infra/config"
	"webrelay/internal/infra/logger"
	"webrelay/internal/usecase/batch"
	"webrelay/internal/usecase/relay"
)

// ddgTimeout bounds one DuckDuckGo query. The HTML frontend answers fast or
// not at all; the searx pool carries its own per-instance budget in config.
const ddgTimeout = 15 * time.Second

// components holds the wired relay stack shared by the daemon and the CLI
// subcommands.
type components struct {
	Cache domain.CacheStore
	Relay *relay.Service
	Batch *batch.Service
}

func (c *components) Close() {
	if err := c.Cache.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "cache close: %v\n", err)
	}
}

// buildComponents wires cache, transport, engines, orchestrator and batch
// processor from config.
func buildComponents(cfg *config.Config, log *slog.Logger) (*components, error) {
	store := cache.New(cfg.Cache.Path, cfg.Cache.MaxEntries, log)

	selector, err := transport.New(cfg.Transport, log)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	engines := make([]domain.SearchEngine, 0, len(cfg.Search.Engines))
	for _, e := range cfg.Search.Engines {
		switch e.Name {
		case "searx":
			engines = append(engines, engine.NewSearx(selector, cfg.Search.SearXNG, log))
		case "duckduckgo":
			engines = append(engines, engine.NewDuckDuckGo(selector, ddgTimeout, log))
		default:
			// Validate already rejected anything else.
			return nil, fmt.Errorf("engine: unknown engine %q", e.Name)
		}
	}

	truncator := extract.NewTruncator(log)
	svc := relay.New(engines, store, selector, truncator,
		cfg.Search, cfg.Fetch, cfg.Cache, log)
	batcher := batch.New(svc, cfg.Batch, log)

	return &components{
		Cache: store,
		Relay: svc,
		Batch: batcher,
	}, nil
}

// cliSetup loads config and builds the components for a one-shot subcommand.
// The returned cleanup must be deferred.
func cliSetup() (*components, context.Context, func(), error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("logger: %w", err)
	}

	comp, err := buildComponents(cfg, log)
	if err != nil {
		logCloser()
		return nil, nil, nil, err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cleanup := func() {
		cancel()
		comp.Close()
		logCloser()
	}
	return comp, ctx, cleanup, nil
}

// printJSON writes v to stdout as indented JSON. Results own stdout; logs
// go to stderr.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// positionalArgs strips flag-shaped arguments (and their values where the
// flag takes one) from args, returning the bare positionals.
func positionalArgs(args []string, valueFlags ...string) []string {
	takesValue := make(map[string]bool, len(valueFlags))
	for _, f := range valueFlags {
		takesValue[f] = true
	}
	var out []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			if takesValue[args[i]] && i+1 < len(args) {
				i++
			}
			continue
		}
		out = append(out, args[i])
	}
	return out
}

// flagValue extracts "--name VALUE" or "--name=VALUE" from args.
func flagValue(args []string, name string) string {
	for i, arg := range args {
		if arg == name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"=")
		}
	}
	return ""
}

// hasFlag reports whether the bare flag name appears in args.
func hasFlag(args []string, name string) bool {
	for _, arg := range args {
		if arg == name {
			return true
		}
	}
	return false
}

func runSearch(args []string) error {
	pos := positionalArgs(args, "--max", "--config")
	if len(pos) == 0 {
		return fmt.Errorf("usage: webrelay search QUERY [--max N]")
	}
	query := strings.Join(pos, " ")

	maxResults := 0
	if v := flagValue(args, "--max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("--max wants a positive integer, got %q", v)
		}
		maxResults = n
	}

	comp, ctx, cleanup, err := cliSetup()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := comp.Relay.Search(ctx, query, maxResults)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runFetch(args []string) error {
	pos := positionalArgs(args, "--config")
	if len(pos) != 1 {
		return fmt.Errorf("usage: webrelay fetch URL [--extract]")
	}

	comp, ctx, cleanup, err := cliSetup()
	if err != nil {
		return err
	}
	defer cleanup()

	if hasFlag(args, "--extract") {
		doc, err := comp.Relay.Extract(ctx, pos[0])
		if err != nil {
			return err
		}
		return printJSON(doc)
	}

	result, err := comp.Relay.Fetch(ctx, pos[0], 0)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runBatch(args []string) error {
	pos := positionalArgs(args, "--workers", "--delay", "--config")
	if len(pos) != 2 {
		return fmt.Errorf("usage: webrelay batch OP TARGET,TARGET,... [--workers N] [--delay DUR]")
	}
	op := domain.BatchOperation(pos[0])
	if !domain.KnownOperation(op) {
		return fmt.Errorf("unknown operation %q (want: fetch, analyze, search, extract)", pos[0])
	}

	var targets []string
	for _, t := range strings.Split(pos[1], ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets given")
	}

	workers := 0
	if v := flagValue(args, "--workers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("--workers wants a positive integer, got %q", v)
		}
		workers = n
	}
	var delay time.Duration
	if v := flagValue(args, "--delay"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("--delay wants a duration like 500ms, got %q", v)
		}
		delay = d
	}

	comp, ctx, cleanup, err := cliSetup()
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := comp.Batch.Process(ctx, op, targets, workers, delay)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runStats() error {
	comp, ctx, cleanup, err := cliSetup()
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := comp.Relay.Stats(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runRenew() error {
	comp, ctx, cleanup, err := cliSetup()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := comp.Relay.RenewCircuit(ctx); err != nil {
		return err
	}
	fmt.Println(`{"renewed": true}`)
	return nil
}
