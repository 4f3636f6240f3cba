package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"webrelay/internal/adapter/mcpserver"
	"webrelay/internal/infra/config"
	"webrelay/internal/infra/logger"
	"webrelay/internal/infra/tracer"
	"webrelay/internal/usecase/maintenance"
)

func main() {
	// Handle help flag first
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "search":
		if err := runSearch(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "search: %v\n", err)
			os.Exit(1)
		}
	case "fetch":
		if err := runFetch(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "fetch: %v\n", err)
			os.Exit(1)
		}
	case "batch":
		if err := runBatch(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "batch: %v\n", err)
			os.Exit(1)
		}
	case "stats":
		if err := runStats(); err != nil {
			fmt.Fprintf(os.Stderr, "stats: %v\n", err)
			os.Exit(1)
		}
	case "renew":
		if err := runRenew(); err != nil {
			fmt.Fprintf(os.Stderr, "renew: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'webrelay --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`webrelay - Resilient web search and fetch relay

USAGE:
    webrelay [COMMAND] [FLAGS]

COMMANDS:
    search QUERY       Search the web across the configured engines
                       Flags: --max N (result count)
    fetch URL          Fetch one page, truncated to the token budget
                       Flags: --extract (structured text, metadata, links)
    batch OP TARGETS   Run OP (fetch|analyze|search|extract) across
                       comma-separated targets
                       Flags: --workers N, --delay DUR
    stats              Print cache, transport and engine health
    renew              Request a fresh proxy circuit
    doctor             Run health checks on your setup

    (no command) - Serve MCP tools over stdio with existing config

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: WEBRELAY_* variables override config

EXAMPLES:
    webrelay                              # Serve MCP over stdio
    webrelay search "site outage status" --max 5
    webrelay fetch https://example.org --extract
    webrelay batch analyze https://a.example,https://b.example
    webrelay doctor                       # Check system health`)
}

// configPath resolves the config file path from --config or the environment.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("WEBRELAY_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// run serves the MCP tool set over stdio until stdin closes or a signal
// arrives. Background maintenance runs alongside the server.
func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Relay components (cache, transport, engines, orchestrator, batch)
	comp, err := buildComponents(cfg, log)
	if err != nil {
		return err
	}
	defer comp.Close()

	// 4. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 5. Maintenance schedule
	maint := maintenance.NewManager(comp.Cache, comp.Relay, cfg.Maintenance, log)
	if err := maint.Start(ctx); err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	defer maint.Stop()

	// 6. MCP stdio server
	srv := mcpserver.New(comp.Relay, comp.Batch, log)
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	log.Info("shutting down")
	return nil
}
