// Package mcpserver exposes the relay's operations as MCP tools over a
// stdio transport. Tool handlers delegate to the usecases; execution
// failures come back as error results so the calling model sees them,
// while protocol-level problems surface as JSON-RPC errors.
package mcpserver

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"webrelay/internal/domain"
	"webrelay/internal/infra/tracer"
)

const (
	serverName    = "webrelay"
	serverVersion = "1.0.0"
)

// Relay is the request-side surface the tools call into.
type Relay interface {
	Search(ctx context.Context, query string, maxResults int) (*domain.SearchResponse, error)
	Fetch(ctx context.Context, rawURL string, maxTokens int) (*domain.FetchResult, error)
	Analyze(ctx context.Context, rawURL string) (*domain.PageAnalysis, error)
	Extract(ctx context.Context, rawURL string) (*domain.Document, error)
	RenewCircuit(ctx context.Context) error
	Stats(ctx context.Context) (domain.RelayStats, error)
}

// Batcher runs one operation across many targets. Zero pool overrides keep
// the configured defaults.
type Batcher interface {
	Process(ctx context.Context, op domain.BatchOperation, targets []string, workerLimit int, interBatchDelay time.Duration) (*domain.BatchReport, error)
}

// Server wraps an MCP server with the relay tool set.
type Server struct {
	mcp    *server.MCPServer
	relay  Relay
	batch  Batcher
	logger *slog.Logger
}

func New(relay Relay, batch Batcher, logger *slog.Logger) *Server {
	s := &Server{
		relay:  relay,
		batch:  batch,
		logger: logger,
	}
	s.mcp = server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(s.instrument),
	)
	s.registerTools()
	return s
}

// Serve runs the stdio transport until ctx is canceled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server listening",
		"transport", "stdio", "name", serverName, "version", serverVersion)
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// instrument wraps every tool handler with a span and an outcome log line.
func (s *Server) instrument(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.Params.Name
		ctx, span := tracer.StartSpan(ctx, "mcp.tool_call",
			trace.WithAttributes(tracer.StringAttr("mcp.tool", name)),
		)
		defer span.End()

		start := time.Now()
		res, err := next(ctx, req)
		switch {
		case err != nil:
			tracer.RecordError(span, err)
			s.logger.Error("tool call failed", "tool", name, "error", err, "duration", time.Since(start))
		case res != nil && res.IsError:
			s.logger.Warn("tool call returned error result", "tool", name, "duration", time.Since(start))
		default:
			tracer.SetOK(span)
			s.logger.Info("tool call completed", "tool", name, "duration", time.Since(start))
		}
		return res, err
	}
}
