package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"webrelay/internal/domain"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("web_search",
		mcp.WithDescription("Search the web. Queries the configured engines in order, skipping any whose circuit is open, and returns ranked results. Repeated queries may be served from cache."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("max_results", mcp.Description("Maximum results to return; omit for the configured limit")),
	), s.handleSearch)

	s.mcp.AddTool(mcp.NewTool("fetch_url",
		mcp.WithDescription("Fetch a web page. Returns the raw content truncated to a token budget, or with extract set, the page's readable text, metadata and classified links. Scheme defaults to https when omitted."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
		mcp.WithNumber("max_tokens", mcp.Description("Token budget for the returned content; omit for the configured limit")),
		mcp.WithBoolean("extract", mcp.Description("Extract readable text, metadata and links instead of returning raw content")),
	), s.handleFetch)

	s.mcp.AddTool(mcp.NewTool("batch_process",
		mcp.WithDescription("Run one operation across many targets with bounded concurrency. Targets are URLs, or queries for the search operation. Each item succeeds or fails on its own."),
		mcp.WithString("operation", mcp.Required(),
			mcp.Description("Operation to apply to every target"),
			mcp.Enum("fetch", "analyze", "search", "extract")),
		mcp.WithArray("targets", mcp.Required(),
			mcp.Description("Targets to process, in order"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("worker_limit", mcp.Description("Concurrent items per wave; capped at the configured limit")),
		mcp.WithNumber("delay_ms", mcp.Description("Pause between waves in milliseconds; omit for the configured pause")),
	), s.handleBatch)

	s.mcp.AddTool(mcp.NewTool("analyze_url",
		mcp.WithDescription("Fetch a page and report its structure: content size, word and line counts, title, description, and whether it carries forms, scripts, images or links."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Page URL")),
	), s.handleAnalyze)

	s.mcp.AddTool(mcp.NewTool("renew_circuit",
		mcp.WithDescription("Request a fresh proxy circuit so subsequent requests leave through a new exit."),
	), s.handleRenewCircuit)

	s.mcp.AddTool(mcp.NewTool("relay_stats",
		mcp.WithDescription("Report relay health: cache usage, transport strategy success rates and search engine circuit states."),
	), s.handleStats)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	maxResults := req.GetInt("max_results", 0)

	resp, err := s.relay.Search(ctx, query, maxResults)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(resp)
}

func (s *Server) handleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if req.GetBool("extract", false) {
		doc, err := s.relay.Extract(ctx, rawURL)
		if err != nil {
			return toolError(err), nil
		}
		return toolJSON(doc)
	}

	result, err := s.relay.Fetch(ctx, rawURL, req.GetInt("max_tokens", 0))
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(result)
}

func (s *Server) handleBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Operation   string   `json:"operation"`
		Targets     []string `json:"targets"`
		WorkerLimit int      `json:"worker_limit"`
		DelayMS     int      `json:"delay_ms"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := s.batch.Process(ctx, domain.BatchOperation(args.Operation), args.Targets,
		args.WorkerLimit, time.Duration(args.DelayMS)*time.Millisecond)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(report)
}

func (s *Server) handleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	analysis, err := s.relay.Analyze(ctx, rawURL)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(analysis)
}

func (s *Server) handleRenewCircuit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.relay.RenewCircuit(ctx); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(`{"renewed":true}`), nil
}

func (s *Server) handleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.relay.Stats(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(stats)
}

// toolJSON encodes v as the tool's text result.
func toolJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError tags the result with the machine-parseable error code.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", domain.ErrorCodeOf(err), err))
}
