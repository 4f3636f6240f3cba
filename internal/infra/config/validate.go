package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateCache(cfg, ve)
	validateTransport(cfg, ve)
	validateSearch(cfg, ve)
	validateFetch(cfg, ve)
	validateBatch(cfg, ve)
	validateMaintenance(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateCache(cfg *Config, ve *ValidationError) {
	if cfg.Cache.Path == "" {
		ve.Add("cache.path must not be empty")
	}
	if cfg.Cache.MaxEntries <= 0 {
		ve.Add("cache.max_entries must be > 0")
	}
	if cfg.Cache.SearchTTL <= 0 {
		ve.Add("cache.search_ttl must be > 0")
	}
	if cfg.Cache.FetchTTL <= 0 {
		ve.Add("cache.fetch_ttl must be > 0")
	}
}

func validateTransport(cfg *Config, ve *ValidationError) {
	t := cfg.Transport
	if t.ProxyEnabled {
		for name, addr := range map[string]string{
			"transport.proxy_addr":   t.ProxyAddr,
			"transport.bridge_addr":  t.BridgeAddr,
			"transport.control_addr": t.ControlAddr,
		} {
			if addr == "" {
				ve.Add("%s is required when the proxy is enabled", name)
				continue
			}
			if _, _, err := net.SplitHostPort(addr); err != nil {
				ve.Add("%s %q is not a valid host:port", name, addr)
			}
		}
	}
	if t.MinAttemptPause <= 0 {
		ve.Add("transport.min_attempt_pause must be > 0")
	}
	if t.MaxAttemptPause < t.MinAttemptPause {
		ve.Add("transport.max_attempt_pause must be >= transport.min_attempt_pause")
	}
	if t.RenewalInterval <= 0 {
		ve.Add("transport.renewal_interval must be > 0")
	}
}

var validEngineNames = map[string]bool{
	"searx":      true,
	"duckduckgo": true,
}

func validateSearch(cfg *Config, ve *ValidationError) {
	s := cfg.Search
	if len(s.Engines) == 0 {
		ve.Add("search.engines must list at least one engine")
	}
	seen := make(map[string]bool)
	needsSearXNG := false
	for i, e := range s.Engines {
		if e.Name == "" {
			ve.Add("search.engines[%d].name must not be empty", i)
			continue
		}
		if !validEngineNames[e.Name] {
			ve.Add("search.engines[%d].name %q is invalid (want: searx, duckduckgo)", i, e.Name)
		}
		if seen[e.Name] {
			ve.Add("search.engines[%d]: duplicate engine name %q", i, e.Name)
		}
		seen[e.Name] = true
		if e.Name == "searx" {
			needsSearXNG = true
		}
		if e.FailureThreshold <= 0 {
			ve.Add("search.engines[%d].failure_threshold must be > 0", i)
		}
		if e.Cooldown <= 0 {
			ve.Add("search.engines[%d].cooldown must be > 0", i)
		}
	}
	if s.MaxResults <= 0 {
		ve.Add("search.max_results must be > 0")
	}
	if s.PacingInterval < 0 {
		ve.Add("search.pacing_interval must be >= 0")
	}
	if s.OverallTimeout <= 0 {
		ve.Add("search.overall_timeout must be > 0")
	}
	if needsSearXNG {
		if len(s.SearXNG.Instances) == 0 {
			ve.Add("search.searxng.instances must list at least one instance when the searx engine is configured")
		}
		for i, inst := range s.SearXNG.Instances {
			u, err := url.Parse(inst)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				ve.Add("search.searxng.instances[%d] %q is not a valid http(s) URL", i, inst)
			}
		}
		if s.SearXNG.MaxPerQuery <= 0 {
			ve.Add("search.searxng.max_per_query must be > 0")
		}
		if s.SearXNG.QueryTimeout <= 0 {
			ve.Add("search.searxng.query_timeout must be > 0")
		}
	}
}

func validateFetch(cfg *Config, ve *ValidationError) {
	if cfg.Fetch.MaxTokens <= 0 {
		ve.Add("fetch.max_tokens must be > 0")
	}
	if cfg.Fetch.Timeout <= 0 {
		ve.Add("fetch.timeout must be > 0")
	}
	if cfg.Fetch.MaxBodyBytes <= 0 {
		ve.Add("fetch.max_body_bytes must be > 0")
	}
}

func validateBatch(cfg *Config, ve *ValidationError) {
	if cfg.Batch.WorkerLimit <= 0 {
		ve.Add("batch.worker_limit must be > 0")
	}
	if cfg.Batch.InterBatchDelay < 0 {
		ve.Add("batch.inter_batch_delay must be >= 0")
	}
	if cfg.Batch.MaxItems <= 0 {
		ve.Add("batch.max_items must be > 0")
	}
}

func validateMaintenance(cfg *Config, ve *ValidationError) {
	if !cfg.Maintenance.Enabled {
		return
	}
	if cfg.Maintenance.SweepSchedule == "" {
		ve.Add("maintenance.sweep_schedule is required when maintenance is enabled")
	}
	if cfg.Maintenance.StatsSchedule == "" {
		ve.Add("maintenance.stats_schedule is required when maintenance is enabled")
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if cfg.Logger.Level != "" && !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	// stdout carries the MCP wire protocol, so logs may not go there.
	if strings.ToLower(cfg.Logger.Output) == "stdout" {
		ve.Add("logger.output must not be stdout (reserved for the stdio transport); use stderr or a file path")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stderr", "noop", "":
	default:
		ve.Add("tracer.exporter %q is invalid (want: stderr, noop)", cfg.Tracer.Exporter)
	}
}
