package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Cache       CacheConfig       `yaml:"cache"`
	Transport   TransportConfig   `yaml:"transport"`
	Search      SearchConfig      `yaml:"search"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Batch       BatchConfig       `yaml:"batch"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Logger      LoggerConfig      `yaml:"logger"`
	Tracer      TracerConfig      `yaml:"tracer"`
}

// CacheConfig holds response cache settings. SearchTTL and FetchTTL are the
// per-operation-class lifetimes applied when callers store entries.
type CacheConfig struct {
	Path       string        `yaml:"path"`
	MaxEntries int           `yaml:"max_entries"`
	SearchTTL  time.Duration `yaml:"search_ttl"`
	FetchTTL   time.Duration `yaml:"fetch_ttl"`
}

// TransportConfig holds outbound transport settings. ProxyAddr and BridgeAddr
// are SOCKS5 endpoints; ControlAddr speaks the tor control protocol for
// circuit renewal.
type TransportConfig struct {
	ProxyEnabled    bool          `yaml:"proxy_enabled"`
	ProxyAddr       string        `yaml:"proxy_addr"`
	BridgeAddr      string        `yaml:"bridge_addr"`
	ControlAddr     string        `yaml:"control_addr"`
	ControlPassword string        `yaml:"control_password,omitempty"`
	AllowPrivate    bool          `yaml:"allow_private"`
	MinAttemptPause time.Duration `yaml:"min_attempt_pause"`
	MaxAttemptPause time.Duration `yaml:"max_attempt_pause"`
	RenewalInterval time.Duration `yaml:"renewal_interval"`
}

// EngineConfig tunes one search engine's circuit breaker. Engines are
// consulted in the order they appear.
type EngineConfig struct {
	Name             string        `yaml:"name"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// SearXNGConfig holds settings for the SearXNG engine's instance pool.
type SearXNGConfig struct {
	Instances    []string      `yaml:"instances"`
	MaxPerQuery  int           `yaml:"max_per_query"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// SearchConfig holds search orchestration settings.
type SearchConfig struct {
	Engines        []EngineConfig `yaml:"engines"`
	MaxResults     int            `yaml:"max_results"`
	PacingInterval time.Duration  `yaml:"pacing_interval"`
	OverallTimeout time.Duration  `yaml:"overall_timeout"`
	SearXNG        SearXNGConfig  `yaml:"searxng"`
}

// FetchConfig holds single-URL retrieval settings.
type FetchConfig struct {
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// BatchConfig holds parallel batch processing settings.
type BatchConfig struct {
	WorkerLimit     int           `yaml:"worker_limit"`
	InterBatchDelay time.Duration `yaml:"inter_batch_delay"`
	MaxItems        int           `yaml:"max_items"`
}

// MaintenanceConfig holds background maintenance settings. Schedules use
// cron expressions, including the "@every 10m" form.
type MaintenanceConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SweepSchedule string `yaml:"sweep_schedule"`
	StatsSchedule string `yaml:"stats_schedule"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.webrelay.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".webrelay")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Cache: CacheConfig{
			Path:       filepath.Join(defaultDataDir(), "cache.db"),
			MaxEntries: 1000,
			SearchTTL:  time.Hour,
			FetchTTL:   5 * time.Minute,
		},
		Transport: TransportConfig{
			ProxyEnabled:    true,
			ProxyAddr:       "127.0.0.1:9050",
			BridgeAddr:      "127.0.0.1:9150",
			ControlAddr:     "127.0.0.1:9051",
			AllowPrivate:    false,
			MinAttemptPause: time.Second,
			MaxAttemptPause: 3 * time.Second,
			RenewalInterval: 10 * time.Second,
		},
		Search: SearchConfig{
			Engines: []EngineConfig{
				{Name: "searx", FailureThreshold: 3, Cooldown: 30 * time.Second},
				{Name: "duckduckgo", FailureThreshold: 2, Cooldown: 45 * time.Second},
			},
			MaxResults:     10,
			PacingInterval: 2 * time.Second,
			OverallTimeout: 30 * time.Second,
			SearXNG: SearXNGConfig{
				Instances: []string{
					"https://searx.be",
					"https://searx.tiekoetter.com",
					"https://searx.fmac.xyz",
					"https://search.ononoki.org",
					"https://searx.work",
				},
				MaxPerQuery:  3,
				QueryTimeout: 15 * time.Second,
			},
		},
		Fetch: FetchConfig{
			MaxTokens:    10000,
			Timeout:      30 * time.Second,
			MaxBodyBytes: 5 * 1024 * 1024, // 5 MiB
		},
		Batch: BatchConfig{
			WorkerLimit:     5,
			InterBatchDelay: time.Second,
			MaxItems:        100,
		},
		Maintenance: MaintenanceConfig{
			Enabled:       true,
			SweepSchedule: "@every 10m",
			StatsSchedule: "@every 1h",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing
// file is not an error; defaults plus env overrides are used instead.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps WEBRELAY_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEBRELAY_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("WEBRELAY_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("WEBRELAY_CACHE_SEARCH_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Cache.SearchTTL = d
		}
	}
	if v := os.Getenv("WEBRELAY_CACHE_FETCH_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Cache.FetchTTL = d
		}
	}
	if v := os.Getenv("WEBRELAY_TRANSPORT_PROXY_ENABLED"); v == "false" {
		cfg.Transport.ProxyEnabled = false
	}
	if v := os.Getenv("WEBRELAY_TRANSPORT_PROXY_ADDR"); v != "" {
		cfg.Transport.ProxyAddr = v
	}
	if v := os.Getenv("WEBRELAY_TRANSPORT_BRIDGE_ADDR"); v != "" {
		cfg.Transport.BridgeAddr = v
	}
	if v := os.Getenv("WEBRELAY_TRANSPORT_CONTROL_ADDR"); v != "" {
		cfg.Transport.ControlAddr = v
	}
	if v := os.Getenv("WEBRELAY_TRANSPORT_CONTROL_PASSWORD"); v != "" {
		cfg.Transport.ControlPassword = v
	}
	if v := os.Getenv("WEBRELAY_TRANSPORT_ALLOW_PRIVATE"); v == "true" {
		cfg.Transport.AllowPrivate = true
	}
	if v := os.Getenv("WEBRELAY_SEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Search.MaxResults = n
		}
	}
	if v := os.Getenv("WEBRELAY_SEARCH_PACING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Search.PacingInterval = d
		}
	}
	if v := os.Getenv("WEBRELAY_SEARCH_OVERALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Search.OverallTimeout = d
		}
	}
	if v := os.Getenv("WEBRELAY_SEARCH_SEARXNG_INSTANCES"); v != "" {
		cfg.Search.SearXNG.Instances = splitAndTrim(v, ",")
	}
	if v := os.Getenv("WEBRELAY_FETCH_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Fetch.MaxTokens = n
		}
	}
	if v := os.Getenv("WEBRELAY_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Fetch.Timeout = d
		}
	}
	if v := os.Getenv("WEBRELAY_BATCH_WORKER_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Batch.WorkerLimit = n
		}
	}
	if v := os.Getenv("WEBRELAY_BATCH_INTER_BATCH_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Batch.InterBatchDelay = d
		}
	}
	if v := os.Getenv("WEBRELAY_MAINTENANCE_ENABLED"); v == "false" {
		cfg.Maintenance.Enabled = false
	}
	if v := os.Getenv("WEBRELAY_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("WEBRELAY_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("WEBRELAY_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("WEBRELAY_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("WEBRELAY_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// splitAndTrim splits s on sep and trims whitespace, dropping empty parts.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
