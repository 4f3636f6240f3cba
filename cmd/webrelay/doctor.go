package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"webrelay/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()

	// Try to load config — some checks work without it.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Cache storage", Fn: checkCacheStorage},
		{Name: "SOCKS proxy", Fn: checkProxy},
		{Name: "Control port", Fn: checkControlPort},
		{Name: "Direct network", Fn: checkDirectNetwork},
		{Name: "SearXNG instances", Fn: checkSearxInstances},
	}

	fmt.Println("webrelay doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above to ensure webrelay runs correctly.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nwebrelay should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! webrelay is ready to run.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile returns a check that verifies the config file exists and
// parses correctly. A missing file is a warning, not a failure: defaults work.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s; using defaults", cfgPath),
				Fix:     "Write a config.yaml or point --config at one",
			}
		}
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and values",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkCacheStorage verifies the cache directory is writable. A read-only
// location is survivable (the cache degrades to memory) but worth surfacing.
func checkCacheStorage(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check — config not loaded"}
	}

	dir := filepath.Dir(cfg.Cache.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("cannot create cache directory %s: %v", dir, err),
			Fix:     "Point cache.path at a writable location; until then the cache is memory-only",
		}
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("cache directory %s is not writable: %v", dir, err),
			Fix:     "Fix permissions on the cache directory; until then the cache is memory-only",
		}
	}
	os.Remove(probe)
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("cache directory %s is writable", dir),
	}
}

// checkProxy verifies the SOCKS proxy accepts connections.
func checkProxy(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check — config not loaded"}
	}
	if !cfg.Transport.ProxyEnabled {
		return CheckResult{
			Status:  StatusWarn,
			Message: "proxy disabled; all requests go out directly",
		}
	}

	conn, err := net.DialTimeout("tcp", cfg.Transport.ProxyAddr, 3*time.Second)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("SOCKS proxy unreachable at %s: %v", cfg.Transport.ProxyAddr, err),
			Fix:     "Start the proxy, or set transport.proxy_enabled: false to go direct-only",
		}
	}
	conn.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("SOCKS proxy reachable at %s", cfg.Transport.ProxyAddr),
	}
}

// checkControlPort verifies the proxy control port accepts connections.
// Circuit renewal needs it; everything else works without.
func checkControlPort(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check — config not loaded"}
	}
	if !cfg.Transport.ProxyEnabled {
		return CheckResult{Status: StatusPass, Message: "not needed (proxy disabled)"}
	}

	conn, err := net.DialTimeout("tcp", cfg.Transport.ControlAddr, 3*time.Second)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("control port unreachable at %s: %v", cfg.Transport.ControlAddr, err),
			Fix:     "Enable ControlPort in the proxy config; circuit renewal is unavailable until then",
		}
	}
	conn.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("control port reachable at %s", cfg.Transport.ControlAddr),
	}
}

// checkDirectNetwork verifies plain outbound HTTPS works.
func checkDirectNetwork(_ *config.Config) CheckResult {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Head("https://duckduckgo.com")
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("direct HTTPS failed: %v", err),
			Fix:     "Check network connectivity; the direct strategy will not work",
		}
	}
	resp.Body.Close()
	return CheckResult{
		Status:  StatusPass,
		Message: "direct HTTPS works",
	}
}

// checkSearxInstances probes the configured SearXNG pool directly and
// reports how many instances answer.
func checkSearxInstances(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check — config not loaded"}
	}
	instances := cfg.Search.SearXNG.Instances
	if len(instances) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no SearXNG instances configured",
			Fix:     "List instances under search.searxng.instances",
		}
	}

	client := &http.Client{Timeout: 5 * time.Second}
	var reachable int
	for _, inst := range instances {
		resp, err := client.Head(inst)
		if err != nil {
			continue
		}
		resp.Body.Close()
		reachable++
	}

	switch {
	case reachable == 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("0/%d instances reachable directly (they may still answer through the proxy)", len(instances)),
			Fix:     "Refresh the instance list if this persists",
		}
	case reachable < len(instances):
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%d/%d instances reachable", reachable, len(instances)),
		}
	default:
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%d/%d instances reachable", reachable, len(instances)),
		}
	}
}
