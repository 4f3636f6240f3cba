// Package maintenance runs the relay's background upkeep: scheduled cache
// sweeps and periodic health logging. One sweep also runs at startup so a
// long-lived cache is trimmed before the first request.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"webrelay/internal/domain"
	"webrelay/internal/infra/config"
)

const taskTimeout = time.Minute

// Sweeper purges expired cache entries.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// StatsSource snapshots relay health for the periodic log line.
type StatsSource interface {
	Stats(ctx context.Context) (domain.RelayStats, error)
}

// Manager owns the maintenance schedule.
type Manager struct {
	cron    *cron.Cron
	sweeper Sweeper
	stats   StatsSource
	cfg     config.MaintenanceConfig
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewManager(sweeper Sweeper, stats StatsSource, cfg config.MaintenanceConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cron:    cron.New(),
		sweeper: sweeper,
		stats:   stats,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start schedules the tasks and kicks off the startup sweep. Disabled
// maintenance is a no-op Start.
func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.logger.Info("maintenance: disabled")
		return nil
	}

	sweepSched, err := parseSchedule(m.cfg.SweepSchedule)
	if err != nil {
		return fmt.Errorf("maintenance: sweep schedule: %w", err)
	}
	statsSched, err := parseSchedule(m.cfg.StatsSchedule)
	if err != nil {
		return fmt.Errorf("maintenance: stats schedule: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.cron.Schedule(sweepSched, cron.FuncJob(m.runSweep))
	m.cron.Schedule(statsSched, cron.FuncJob(m.runStats))
	m.cron.Start()
	m.started = true
	m.logger.Info("maintenance: started",
		"sweep_schedule", m.cfg.SweepSchedule, "stats_schedule", m.cfg.StatsSchedule)

	go m.runSweep()
	return nil
}

// Stop halts the schedule and waits for any running task to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.cancel()
	stopCtx := m.cron.Stop()
	m.started = false
	m.mu.Unlock()

	// Wait outside the lock so a task blocked in taskCtx can drain.
	<-stopCtx.Done()
	m.logger.Info("maintenance: stopped")
}

// taskCtx returns a bounded context for one task run, or nil after Stop.
func (m *Manager) taskCtx() (context.Context, context.CancelFunc) {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return nil, nil
	}
	return context.WithTimeout(ctx, taskTimeout)
}

func (m *Manager) runSweep() {
	ctx, cancel := m.taskCtx()
	if ctx == nil {
		return
	}
	defer cancel()

	start := time.Now()
	purged, err := m.sweeper.Sweep(ctx)
	if err != nil {
		m.logger.Warn("maintenance: sweep failed", "error", err, "duration", time.Since(start))
		return
	}
	m.logger.Info("maintenance: sweep completed", "purged", purged, "duration", time.Since(start))
}

func (m *Manager) runStats() {
	ctx, cancel := m.taskCtx()
	if ctx == nil {
		return
	}
	defer cancel()

	stats, err := m.stats.Stats(ctx)
	if err != nil {
		m.logger.Warn("maintenance: stats unavailable", "error", err)
		return
	}

	open := 0
	for _, e := range stats.Engines {
		if e.State != "closed" {
			open++
		}
	}
	m.logger.Info("maintenance: relay health",
		"cache_backend", stats.Cache.Backend,
		"cache_entries", stats.Cache.Size,
		"cache_hit_rate", stats.Cache.HitRate,
		"cache_evictions", stats.Cache.Evictions,
		"strategies", len(stats.Strategies),
		"engines_degraded", open)
}

// parseSchedule tries a cron expression first, then falls back to a plain
// duration interval.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return &intervalSchedule{every: dur}, nil
}

// intervalSchedule implements cron.Schedule for a fixed interval. Unlike
// cron.Every() it supports sub-second durations.
type intervalSchedule struct {
	every time.Duration
}

func (s *intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.every)
}
