// Package batch runs one relay operation across many targets with bounded
// concurrency. Items are processed in waves of the worker limit, results
// keep input order, and one item's failure never disturbs the others.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"webrelay/internal/domain"
	"webrelay/internal/infra/config"
)

// Relay is the per-item operation surface. The relay service satisfies it.
type Relay interface {
	Search(ctx context.Context, query string, maxResults int) (*domain.SearchResponse, error)
	Fetch(ctx context.Context, rawURL string, maxTokens int) (*domain.FetchResult, error)
	Analyze(ctx context.Context, rawURL string) (*domain.PageAnalysis, error)
	Extract(ctx context.Context, rawURL string) (*domain.Document, error)
}

type Service struct {
	relay  Relay
	cfg    config.BatchConfig
	logger *slog.Logger
	now    func() time.Time
}

func New(relay Relay, cfg config.BatchConfig, logger *slog.Logger) *Service {
	return &Service{relay: relay, cfg: cfg, logger: logger, now: time.Now}
}

// Process applies op to every target and reports per-item outcomes in input
// order. An empty target list is a valid, empty job. Waves of workerLimit
// items run concurrently with interBatchDelay between waves; the delay never
// trails the final wave. Zero values fall back to the configured defaults,
// and the configured worker limit is a ceiling a caller cannot raise.
func (s *Service) Process(ctx context.Context, op domain.BatchOperation, targets []string, workerLimit int, interBatchDelay time.Duration) (*domain.BatchReport, error) {
	started := s.now()

	if !domain.KnownOperation(op) {
		return nil, domain.NewDomainError("Batch.Process", domain.ErrUnknownOperation, string(op))
	}
	if s.cfg.MaxItems > 0 && len(targets) > s.cfg.MaxItems {
		return nil, domain.NewDomainError("Batch.Process", domain.ErrInvalidInput,
			fmt.Sprintf("%d targets exceeds limit of %d", len(targets), s.cfg.MaxItems))
	}

	report := &domain.BatchReport{
		JobID:     s.newJobID(started),
		Operation: op,
		Total:     len(targets),
		Results:   make([]domain.BatchItemResult, len(targets)),
	}
	if len(targets) == 0 {
		return report, nil
	}

	workers := workerLimit
	if workers <= 0 || (s.cfg.WorkerLimit > 0 && workers > s.cfg.WorkerLimit) {
		workers = s.cfg.WorkerLimit
	}
	if workers <= 0 {
		workers = 1
	}
	delay := interBatchDelay
	if delay <= 0 {
		delay = s.cfg.InterBatchDelay
	}

	s.logger.Info("batch: job started",
		"job_id", report.JobID, "operation", string(op), "items", len(targets), "workers", workers)

	for start := 0; start < len(targets); start += workers {
		end := start + workers
		if end > len(targets) {
			end = len(targets)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				report.Results[i] = s.processOne(gctx, op, targets[i], i)
				return nil
			})
		}
		// Workers report failures in their slot, never as errors.
		_ = g.Wait()

		if end < len(targets) && delay > 0 {
			if err := sleepCtx(ctx, delay); err != nil {
				// Remaining items fail fast against the dead context.
				continue
			}
		}
	}

	for _, r := range report.Results {
		if r.Success {
			report.Successful++
		} else {
			report.Failed++
		}
	}
	report.ProcessingMS = s.now().Sub(started).Milliseconds()
	report.AverageMS = report.ProcessingMS / int64(len(targets))

	s.logger.Info("batch: job finished",
		"job_id", report.JobID, "successful", report.Successful, "failed", report.Failed,
		"elapsed_ms", report.ProcessingMS)
	return report, nil
}

// processOne runs a single item and never panics the wave: any failure,
// including a panic in the operation, is captured in the result row.
func (s *Service) processOne(ctx context.Context, op domain.BatchOperation, target string, index int) (result domain.BatchItemResult) {
	started := s.now()
	result = domain.BatchItemResult{Target: target, Index: index, Operation: op}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("batch: item panicked", "target", target, "index", index, "panic", r)
			result.Success = false
			result.Payload = nil
			result.Error = fmt.Sprintf("panic: %v", r)
			result.ElapsedMS = s.now().Sub(started).Milliseconds()
		}
	}()

	var payload any
	var err error
	switch op {
	case domain.OpFetch:
		payload, err = s.relay.Fetch(ctx, target, 0)
	case domain.OpAnalyze:
		payload, err = s.relay.Analyze(ctx, target)
	case domain.OpSearch:
		payload, err = s.relay.Search(ctx, target, 0)
	case domain.OpExtract:
		payload, err = s.relay.Extract(ctx, target)
	default:
		err = domain.NewDomainError("Batch.processOne", domain.ErrUnknownOperation, string(op))
	}

	result.ElapsedMS = s.now().Sub(started).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		result.Error = fmt.Sprintf("encode result: %v", err)
		return result
	}
	result.Success = true
	result.Payload = raw
	return result
}

func (s *Service) newJobID(t time.Time) string {
	entropy := rand.New(rand.NewSource(t.UnixNano()))
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
