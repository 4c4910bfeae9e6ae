// Package importer orchestrates full import runs: for every address and
// operation type it drives a resumable stream through the failover
// executor and lands the results in storage.
//
// Responsibilities:
//
// # Fan-out
//
// Operation types fan out concurrently per address. A failed required
// operation fails the run; a failed optional operation only logs.
//
// # Durability ordering
//
// Batches are written to storage before the checkpoint advances, so a
// crash between the two replays the batch instead of losing it. Storage
// writes are idempotent upserts, which keeps the replay harmless.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
	"github.com/mkral/importer/internal/importing/metrics"
	"github.com/mkral/importer/internal/infra/rpc/breaker"
	"github.com/mkral/importer/internal/infra/rpc/health"
	"github.com/mkral/importer/internal/infra/rpc/provider"
	"github.com/mkral/importer/internal/infra/rpc/ratelimit"
	"github.com/mkral/importer/internal/infra/rpc/routing"
	"github.com/mkral/importer/internal/infra/storage"
)

// Config wires an Importer.
type Config struct {
	Chain     domain.Blockchain
	Providers []provider.Provider

	Limiter  *ratelimit.Limiter
	Executor *routing.Executor
	Breaker  *breaker.Breaker
	Health   *health.Tracker

	Cursors      *cursor.Manager
	Transactions storage.TransactionRepository

	Logger *slog.Logger

	PageSize          int
	PerAttemptTimeout time.Duration
	TotalTimeout      time.Duration

	// RequiredOperations must all succeed for a run to succeed.
	// OptionalOperations are best-effort.
	RequiredOperations []domain.OperationKind
	OptionalOperations []domain.OperationKind
}

// Job is one import request.
type Job struct {
	Addresses []string
	Asset     string
}

// StreamOutcome summarizes one address/operation stream within a run.
type StreamOutcome struct {
	StreamID string
	Kind     domain.OperationKind
	Address  string
	Imported int
	Pages    int
	Err      error
	Required bool
}

// RunReport is the result of a whole run.
type RunReport struct {
	RunID      string
	Chain      domain.Blockchain
	Duration   time.Duration
	Imported   int
	Duplicates uint64
	Streams    []StreamOutcome
}

// Failed reports whether any required stream failed.
func (r *RunReport) Failed() bool {
	for _, s := range r.Streams {
		if s.Required && s.Err != nil {
			return true
		}
	}
	return false
}

// Importer runs imports for one chain.
type Importer struct {
	cfg Config
	log *slog.Logger
}

// New creates an importer. Defaults: page size 100, 30s per attempt,
// 5m total per page.
func New(cfg Config) *Importer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.PerAttemptTimeout <= 0 {
		cfg.PerAttemptTimeout = 30 * time.Second
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = 5 * time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Importer{cfg: cfg, log: log.With("chain", cfg.Chain)}
}

// Run imports all configured operation types for every address in the
// job. Duplicate records are suppressed across the whole run, so the
// same transfer seen from two addresses of one wallet lands once.
func (i *Importer) Run(ctx context.Context, job Job) (*RunReport, error) {
	if len(job.Addresses) == 0 {
		return nil, errors.New("import run: no addresses")
	}

	start := time.Now()
	report := &RunReport{
		RunID: uuid.NewString(),
		Chain: i.cfg.Chain,
	}
	dedup := cursor.NewDeduper()

	log := i.log.With("run_id", report.RunID)
	log.Info("import run started",
		"addresses", len(job.Addresses),
		"required_ops", len(i.cfg.RequiredOperations),
		"optional_ops", len(i.cfg.OptionalOperations))

	var (
		mu       sync.Mutex
		imported int
	)

	for _, address := range job.Addresses {
		var wg sync.WaitGroup

		run := func(kind domain.OperationKind, required bool) {
			defer wg.Done()

			outcome := i.importStream(ctx, log, kind, address, job.Asset, dedup)
			outcome.Required = required

			mu.Lock()
			imported += outcome.Imported
			report.Streams = append(report.Streams, outcome)
			mu.Unlock()

			if outcome.Err == nil {
				return
			}
			if required {
				log.Error("required operation failed",
					"operation", kind, "address", address, "error", outcome.Err)
			} else {
				log.Warn("optional operation failed",
					"operation", kind, "address", address, "error", outcome.Err)
			}
		}

		for _, kind := range i.cfg.RequiredOperations {
			wg.Add(1)
			go run(kind, true)
		}
		for _, kind := range i.cfg.OptionalOperations {
			wg.Add(1)
			go run(kind, false)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	report.Imported = imported
	report.Duplicates = dedup.Dropped()
	report.Duration = time.Since(start)

	result := "ok"
	var err error
	if report.Failed() {
		result = "failed"
		err = fmt.Errorf("import run %s: required operation failed", report.RunID)
	}
	metrics.RunsTotal.WithLabelValues(string(i.cfg.Chain), result).Inc()
	metrics.RunDuration.WithLabelValues(string(i.cfg.Chain)).Observe(report.Duration.Seconds())

	log.Info("import run finished",
		"result", result,
		"imported", report.Imported,
		"duplicates", report.Duplicates,
		"duration", report.Duration)

	return report, err
}

// importStream drives one resumable stream to completion.
func (i *Importer) importStream(
	ctx context.Context,
	log *slog.Logger,
	kind domain.OperationKind,
	address, asset string,
	dedup *cursor.Deduper,
) StreamOutcome {
	outcome := StreamOutcome{
		StreamID: StreamID(i.cfg.Chain, kind, address, asset),
		Kind:     kind,
		Address:  address,
	}
	chainLabel := string(i.cfg.Chain)
	opLabel := string(kind)

	resume, err := i.cfg.Cursors.Load(ctx, outcome.StreamID)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	if resume != nil {
		log.Debug("resuming stream",
			"stream", outcome.StreamID, "total_fetched", resume.TotalFetched)
	}

	candidates := routing.Select(i.limited(), i.cfg.Health, i.cfg.Breaker, time.Now(), routing.SelectOptions{
		Filter: func(p provider.Provider) bool {
			caps := p.Capabilities()
			return caps.SupportsOperation(kind) && caps.SupportsAsset(asset)
		},
	})
	if len(candidates) == 0 {
		outcome.Err = fmt.Errorf("stream %s: %w", outcome.StreamID, routing.ErrNoProviders)
		return outcome
	}

	opts := routing.Options{
		PerAttemptTimeout: i.cfg.PerAttemptTimeout,
		TotalTimeout:      i.cfg.TotalTimeout,
		OnSuccess: func(p provider.Provider, d time.Duration) {
			metrics.ProviderAttemptsTotal.WithLabelValues(chainLabel, p.Name(), "success").Inc()
			metrics.ProviderLatency.WithLabelValues(chainLabel, p.Name()).Observe(d.Seconds())
			metrics.ProviderHealthy.WithLabelValues(chainLabel, p.Name()).Set(1)
		},
		OnFailure: func(p provider.Provider, err error, d time.Duration) {
			metrics.ProviderAttemptsTotal.WithLabelValues(chainLabel, p.Name(), "failure").Inc()
			key := domain.Key(p.Blockchain(), p.Name())
			if !i.cfg.Health.IsHealthy(key) {
				metrics.ProviderHealthy.WithLabelValues(chainLabel, p.Name()).Set(0)
			}
			log.Debug("provider attempt failed",
				"provider", p.Name(), "duration", d, "error", err)
		},
	}

	yield := func(batch cursor.Batch, state *cursor.State) error {
		metrics.BatchesFetched.WithLabelValues(chainLabel, opLabel).Inc()
		outcome.Pages++

		items := dedup.Filter(batch.Items)
		if dropped := len(batch.Items) - len(items); dropped > 0 {
			metrics.DuplicatesDropped.WithLabelValues(chainLabel, opLabel).Add(float64(dropped))
		}

		if len(items) > 0 {
			written, err := i.cfg.Transactions.UpsertBatch(ctx, items)
			if err != nil {
				return fmt.Errorf("store batch: %w", err)
			}
			outcome.Imported += written
			metrics.TransactionsImported.WithLabelValues(chainLabel, opLabel).Add(float64(written))
		}

		// Checkpoint only after the batch is durable.
		if err := i.cfg.Cursors.Checkpoint(ctx, outcome.StreamID, state); err != nil {
			return err
		}
		metrics.CursorAdvances.WithLabelValues(chainLabel, opLabel).Inc()
		return nil
	}

	req := routing.StreamRequest{
		Kind:     kind,
		Address:  address,
		Asset:    asset,
		PageSize: i.cfg.PageSize,
		Resume:   resume,
	}

	_, err = i.cfg.Executor.RunStream(ctx, routing.Providers(candidates), req, opts, yield)
	if err != nil {
		// Every provider answering "no data" is a complete, empty result,
		// not a failure.
		var exhausted *routing.ExhaustedError
		if errors.As(err, &exhausted) && exhausted.AllRecoverable {
			log.Debug("stream has no data", "stream", outcome.StreamID)
			return outcome
		}
		outcome.Err = fmt.Errorf("stream %s: %w", outcome.StreamID, err)
	}
	return outcome
}

// limited wraps every provider so Execute blocks on the rate limiter
// before the call goes out.
func (i *Importer) limited() []provider.Provider {
	if i.cfg.Limiter == nil {
		return i.cfg.Providers
	}
	out := make([]provider.Provider, len(i.cfg.Providers))
	for idx, p := range i.cfg.Providers {
		out[idx] = &limitedProvider{Provider: p, limiter: i.cfg.Limiter}
	}
	return out
}

type limitedProvider struct {
	provider.Provider
	limiter *ratelimit.Limiter
}

func (p *limitedProvider) Execute(ctx context.Context, req provider.Request) (cursor.Batch, error) {
	key := domain.Key(p.Blockchain(), p.Name())
	if err := p.limiter.Acquire(ctx, key); err != nil {
		return cursor.Batch{}, err
	}
	return p.Provider.Execute(ctx, req)
}

// StreamID builds the checkpoint key for one address/operation stream.
// The asset segment is present only for asset-scoped operations.
func StreamID(chain domain.Blockchain, kind domain.OperationKind, address, asset string) string {
	parts := []string{string(chain), string(kind), address}
	if asset != "" {
		parts = append(parts, asset)
	}
	return strings.Join(parts, "/")
}
