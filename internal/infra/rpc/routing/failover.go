package routing

import (
	"context"
	"time"

	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
	"github.com/mkral/importer/internal/infra/rpc/breaker"
	"github.com/mkral/importer/internal/infra/rpc/health"
	"github.com/mkral/importer/internal/infra/rpc/provider"
)

// ExecuteFunc performs one fetch against one provider. The context carries
// the per-attempt deadline.
type ExecuteFunc func(ctx context.Context, p provider.Provider) (cursor.Batch, error)

// Options tune one failover run. Zero values fall back to defaults.
type Options struct {
	// PerAttemptTimeout bounds a single provider call.
	PerAttemptTimeout time.Duration

	// TotalTimeout bounds the whole run's wall clock. When it elapses the
	// run fails immediately with the attempts so far attached, even if
	// untried providers remain.
	TotalTimeout time.Duration

	// IsRecoverable classifies failures; recoverable ones do not count
	// against the circuit or health score. Defaults to IsRecoverable.
	IsRecoverable func(error) bool

	// OnSuccess and OnFailure are diagnostic hooks; the executor performs
	// no I/O of its own.
	OnSuccess func(p provider.Provider, d time.Duration)
	OnFailure func(p provider.Provider, err error, d time.Duration)

	// BuildFinalError assembles the terminal error on exhaustion.
	// Defaults to returning an *ExhaustedError.
	BuildFinalError func(attempts []Attempt, lastErr error, allRecoverable bool) error
}

// Result is the outcome of a successful failover run.
type Result struct {
	Batch        cursor.Batch
	ProviderName string

	// Attempts covers the providers tried before the winning one.
	Attempts []Attempt
}

// Executor drives a single failover run across an ordered provider list,
// recording every outcome into the circuit breaker and health tracker.
// One Executor is shared by all concurrent operation-type fetches; its
// registries are keyed per provider.
type Executor struct {
	breaker *breaker.Breaker
	health  *health.Tracker
	now     func() time.Time
}

// NewExecutor creates an executor over shared breaker and health state.
func NewExecutor(b *breaker.Breaker, h *health.Tracker) *Executor {
	return &Executor{breaker: b, health: h, now: time.Now}
}

// SetClock injects a clock for tests.
func (e *Executor) SetClock(now func() time.Time) { e.now = now }

// Run tries the providers in order until one succeeds.
//
// Providers with an open circuit are skipped without being called and get
// a zero-duration attempt record. Each failing provider is called exactly
// once per run; exhausting the list is terminal for the run. Recoverable
// failures (valid "no data" answers) are recorded in the attempt list but
// never charged to the provider's circuit or health.
func (e *Executor) Run(ctx context.Context, providers []provider.Provider, execute ExecuteFunc, opts Options) (Result, error) {
	if len(providers) == 0 {
		return Result{}, ErrNoProviders
	}

	isRecoverable := opts.IsRecoverable
	if isRecoverable == nil {
		isRecoverable = IsRecoverable
	}
	buildFinal := opts.BuildFinalError
	if buildFinal == nil {
		buildFinal = func(attempts []Attempt, lastErr error, allRecoverable bool) error {
			return &ExhaustedError{Attempts: attempts, LastErr: lastErr, AllRecoverable: allRecoverable}
		}
	}

	var deadline time.Time
	if opts.TotalTimeout > 0 {
		deadline = e.now().Add(opts.TotalTimeout)
	}

	var (
		attempts       []Attempt
		lastErr        error
		sawFailure     bool
		allRecoverable = true
	)

	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if !deadline.IsZero() && !e.now().Before(deadline) {
			lastErr = ErrDeadlineExhausted
			break
		}

		key := domain.Key(p.Blockchain(), p.Name())

		if !e.breaker.CanAttempt(key) {
			attempts = append(attempts, Attempt{
				ProviderName: p.Name(),
				BlockReason:  BlockCircuitOpen,
			})
			continue
		}

		attemptCtx, cancel := e.attemptContext(ctx, deadline, opts.PerAttemptTimeout)
		start := e.now()
		batch, err := execute(attemptCtx, p)
		duration := e.now().Sub(start)
		cancel()

		if err == nil {
			e.breaker.RecordSuccess(key)
			e.health.RecordSuccess(key, duration)
			if opts.OnSuccess != nil {
				opts.OnSuccess(p, duration)
			}
			return Result{Batch: batch, ProviderName: p.Name(), Attempts: attempts}, nil
		}

		attempt := Attempt{
			ProviderName: p.Name(),
			Duration:     duration,
			Err:          err,
		}
		if isRecoverable(err) {
			// A valid "no data" answer says nothing about provider
			// health. Only the half-open probe slot is released.
			attempt.Recoverable = true
			e.breaker.Release(key)
		} else {
			before := e.breaker.State(key)
			e.breaker.RecordFailure(key)
			e.health.RecordFailure(key)
			if after := e.breaker.State(key); after != before {
				attempt.Circuit = &CircuitTransition{From: before, To: after}
			}
			allRecoverable = false
		}
		sawFailure = true
		lastErr = err

		if opts.OnFailure != nil {
			opts.OnFailure(p, err, duration)
		}
		attempts = append(attempts, attempt)
	}

	return Result{}, buildFinal(attempts, lastErr, sawFailure && allRecoverable)
}

// attemptContext derives the per-attempt context from the run context,
// clamped to the remaining total budget.
func (e *Executor) attemptContext(ctx context.Context, deadline time.Time, perAttempt time.Duration) (context.Context, context.CancelFunc) {
	timeout := perAttempt
	if !deadline.IsZero() {
		remaining := deadline.Sub(e.now())
		if timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
