// Package health tracks rolling success/failure bookkeeping per provider.
//
// The tracker is pure accounting: it never decides anything, the selector
// reads its snapshots for scoring. Mutations happen after every failover
// attempt, possibly from several concurrent operation-type fetches, so the
// state is per-key locked rather than guarded by one registry-wide lock.
package health

import (
	"sync"
	"time"

	"github.com/mkral/importer/internal/core/domain"
)

// emaAlpha weights the newest latency sample in the moving average.
const emaAlpha = 0.3

// Status is a point-in-time snapshot of one provider's health.
type Status struct {
	ProviderName        string
	ConsecutiveFailures int
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
	AverageResponseTime time.Duration

	// IsHealthy is derived at read time: consecutive failures below the
	// tracker threshold. It is never stored.
	IsHealthy bool
}

type entry struct {
	mu                  sync.Mutex
	consecutiveFailures int
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	emaLatency          time.Duration
}

// Tracker keeps per-provider health entries, lazily created.
type Tracker struct {
	mu      sync.RWMutex
	entries map[domain.ProviderKey]*entry

	maxConsecutiveFailures int
	now                    func() time.Time
}

// NewTracker creates a tracker. Providers with maxConsecutiveFailures or
// more failures in a row report unhealthy until the next success.
func NewTracker(maxConsecutiveFailures int) *Tracker {
	if maxConsecutiveFailures <= 0 {
		maxConsecutiveFailures = 3
	}
	return &Tracker{
		entries:                make(map[domain.ProviderKey]*entry),
		maxConsecutiveFailures: maxConsecutiveFailures,
		now:                    time.Now,
	}
}

// SetClock injects a clock for tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// RecordSuccess resets the failure streak and folds the latency sample
// into the exponential moving average.
func (t *Tracker) RecordSuccess(key domain.ProviderKey, latency time.Duration) {
	e := t.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures = 0
	e.lastSuccessAt = t.now()
	if e.emaLatency == 0 {
		e.emaLatency = latency
	} else {
		e.emaLatency = time.Duration(emaAlpha*float64(latency) + (1-emaAlpha)*float64(e.emaLatency))
	}
}

// RecordFailure increments the failure streak.
func (t *Tracker) RecordFailure(key domain.ProviderKey) {
	e := t.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFailures++
	e.lastFailureAt = t.now()
}

// Status returns a snapshot for one provider. Unknown providers report
// healthy with zeroed counters.
func (t *Tracker) Status(key domain.ProviderKey) Status {
	e := t.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		ProviderName:        string(key),
		ConsecutiveFailures: e.consecutiveFailures,
		LastSuccessAt:       e.lastSuccessAt,
		LastFailureAt:       e.lastFailureAt,
		AverageResponseTime: e.emaLatency,
		IsHealthy:           e.consecutiveFailures < t.maxConsecutiveFailures,
	}
}

// IsHealthy reports whether the provider's failure streak is below the
// threshold.
func (t *Tracker) IsHealthy(key domain.ProviderKey) bool {
	return t.Status(key).IsHealthy
}

func (t *Tracker) entry(key domain.ProviderKey) *entry {
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[key]; ok {
		return e
	}
	e = &entry{}
	t.entries[key] = e
	return e
}
