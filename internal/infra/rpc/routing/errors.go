package routing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mkral/importer/internal/infra/rpc/breaker"
	"github.com/mkral/importer/internal/infra/rpc/provider"
)

var (
	// ErrNoProviders is a configuration error: nothing is registered that
	// could serve the requested operation. It fails fast, never retried.
	ErrNoProviders = errors.New("no providers eligible for operation")

	// ErrDeadlineExhausted marks a run stopped by its total wall-clock
	// budget before every provider was tried.
	ErrDeadlineExhausted = errors.New("total timeout exhausted")

	// ErrStreamStalled marks a stream whose pages stopped adding items
	// without ever signalling completion.
	ErrStreamStalled = errors.New("stream stalled without progress")
)

// BlockReason explains why a provider was skipped without being called.
type BlockReason string

const (
	// BlockCircuitOpen means the breaker refused the attempt. This is a
	// scheduling decision, not a provider failure.
	BlockCircuitOpen BlockReason = "circuit_open"
)

// CircuitTransition records a breaker state change triggered by one
// attempt, so an aggregate error is self-contained for diagnostics.
type CircuitTransition struct {
	From breaker.State
	To   breaker.State
}

// Attempt is the diagnostic record for one provider tried within a single
// failover run. It is never persisted.
type Attempt struct {
	ProviderName string
	Duration     time.Duration
	Err          error
	Recoverable  bool
	BlockReason  BlockReason

	// Circuit is set when this attempt's failure moved the provider's
	// circuit, typically closed to open at the failure threshold.
	Circuit *CircuitTransition
}

// ExhaustedError aggregates a run in which every provider failed or was
// skipped. Individual provider errors never escape the executor except
// through this type.
type ExhaustedError struct {
	Attempts []Attempt
	LastErr  error

	// AllRecoverable is true when every real failure was a valid "no
	// data" outcome, letting callers distinguish "genuinely nothing
	// here" from "everything is down".
	AllRecoverable bool
}

// Error renders a concise operator-facing summary; the full attempt list
// stays available through the struct fields.
func (e *ExhaustedError) Error() string {
	skipped := 0
	for _, a := range e.Attempts {
		if a.BlockReason != "" {
			skipped++
		}
	}
	msg := fmt.Sprintf("all %d providers exhausted (%d circuit-open)", len(e.Attempts), skipped)
	if e.AllRecoverable {
		msg += ", all failures recoverable"
	}
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

// Unwrap exposes the last concrete error for errors.Is/As chains.
func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// AttemptedProviders returns the tried provider names in order.
func (e *ExhaustedError) AttemptedProviders() []string {
	names := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		names = append(names, a.ProviderName)
	}
	return names
}

// IsRecoverable is the default failure classifier: a recoverable failure
// means the provider correctly reported that there is nothing to fetch,
// and must not count against its circuit or health score.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, provider.ErrNoData) {
		return true
	}

	s := strings.ToLower(err.Error())
	return strings.Contains(s, "no transactions found") ||
		strings.Contains(s, "asset not found") ||
		strings.Contains(s, "address not found")
}

// IsTransient reports whether an error looks like a temporary provider
// malfunction (timeout, 5xx, throttling). Both transient and unknown
// failures count against the circuit; the distinction only feeds
// diagnostics.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "deadline exceeded") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "502") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "500")
}
