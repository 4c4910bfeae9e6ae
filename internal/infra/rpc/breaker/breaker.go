// Package breaker implements a per-provider circuit breaker.
//
// # State Machine
//
//	closed --(consecutive failures reach threshold)--> open
//	open   --(cooldown expired, next attempt check)--> half_open
//	half_open --(probe succeeds)--> closed
//	half_open --(probe fails)-----> open (cooldown grows, bounded)
//
// Transitions are evaluated lazily at the moment of the next attempt
// check; there are no background timers. While half_open exactly one probe
// may be in flight: concurrent callers are told to stand down until the
// probe reports its outcome.
package breaker

import (
	"sync"
	"time"

	"github.com/mkral/importer/internal/core/domain"
)

// State is the circuit position for one provider.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Transition describes one observed state change, for diagnostics.
type Transition struct {
	Key  domain.ProviderKey
	From State
	To   State
	At   time.Time
}

// Config controls the breaker thresholds.
type Config struct {
	// MaxConsecutiveFailures is the failure streak that opens the circuit.
	MaxConsecutiveFailures int

	// Cooldown is the minimum open duration before a half-open probe.
	Cooldown time.Duration

	// MaxCooldown bounds the exponential growth applied when half-open
	// probes keep failing, so a dead provider is retried eventually but
	// not hammered.
	MaxCooldown time.Duration
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxConsecutiveFailures: 3,
		Cooldown:               30 * time.Second,
		MaxCooldown:            10 * time.Minute,
	}
}

type circuit struct {
	mu sync.Mutex

	state               State
	consecutiveFailures int
	openedAt            time.Time
	nextProbeAt         time.Time
	cooldown            time.Duration
	probeInFlight       bool
}

// Breaker holds per-key circuits, lazily created in the closed state.
// Circuits live for the process (or import-run) lifetime.
type Breaker struct {
	cfg Config

	mu       sync.RWMutex
	circuits map[domain.ProviderKey]*circuit

	onTransition func(Transition)
	now          func() time.Time
}

// New creates a breaker registry.
func New(cfg Config) *Breaker {
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultConfig().MaxConsecutiveFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = DefaultConfig().MaxCooldown
	}
	return &Breaker{
		cfg:      cfg,
		circuits: make(map[domain.ProviderKey]*circuit),
		now:      time.Now,
	}
}

// SetClock injects a clock for tests.
func (b *Breaker) SetClock(now func() time.Time) { b.now = now }

// SetTransitionCallback registers an observer for state changes. The
// callback runs synchronously under the circuit lock; keep it cheap.
func (b *Breaker) SetTransitionCallback(fn func(Transition)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// CanAttempt reports whether a call to the provider may be dispatched.
//
// It returns false only while the circuit is open with an unexpired
// cooldown, or half-open with a probe already in flight. When the cooldown
// has expired the calling goroutine wins the single probe slot and the
// circuit moves to half_open.
func (b *Breaker) CanAttempt(key domain.ProviderKey) bool {
	c := b.circuit(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Before(c.nextProbeAt) {
			return false
		}
		b.transition(key, c, StateHalfOpen)
		c.probeInFlight = true
		return true
	case StateHalfOpen:
		if c.probeInFlight {
			return false
		}
		c.probeInFlight = true
		return true
	}
	return true
}

// RecordSuccess resets the failure streak and closes the circuit from any
// state.
func (b *Breaker) RecordSuccess(key domain.ProviderKey) {
	c := b.circuit(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
	c.probeInFlight = false
	c.cooldown = b.cfg.Cooldown
	if c.state != StateClosed {
		b.transition(key, c, StateClosed)
	}
}

// RecordFailure counts a failure. In closed state the circuit opens once
// the streak reaches the threshold; a failed half-open probe reopens it
// with a doubled (bounded) cooldown.
func (b *Breaker) RecordFailure(key domain.ProviderKey) {
	c := b.circuit(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := b.now()
	c.consecutiveFailures++

	switch c.state {
	case StateClosed:
		if c.consecutiveFailures >= b.cfg.MaxConsecutiveFailures {
			c.openedAt = now
			c.nextProbeAt = now.Add(c.cooldown)
			b.transition(key, c, StateOpen)
		}
	case StateHalfOpen:
		c.probeInFlight = false
		c.cooldown = c.cooldown * 2
		if c.cooldown > b.cfg.MaxCooldown {
			c.cooldown = b.cfg.MaxCooldown
		}
		c.openedAt = now
		c.nextProbeAt = now.Add(c.cooldown)
		b.transition(key, c, StateOpen)
	}
}

// Release frees the half-open probe slot without recording an outcome.
// Used when an attempt ends in a way that says nothing about provider
// health, such as a valid "no data" answer.
func (b *Breaker) Release(key domain.ProviderKey) {
	c := b.circuit(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probeInFlight = false
}

// State returns the current circuit position for a provider.
func (b *Breaker) State(key domain.ProviderKey) State {
	c := b.circuit(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the circuit position and the time the next half-open
// probe becomes due. It never mutates the circuit; the selector uses it to
// distinguish "open, still cooling down" from "open, probe due".
func (b *Breaker) Status(key domain.ProviderKey) (State, time.Time) {
	c := b.circuit(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.nextProbeAt
}

// transition must be called with the circuit lock held.
func (b *Breaker) transition(key domain.ProviderKey, c *circuit, to State) {
	from := c.state
	c.state = to

	b.mu.RLock()
	cb := b.onTransition
	b.mu.RUnlock()
	if cb != nil {
		cb(Transition{Key: key, From: from, To: to, At: b.now()})
	}
}

func (b *Breaker) circuit(key domain.ProviderKey) *circuit {
	b.mu.RLock()
	c, ok := b.circuits[key]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok = b.circuits[key]; ok {
		return c
	}
	c = &circuit{state: StateClosed, cooldown: b.cfg.Cooldown}
	b.circuits[key] = c
	return c
}
