// Package ratelimit implements a per-provider token-bucket throttle.
//
// The bucket refills lazily: each acquire computes the tokens earned since
// the last refill from the elapsed time, capped at the burst capacity.
// There is no background refill goroutine. Optional per-minute and
// per-hour windows act as auxiliary counters that cannot be bypassed even
// when the primary bucket has tokens; a request is admitted only when
// every configured window admits it.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/mkral/importer/internal/core/domain"
)

// Config declares the budget for one key.
type Config struct {
	RequestsPerSecond float64
	BurstLimit        int
	RequestsPerMinute int // 0 = no minute cap
	RequestsPerHour   int // 0 = no hour cap
}

type window struct {
	cap      int
	count    int
	start    time.Time
	duration time.Duration
}

// admit must be called with the bucket lock held.
func (w *window) admit(now time.Time) (ok bool, wait time.Duration) {
	if w.cap <= 0 {
		return true, 0
	}
	if now.Sub(w.start) >= w.duration {
		w.count = 0
		w.start = now
	}
	if w.count < w.cap {
		return true, 0
	}
	return false, w.start.Add(w.duration).Sub(now)
}

type bucket struct {
	mu sync.Mutex

	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	minute window
	hour   window
}

// Limiter throttles requests per provider key.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[domain.ProviderKey]*bucket

	now    func() time.Time
	onWait func(key domain.ProviderKey, wait time.Duration)
}

// NewLimiter creates an empty limiter. Keys without a configured budget
// are not throttled.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[domain.ProviderKey]*bucket),
		now:     time.Now,
	}
}

// SetClock injects a clock for tests.
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

// SetWaitCallback registers an observer invoked whenever an Acquire has to
// wait, with the computed wait duration.
func (l *Limiter) SetWaitCallback(fn func(key domain.ProviderKey, wait time.Duration)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onWait = fn
}

// Configure installs the budget for a key, replacing any previous one.
// The bucket starts full.
func (l *Limiter) Configure(key domain.ProviderKey, cfg Config) {
	if cfg.RequestsPerSecond <= 0 {
		return
	}
	capacity := float64(cfg.BurstLimit)
	if capacity < 1 {
		capacity = 1
	}

	now := l.now()
	b := &bucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: cfg.RequestsPerSecond,
		lastRefill: now,
		minute:     window{cap: cfg.RequestsPerMinute, start: now, duration: time.Minute},
		hour:       window{cap: cfg.RequestsPerHour, start: now, duration: time.Hour},
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[key] = b
}

// TryAcquire consumes one token if available, returning immediately.
func (l *Limiter) TryAcquire(key domain.ProviderKey) bool {
	b := l.bucket(key)
	if b == nil {
		return true
	}
	ok, _ := b.take(l.now())
	return ok
}

// Acquire blocks until a token is granted or the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context, key domain.ProviderKey) error {
	b := l.bucket(key)
	if b == nil {
		return ctx.Err()
	}

	for {
		ok, wait := b.take(l.now())
		if ok {
			return nil
		}

		l.mu.RLock()
		cb := l.onWait
		l.mu.RUnlock()
		if cb != nil {
			cb(key, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tokens reports the current token count for a key, refilled to now.
// Unconfigured keys report -1.
func (l *Limiter) Tokens(key domain.ProviderKey) float64 {
	b := l.bucket(key)
	if b == nil {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(l.now())
	return b.tokens
}

func (l *Limiter) bucket(key domain.ProviderKey) *bucket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buckets[key]
}

// take attempts to consume one token across all configured windows,
// returning the wait until the next attempt could succeed.
func (b *bucket) take(now time.Time) (ok bool, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)

	if b.tokens < 1 {
		return false, b.timeUntilToken()
	}
	if ok, w := b.minute.admit(now); !ok {
		return false, w
	}
	if ok, w := b.hour.admit(now); !ok {
		return false, w
	}

	b.tokens--
	b.minute.count++
	b.hour.count++
	return true, 0
}

// refill must be called with the bucket lock held.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

func (b *bucket) timeUntilToken() time.Duration {
	missing := 1 - b.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / b.refillRate * float64(time.Second))
}
