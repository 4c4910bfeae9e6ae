package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/mkral/importer/internal/core/domain"
)

const testKey = domain.ProviderKey("ethereum/alchemy")

func newTestLimiter(t *testing.T) (*Limiter, *time.Time) {
	t.Helper()
	l := NewLimiter()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func TestLimiter_BucketStartsFull(t *testing.T) {
	l, _ := newTestLimiter(t)
	l.Configure(testKey, Config{RequestsPerSecond: 5, BurstLimit: 10})

	for i := 0; i < 10; i++ {
		if !l.TryAcquire(testKey) {
			t.Fatalf("Expected burst request %d admitted", i)
		}
	}
	if l.TryAcquire(testKey) {
		t.Error("Expected request 11 rejected, burst exhausted")
	}
}

func TestLimiter_RefillsLazily(t *testing.T) {
	l, now := newTestLimiter(t)
	l.Configure(testKey, Config{RequestsPerSecond: 5, BurstLimit: 5})

	for i := 0; i < 5; i++ {
		l.TryAcquire(testKey)
	}
	if l.TryAcquire(testKey) {
		t.Fatal("Expected empty bucket to reject")
	}

	// 5/s refill: 400ms earns 2 tokens.
	*now = now.Add(400 * time.Millisecond)
	if !l.TryAcquire(testKey) {
		t.Error("Expected first refilled token")
	}
	if !l.TryAcquire(testKey) {
		t.Error("Expected second refilled token")
	}
	if l.TryAcquire(testKey) {
		t.Error("Expected third request rejected")
	}
}

func TestLimiter_CapacityCapped(t *testing.T) {
	l, now := newTestLimiter(t)
	l.Configure(testKey, Config{RequestsPerSecond: 10, BurstLimit: 3})

	// A long idle period must not accumulate more than the burst cap.
	*now = now.Add(time.Hour)
	if got := l.Tokens(testKey); got != 3 {
		t.Errorf("Expected tokens capped at 3, got %v", got)
	}
}

func TestLimiter_MinuteWindowCaps(t *testing.T) {
	l, now := newTestLimiter(t)
	l.Configure(testKey, Config{
		RequestsPerSecond: 100,
		BurstLimit:        100,
		RequestsPerMinute: 3,
	})

	for i := 0; i < 3; i++ {
		if !l.TryAcquire(testKey) {
			t.Fatalf("Expected request %d admitted within minute cap", i)
		}
	}
	if l.TryAcquire(testKey) {
		t.Fatal("Expected minute cap to reject even with bucket tokens left")
	}

	// The window resets after a minute.
	*now = now.Add(61 * time.Second)
	if !l.TryAcquire(testKey) {
		t.Error("Expected admission after the minute window rolls over")
	}
}

func TestLimiter_HourWindowCaps(t *testing.T) {
	l, now := newTestLimiter(t)
	l.Configure(testKey, Config{
		RequestsPerSecond: 100,
		BurstLimit:        100,
		RequestsPerHour:   2,
	})

	l.TryAcquire(testKey)
	l.TryAcquire(testKey)
	if l.TryAcquire(testKey) {
		t.Fatal("Expected hour cap to reject")
	}

	*now = now.Add(2 * time.Minute)
	if l.TryAcquire(testKey) {
		t.Error("Expected hour cap still in effect after 2 minutes")
	}
}

func TestLimiter_UnconfiguredKeyUnthrottled(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 1000; i++ {
		if !l.TryAcquire(domain.ProviderKey("ethereum/unknown")) {
			t.Fatal("Expected unconfigured key never throttled")
		}
	}
	if got := l.Tokens(domain.ProviderKey("ethereum/unknown")); got != -1 {
		t.Errorf("Expected -1 tokens for unconfigured key, got %v", got)
	}
}

func TestLimiter_AcquireRespectsContext(t *testing.T) {
	l := NewLimiter()
	l.Configure(testKey, Config{RequestsPerSecond: 0.001, BurstLimit: 1})

	if err := l.Acquire(context.Background(), testKey); err != nil {
		t.Fatalf("Expected first acquire immediate, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx, testKey)
	if err != context.DeadlineExceeded {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func TestLimiter_WaitCallback(t *testing.T) {
	l := NewLimiter()
	l.Configure(testKey, Config{RequestsPerSecond: 0.001, BurstLimit: 1})

	var waits []time.Duration
	l.SetWaitCallback(func(key domain.ProviderKey, wait time.Duration) {
		waits = append(waits, wait)
	})

	_ = l.Acquire(context.Background(), testKey)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_ = l.Acquire(ctx, testKey)

	if len(waits) == 0 {
		t.Fatal("Expected wait callback invoked")
	}
	if waits[0] <= 0 {
		t.Errorf("Expected positive wait, got %v", waits[0])
	}
}
