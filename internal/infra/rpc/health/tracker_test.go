package health

import (
	"testing"
	"time"

	"github.com/mkral/importer/internal/core/domain"
)

const testKey = domain.ProviderKey("ethereum/alchemy")

func TestTracker_UnknownProviderHealthy(t *testing.T) {
	tr := NewTracker(3)

	status := tr.Status(testKey)
	if !status.IsHealthy {
		t.Error("Expected unknown provider to report healthy")
	}
	if status.ConsecutiveFailures != 0 {
		t.Errorf("Expected zero failures, got %d", status.ConsecutiveFailures)
	}
}

func TestTracker_UnhealthyAtThreshold(t *testing.T) {
	tr := NewTracker(3)

	tr.RecordFailure(testKey)
	tr.RecordFailure(testKey)
	if !tr.IsHealthy(testKey) {
		t.Fatal("Expected healthy below the threshold")
	}

	tr.RecordFailure(testKey)
	if tr.IsHealthy(testKey) {
		t.Fatal("Expected unhealthy at the threshold")
	}
}

func TestTracker_SuccessResetsStreak(t *testing.T) {
	tr := NewTracker(3)

	for i := 0; i < 5; i++ {
		tr.RecordFailure(testKey)
	}
	tr.RecordSuccess(testKey, 100*time.Millisecond)

	status := tr.Status(testKey)
	if status.ConsecutiveFailures != 0 {
		t.Errorf("Expected streak reset, got %d", status.ConsecutiveFailures)
	}
	if !status.IsHealthy {
		t.Error("Expected healthy after success")
	}
}

func TestTracker_LatencyEMA(t *testing.T) {
	tr := NewTracker(3)

	// First sample seeds the average directly.
	tr.RecordSuccess(testKey, 100*time.Millisecond)
	if got := tr.Status(testKey).AverageResponseTime; got != 100*time.Millisecond {
		t.Fatalf("Expected seeded average 100ms, got %v", got)
	}

	// 0.3*200 + 0.7*100 = 130ms, modulo float rounding.
	tr.RecordSuccess(testKey, 200*time.Millisecond)
	got := tr.Status(testKey).AverageResponseTime
	if diff := got - 130*time.Millisecond; diff < -time.Microsecond || diff > time.Microsecond {
		t.Errorf("Expected average ~130ms, got %v", got)
	}
}

func TestTracker_Timestamps(t *testing.T) {
	tr := NewTracker(3)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })

	tr.RecordSuccess(testKey, 50*time.Millisecond)
	now = now.Add(time.Minute)
	tr.RecordFailure(testKey)

	status := tr.Status(testKey)
	if !status.LastSuccessAt.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected LastSuccessAt %v", status.LastSuccessAt)
	}
	if !status.LastFailureAt.Equal(time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC)) {
		t.Errorf("Unexpected LastFailureAt %v", status.LastFailureAt)
	}
}

func TestTracker_KeysAreIndependent(t *testing.T) {
	tr := NewTracker(3)
	other := domain.ProviderKey("ethereum/infura")

	for i := 0; i < 3; i++ {
		tr.RecordFailure(testKey)
	}

	if tr.IsHealthy(testKey) {
		t.Error("Expected failing provider unhealthy")
	}
	if !tr.IsHealthy(other) {
		t.Error("Expected unrelated provider healthy")
	}
}
