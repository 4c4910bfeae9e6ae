package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProbeFunc performs one cheap request against a provider's health-check
// endpoint. It should return an error on any non-success response.
type ProbeFunc func(ctx context.Context) error

// BenchmarkConfig controls the rate sweep.
type BenchmarkConfig struct {
	// StartRate is the first request rate tried, in requests per second.
	StartRate float64

	// MaxRate aborts the sweep if no breaking point is found below it.
	MaxRate float64

	// StepFactor multiplies the rate between sweep levels.
	StepFactor float64

	// LevelDuration is how long each rate level is sustained.
	LevelDuration time.Duration

	// SafetyMargin scales the last clean rate into the recommendation.
	SafetyMargin float64

	// BurstProbeMax bounds the rapid-fire burst measurement.
	BurstProbeMax int
}

// DefaultBenchmarkConfig returns the sweep used to produce the shipped
// per-provider rate limit defaults.
func DefaultBenchmarkConfig() BenchmarkConfig {
	return BenchmarkConfig{
		StartRate:     1,
		MaxRate:       64,
		StepFactor:    2,
		LevelDuration: 5 * time.Second,
		SafetyMargin:  0.8,
		BurstProbeMax: 50,
	}
}

// BenchmarkResult reports the observed limits of a provider.
type BenchmarkResult struct {
	// BreakingRate is the lowest swept rate at which errors appeared,
	// 0 when the sweep completed cleanly up to MaxRate.
	BreakingRate float64

	// RecommendedPerSecond is the shipped default: the last clean rate
	// scaled by the safety margin.
	RecommendedPerSecond float64

	// BurstLimit is the number of back-to-back requests the provider
	// absorbed before the first rejection.
	BurstLimit int
}

// Benchmark sweeps increasing request rates against a provider probe until
// rate-limit errors appear, then reports a recommended sustained rate a
// fixed margin below the breaking point, plus a separately measured burst
// window. This is an offline calibration tool; it never runs as part of a
// normal import.
func Benchmark(ctx context.Context, probe ProbeFunc, cfg BenchmarkConfig) (BenchmarkResult, error) {
	if cfg.StartRate <= 0 || cfg.StepFactor <= 1 || cfg.SafetyMargin <= 0 || cfg.SafetyMargin > 1 {
		return BenchmarkResult{}, fmt.Errorf("invalid benchmark config: %+v", cfg)
	}

	var result BenchmarkResult
	lastClean := 0.0

	for rate := cfg.StartRate; rate <= cfg.MaxRate; rate *= cfg.StepFactor {
		broke, err := sustainRate(ctx, probe, rate, cfg.LevelDuration)
		if err != nil {
			return BenchmarkResult{}, err
		}
		if broke {
			result.BreakingRate = rate
			break
		}
		lastClean = rate
	}

	if lastClean == 0 {
		return BenchmarkResult{}, fmt.Errorf("provider rejected the lowest swept rate %.2f/s", cfg.StartRate)
	}
	result.RecommendedPerSecond = lastClean * cfg.SafetyMargin

	burst, err := measureBurst(ctx, probe, cfg.BurstProbeMax)
	if err != nil {
		return BenchmarkResult{}, err
	}
	result.BurstLimit = burst

	return result, nil
}

// sustainRate fires probes at the given rate for the level duration and
// reports whether the provider started rejecting.
func sustainRate(ctx context.Context, probe ProbeFunc, rate float64, duration time.Duration) (broke bool, err error) {
	interval := time.Duration(float64(time.Second) / rate)
	deadline := time.Now().Add(duration)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}

		if err := probe(ctx); err != nil {
			if isRateLimitErr(err) {
				return true, nil
			}
			return false, fmt.Errorf("probe failed at %.2f/s: %w", rate, err)
		}
	}
	return false, nil
}

// measureBurst sends back-to-back probes until the first rejection.
func measureBurst(ctx context.Context, probe ProbeFunc, maxProbes int) (int, error) {
	for i := 0; i < maxProbes; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := probe(ctx); err != nil {
			if isRateLimitErr(err) {
				return i, nil
			}
			return 0, fmt.Errorf("burst probe %d failed: %w", i, err)
		}
	}
	return maxProbes, nil
}

func isRateLimitErr(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests")
}
