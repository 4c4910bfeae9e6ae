// Package routing decides which provider serves a request and drives
// failover across the ordered candidate list.
//
// This package contains:
//   - Select: pure scoring over capability fit, health and circuit state
//   - Executor: try-in-order failover with per-attempt and total timeouts
//   - Error taxonomy: recoverable vs transient classification, aggregate
//     exhaustion error
package routing

import (
	"sort"
	"time"

	"github.com/mkral/importer/internal/core/domain"
	"github.com/mkral/importer/internal/infra/rpc/breaker"
	"github.com/mkral/importer/internal/infra/rpc/health"
	"github.com/mkral/importer/internal/infra/rpc/provider"
)

// Scoring constants. Absolute values only matter relative to each other
// and to caller-supplied bonuses, which should stay within ±50.
const (
	scoreUnhealthy       = -1000.0
	scoreHalfOpenPenalty = -50.0
)

// Candidate is one scored provider.
type Candidate struct {
	Provider provider.Provider
	Score    float64
}

// SelectOptions tune one selection call.
type SelectOptions struct {
	// Filter excludes providers that cannot serve the request at all
	// (unsupported operation or asset). Excluded providers are not
	// scored. Nil means no capability filtering.
	Filter func(p provider.Provider) bool

	// Bonus adds a situational score, e.g. a granularity-fit bonus when
	// the query needs intraday precision. Nil means no bonus.
	Bonus func(p provider.Provider) float64
}

// Select ranks the eligible providers for a request, best first.
//
// Providers with an open circuit whose cooldown has not expired are
// excluded entirely, not merely penalized; an open circuit whose probe is
// due scores like a half-open one so it keeps a path back into rotation.
// Ties keep the original registration order, making the ranking
// deterministic for a given input.
func Select(
	providers []provider.Provider,
	h *health.Tracker,
	b *breaker.Breaker,
	now time.Time,
	opts SelectOptions,
) []Candidate {
	candidates := make([]Candidate, 0, len(providers))

	for _, p := range providers {
		if opts.Filter != nil && !opts.Filter(p) {
			continue
		}

		key := domain.Key(p.Blockchain(), p.Name())

		score := 0.0
		state, nextProbeAt := b.Status(key)
		switch state {
		case breaker.StateOpen:
			if now.Before(nextProbeAt) {
				continue
			}
			score += scoreHalfOpenPenalty
		case breaker.StateHalfOpen:
			score += scoreHalfOpenPenalty
		}

		if !h.IsHealthy(key) {
			score += scoreUnhealthy
		}

		if opts.Bonus != nil {
			score += opts.Bonus(p)
		}

		candidates = append(candidates, Candidate{Provider: p, Score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// Providers strips the scores off a ranked candidate list.
func Providers(candidates []Candidate) []provider.Provider {
	out := make([]provider.Provider, len(candidates))
	for i, c := range candidates {
		out[i] = c.Provider
	}
	return out
}

// GranularityBonus builds a Bonus function for price/history queries: a
// provider serving at least the needed resolution gets a lift, one stuck
// at daily data when intraday was requested gets pushed down.
func GranularityBonus(need domain.Granularity) func(p provider.Provider) float64 {
	rank := map[domain.Granularity]int{
		domain.GranularityMinute: 3,
		domain.GranularityHour:   2,
		domain.GranularityDay:    1,
	}
	return func(p provider.Provider) float64 {
		have := rank[p.Capabilities().Granularity]
		want := rank[need]
		switch {
		case have >= want && want > 0:
			return 10
		case have < want:
			return -25
		default:
			return 0
		}
	}
}
