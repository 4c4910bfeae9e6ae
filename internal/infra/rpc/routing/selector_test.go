package routing

import (
	"testing"
	"time"

	"github.com/mkral/importer/internal/core/domain"
	"github.com/mkral/importer/internal/infra/rpc/breaker"
	"github.com/mkral/importer/internal/infra/rpc/health"
	"github.com/mkral/importer/internal/infra/rpc/provider"
)

func selectorFixture() (*health.Tracker, *breaker.Breaker, time.Time) {
	h := health.NewTracker(3)
	b := breaker.New(breaker.DefaultConfig())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return now })
	return h, b, now
}

func names(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Provider.Name()
	}
	return out
}

func TestSelect_DeterministicOrder(t *testing.T) {
	h, b, now := selectorFixture()
	providers := []provider.Provider{
		newFakeProvider("alchemy"),
		newFakeProvider("infura"),
		newFakeProvider("etherscan"),
	}

	first := names(Select(providers, h, b, now, SelectOptions{}))
	for i := 0; i < 10; i++ {
		again := names(Select(providers, h, b, now, SelectOptions{}))
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("Selection order changed between calls: %v vs %v", first, again)
			}
		}
	}

	// Equal scores keep registration order.
	want := []string{"alchemy", "infura", "etherscan"}
	for i, n := range want {
		if first[i] != n {
			t.Errorf("Position %d: expected %s, got %s", i, n, first[i])
		}
	}
}

func TestSelect_UnhealthyRanksLast(t *testing.T) {
	h, b, now := selectorFixture()
	a := newFakeProvider("alchemy")
	i := newFakeProvider("infura")

	for n := 0; n < 3; n++ {
		h.RecordFailure(a.key())
	}

	got := names(Select([]provider.Provider{a, i}, h, b, now, SelectOptions{}))
	if got[0] != "infura" || got[1] != "alchemy" {
		t.Errorf("Expected unhealthy provider last, got %v", got)
	}
}

func TestSelect_OpenCircuitExcluded(t *testing.T) {
	h, b, now := selectorFixture()
	a := newFakeProvider("alchemy")
	i := newFakeProvider("infura")

	for n := 0; n < 3; n++ {
		b.RecordFailure(a.key())
	}

	got := names(Select([]provider.Provider{a, i}, h, b, now, SelectOptions{}))
	if len(got) != 1 || got[0] != "infura" {
		t.Errorf("Expected open-circuit provider excluded, got %v", got)
	}
}

func TestSelect_ProbeDueScoredNotExcluded(t *testing.T) {
	h, b, _ := selectorFixture()
	a := newFakeProvider("alchemy")
	i := newFakeProvider("infura")

	for n := 0; n < 3; n++ {
		b.RecordFailure(a.key())
	}

	// After the cooldown the open circuit must get a path back into
	// rotation, penalized but present.
	later := time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC)
	got := names(Select([]provider.Provider{a, i}, h, b, later, SelectOptions{}))
	if len(got) != 2 {
		t.Fatalf("Expected probe-due provider included, got %v", got)
	}
	if got[0] != "infura" || got[1] != "alchemy" {
		t.Errorf("Expected probe-due provider ranked last, got %v", got)
	}
}

func TestSelect_CapabilityFilter(t *testing.T) {
	h, b, now := selectorFixture()
	a := newFakeProvider("alchemy")
	e := newFakeProvider("etherscan")
	e.caps.SupportedOperations = []domain.OperationKind{domain.OpTokenTransfers}

	opts := SelectOptions{
		Filter: func(p provider.Provider) bool {
			return p.Capabilities().SupportsOperation(domain.OpNormalTransactions)
		},
	}
	got := names(Select([]provider.Provider{a, e}, h, b, now, opts))
	if len(got) != 1 || got[0] != "alchemy" {
		t.Errorf("Expected capability filter to drop etherscan, got %v", got)
	}
}

func TestSelect_GranularityBonus(t *testing.T) {
	h, b, now := selectorFixture()
	daily := newFakeProvider("coingecko")
	daily.caps.Granularity = domain.GranularityDay
	intraday := newFakeProvider("coinapi")
	intraday.caps.Granularity = domain.GranularityMinute

	opts := SelectOptions{Bonus: GranularityBonus(domain.GranularityMinute)}
	got := names(Select([]provider.Provider{daily, intraday}, h, b, now, opts))
	if got[0] != "coinapi" {
		t.Errorf("Expected intraday provider first for minute queries, got %v", got)
	}

	// For daily queries both fit; registration order breaks the tie.
	opts = SelectOptions{Bonus: GranularityBonus(domain.GranularityDay)}
	got = names(Select([]provider.Provider{daily, intraday}, h, b, now, opts))
	if got[0] != "coingecko" {
		t.Errorf("Expected registration order kept for daily queries, got %v", got)
	}
}

func TestSelect_EmptyInput(t *testing.T) {
	h, b, now := selectorFixture()
	if got := Select(nil, h, b, now, SelectOptions{}); len(got) != 0 {
		t.Errorf("Expected empty selection, got %d candidates", len(got))
	}
}
