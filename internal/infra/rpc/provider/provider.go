// Package provider defines the contract between the import engine and the
// interchangeable data providers it draws from.
//
// This package contains:
//   - Provider interface: execute one operation, return a typed page or error
//   - Capabilities: the closed descriptor the selector checks structurally
//   - BaseProvider: embeddable identity + capability plumbing
//   - HTTPProvider: generic JSON-over-HTTP adapter
//   - GRPCProvider: gRPC-backed adapter carrying a shared connection
//
// The ~60 per-vendor clients, response schemas and field mappers live
// outside this repository; they only need to satisfy Provider.
package provider

import (
	"context"

	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
)

// Request describes one fetch a provider is asked to perform.
type Request struct {
	// Kind selects the data category (normal txns, token transfers, ...).
	Kind domain.OperationKind

	// Address scopes the fetch to one account, empty for market-wide data.
	Address string

	// Asset scopes price/balance queries, empty otherwise.
	Asset string

	// Resume is the cursor to continue from; zero value means "from start".
	Resume cursor.Cursor

	// PageSize is a hint; providers may return fewer or more items.
	PageSize int
}

// RateLimit is the declared request budget a provider ships with. Values
// come from offline benchmarking (see ratelimit.Benchmark) or vendor docs.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstLimit        int     `yaml:"burst_limit"`
	RequestsPerMinute int     `yaml:"requests_per_minute,omitempty"`
	RequestsPerHour   int     `yaml:"requests_per_hour,omitempty"`
}

// Capabilities is the structural descriptor the selector filters on.
// It is a closed set of declared facts, not runtime type inspection.
type Capabilities struct {
	// SupportedOperations lists the operation kinds this provider serves.
	SupportedOperations []domain.OperationKind

	// SupportedAssets, when non-empty, restricts asset-scoped operations.
	SupportedAssets []string

	// CursorKinds lists the resume representations this provider accepts.
	CursorKinds []cursor.Kind

	// Granularity is the finest time resolution for price/history data.
	Granularity domain.Granularity
}

// SupportsOperation reports whether kind is in the declared set.
func (c Capabilities) SupportsOperation(kind domain.OperationKind) bool {
	for _, op := range c.SupportedOperations {
		if op == kind {
			return true
		}
	}
	return false
}

// SupportsAsset reports whether the provider serves the given asset.
// An empty declared set means "all assets".
func (c Capabilities) SupportsAsset(asset string) bool {
	if len(c.SupportedAssets) == 0 {
		return true
	}
	for _, a := range c.SupportedAssets {
		if a == asset {
			return true
		}
	}
	return false
}

// UnderstandsCursor reports whether the provider can resume from kind.
func (c Capabilities) UnderstandsCursor(kind cursor.Kind) bool {
	for _, k := range c.CursorKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Provider is what every data source must implement. Execute performs one
// paginated fetch and returns a batch carrying the continuation token; the
// resilience layers (breaker, limiter, failover) wrap around it.
type Provider interface {
	// Name returns the provider identifier (e.g. "alchemy", "etherscan").
	Name() string

	// Blockchain returns the chain this provider instance serves.
	Blockchain() domain.Blockchain

	// Capabilities returns the declared capability descriptor.
	Capabilities() Capabilities

	// RateLimit returns the declared request budget.
	RateLimit() RateLimit

	// Execute performs one fetch. The context carries the per-attempt
	// deadline; implementations must respect cancellation promptly.
	Execute(ctx context.Context, req Request) (cursor.Batch, error)
}

// Closable is implemented by providers holding connections.
type Closable interface {
	Close() error
}
