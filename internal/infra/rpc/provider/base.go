package provider

import (
	"github.com/mkral/importer/internal/core/domain"
)

// BaseProvider carries the identity and declared limits every provider
// shares. Concrete providers embed it and implement Execute.
type BaseProvider struct {
	name      string
	chain     domain.Blockchain
	caps      Capabilities
	rateLimit RateLimit
}

// NewBaseProvider creates the shared provider core.
func NewBaseProvider(name string, chain domain.Blockchain, caps Capabilities, rl RateLimit) BaseProvider {
	return BaseProvider{name: name, chain: chain, caps: caps, rateLimit: rl}
}

// Name returns the provider identifier.
func (p *BaseProvider) Name() string { return p.name }

// Blockchain returns the chain this provider serves.
func (p *BaseProvider) Blockchain() domain.Blockchain { return p.chain }

// Capabilities returns the declared capability descriptor.
func (p *BaseProvider) Capabilities() Capabilities { return p.caps }

// RateLimit returns the declared request budget.
func (p *BaseProvider) RateLimit() RateLimit { return p.rateLimit }

// Key returns the canonical identity used by the resilience registries.
func (p *BaseProvider) Key() domain.ProviderKey {
	return domain.Key(p.chain, p.name)
}
