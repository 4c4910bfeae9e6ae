package routing

import (
	"context"

	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
	"github.com/mkral/importer/internal/infra/rpc/provider"
)

// fakeProvider is the shared test double for the routing layer.
type fakeProvider struct {
	name    string
	chain   domain.Blockchain
	caps    provider.Capabilities
	execute func(ctx context.Context, req provider.Request) (cursor.Batch, error)

	calls int
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name:  name,
		chain: domain.BlockchainEthereum,
		caps: provider.Capabilities{
			SupportedOperations: []domain.OperationKind{domain.OpNormalTransactions},
			CursorKinds: []cursor.Kind{
				cursor.KindPageToken,
				cursor.KindBlockNumber,
				cursor.KindTimestamp,
			},
		},
	}
}

func (p *fakeProvider) Name() string                        { return p.name }
func (p *fakeProvider) Blockchain() domain.Blockchain       { return p.chain }
func (p *fakeProvider) Capabilities() provider.Capabilities { return p.caps }
func (p *fakeProvider) RateLimit() provider.RateLimit       { return provider.RateLimit{} }

func (p *fakeProvider) Execute(ctx context.Context, req provider.Request) (cursor.Batch, error) {
	p.calls++
	if p.execute != nil {
		return p.execute(ctx, req)
	}
	return cursor.Batch{IsComplete: true}, nil
}

func (p *fakeProvider) key() domain.ProviderKey {
	return domain.Key(p.chain, p.name)
}

func tx(id string, block uint64, ts int64) domain.Transaction {
	return domain.Transaction{
		ExternalID:  id,
		Chain:       domain.BlockchainEthereum,
		Kind:        domain.OpNormalTransactions,
		Address:     "0xabc",
		BlockNumber: block,
		Timestamp:   ts,
	}
}
