package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mkral/importer/internal/core/domain"
	"github.com/mkral/importer/internal/infra/storage"
)

// Pruner deletes imported activity that has aged past the retention
// period.
type Pruner struct {
	chain     domain.Blockchain
	retention time.Duration
	txRepo    storage.TransactionRepository
}

// NewPruner creates a new Pruner worker.
func NewPruner(chain domain.Blockchain, retention time.Duration, txRepo storage.TransactionRepository) *Pruner {
	return &Pruner{
		chain:     chain,
		retention: retention,
		txRepo:    txRepo,
	}
}

// Start runs the pruner loop until the context is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // retention disabled
	}

	// Check at roughly 10% of the retention period, clamped to [1m, 1h].
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	threshold := time.Now().Add(-p.retention)

	deleted, err := p.txRepo.DeleteOlderThan(ctx, p.chain, threshold)
	if err != nil {
		slog.Error("Failed to prune transactions", "chain", p.chain, "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Pruned aged transactions", "chain", p.chain, "deleted", deleted)
	}
}
