// Package storage defines the persistence boundary of the importer.
//
// Checkpoints implement cursor.Repository; imported activity goes through
// TransactionRepository. Implementations: memory (tests, default),
// postgres, and a Redis checkpoint store in internal/infra/redis.
package storage

import (
	"context"
	"time"

	"github.com/mkral/importer/internal/core/domain"
)

// TransactionRepository persists normalized activity records.
//
// Writes must be idempotent on external id: resumed streams are
// at-least-once and may re-deliver records around the checkpoint.
type TransactionRepository interface {
	// UpsertBatch stores a batch, updating rows whose external id is
	// already present. Returns the number of rows actually written.
	UpsertBatch(ctx context.Context, txs []domain.Transaction) (int, error)

	// CountByAddress returns the stored record count for an address.
	CountByAddress(ctx context.Context, chain domain.Blockchain, address string) (int64, error)

	// DeleteOlderThan removes records whose timestamp predates the
	// threshold, returning how many were deleted. Used by the retention
	// pruner.
	DeleteOlderThan(ctx context.Context, chain domain.Blockchain, before time.Time) (int64, error)
}
