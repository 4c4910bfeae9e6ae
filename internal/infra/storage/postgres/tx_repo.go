package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/mkral/importer/internal/core/domain"
)

// TxRepo implements storage.TransactionRepository on PostgreSQL.
type TxRepo struct {
	db *DB
}

// NewTxRepo creates a PostgreSQL transaction repository.
func NewTxRepo(db *DB) *TxRepo {
	return &TxRepo{db: db}
}

// UpsertBatch writes a batch idempotently on external id. Re-delivered
// records around a resumed checkpoint overwrite their earlier copies
// instead of duplicating them.
func (r *TxRepo) UpsertBatch(ctx context.Context, txs []domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO transactions
			(external_id, chain, kind, address, block_number, timestamp,
			 asset, amount, fee, counterpart, raw)
		VALUES
			(:external_id, :chain, :kind, :address, :block_number, :timestamp,
			 :asset, :amount, :fee, :counterpart, :raw)
		ON CONFLICT (external_id) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			timestamp    = EXCLUDED.timestamp,
			asset        = EXCLUDED.asset,
			amount       = EXCLUDED.amount,
			fee          = EXCLUDED.fee,
			counterpart  = EXCLUDED.counterpart,
			raw          = EXCLUDED.raw`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, t := range txs {
		if t.ExternalID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, t); err != nil {
			return 0, fmt.Errorf("upsert transaction %s: %w", t.ExternalID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert batch: %w", err)
	}
	return written, nil
}

// CountByAddress returns the stored record count for an address.
func (r *TxRepo) CountByAddress(ctx context.Context, chain domain.Blockchain, address string) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM transactions WHERE chain = $1 AND address = $2`,
		chain, address)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes aged records for the retention pruner.
func (r *TxRepo) DeleteOlderThan(ctx context.Context, chain domain.Blockchain, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE chain = $1 AND timestamp < $2`,
		chain, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete aged transactions: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
