// Package memory provides in-memory repositories used by tests and by
// deployments that run without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
)

// Storage holds all in-memory state behind one lock.
type Storage struct {
	mu      sync.RWMutex
	cursors map[string]*cursor.State
	txs     map[string]domain.Transaction // keyed by external id
}

// NewStorage creates empty in-memory storage.
func NewStorage() *Storage {
	return &Storage{
		cursors: make(map[string]*cursor.State),
		txs:     make(map[string]domain.Transaction),
	}
}

// CursorRepo implements cursor.Repository over Storage.
type CursorRepo struct {
	store *Storage
}

// NewCursorRepo creates an in-memory checkpoint repository.
func NewCursorRepo(store *Storage) *CursorRepo {
	return &CursorRepo{store: store}
}

func (r *CursorRepo) Get(ctx context.Context, streamID string) (*cursor.State, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	state, ok := r.store.cursors[streamID]
	if !ok {
		return nil, cursor.ErrNotFound
	}
	c := *state
	return &c, nil
}

func (r *CursorRepo) Save(ctx context.Context, streamID string, state *cursor.State) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	c := *state
	r.store.cursors[streamID] = &c
	return nil
}

func (r *CursorRepo) Delete(ctx context.Context, streamID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	delete(r.store.cursors, streamID)
	return nil
}

func (r *CursorRepo) List(ctx context.Context) (map[string]*cursor.State, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make(map[string]*cursor.State, len(r.store.cursors))
	for id, state := range r.store.cursors {
		c := *state
		out[id] = &c
	}
	return out, nil
}

// TxRepo implements storage.TransactionRepository over Storage.
type TxRepo struct {
	store *Storage
}

// NewTxRepo creates an in-memory transaction repository.
func NewTxRepo(store *Storage) *TxRepo {
	return &TxRepo{store: store}
}

func (r *TxRepo) UpsertBatch(ctx context.Context, txs []domain.Transaction) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	written := 0
	for _, tx := range txs {
		if tx.ExternalID == "" {
			continue
		}
		r.store.txs[tx.ExternalID] = tx
		written++
	}
	return written, nil
}

func (r *TxRepo) CountByAddress(ctx context.Context, chain domain.Blockchain, address string) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var n int64
	for _, tx := range r.store.txs {
		if tx.Chain == chain && tx.Address == address {
			n++
		}
	}
	return n, nil
}

func (r *TxRepo) DeleteOlderThan(ctx context.Context, chain domain.Blockchain, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var deleted int64
	cutoff := before.Unix()
	for id, tx := range r.store.txs {
		if tx.Chain == chain && tx.Timestamp < cutoff {
			delete(r.store.txs, id)
			deleted++
		}
	}
	return deleted, nil
}
