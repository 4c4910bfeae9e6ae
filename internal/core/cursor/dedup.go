package cursor

import (
	"sync"

	"github.com/mkral/importer/internal/core/domain"
)

// Deduper filters duplicate transactions within one import run.
//
// When several source addresses feed one logical stream (derived addresses
// of an extended public key) the same transaction can show up on both sides.
// The set lives in memory for the duration of the run only; it is not part
// of the persisted checkpoint.
type Deduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	dropped uint64
}

// NewDeduper creates an empty run-local dedup set.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Filter returns the items whose external id has not been seen before in
// this run, marking them seen. Order is preserved. Items with an empty
// external id pass through untouched; identity is unknowable for them.
func (d *Deduper) Filter(items []domain.Transaction) []domain.Transaction {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := items[:0:len(items)]
	for _, tx := range items {
		if tx.ExternalID == "" {
			out = append(out, tx)
			continue
		}
		if _, dup := d.seen[tx.ExternalID]; dup {
			d.dropped++
			continue
		}
		d.seen[tx.ExternalID] = struct{}{}
		out = append(out, tx)
	}
	return out
}

// Seen reports whether an external id was already yielded in this run.
func (d *Deduper) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// Size returns the number of distinct ids yielded so far.
func (d *Deduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Dropped returns how many duplicates were filtered out.
func (d *Deduper) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}
