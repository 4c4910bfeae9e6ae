package routing

import (
	"context"
	"fmt"

	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
	"github.com/mkral/importer/internal/infra/rpc/provider"
)

// maxStalledPages bounds how many consecutive pages may add nothing before
// the stream is declared stuck. Without it a provider that keeps replaying
// already-delivered items with IsComplete=false would loop forever.
const maxStalledPages = 3

// StreamRequest describes one resumable paginated import stream.
type StreamRequest struct {
	Kind     domain.OperationKind
	Address  string
	Asset    string
	PageSize int

	// Resume is the checkpoint to continue from; nil starts fresh.
	Resume *cursor.State

	// Extract derives alternative cursors from the last item of each
	// batch. Nil uses cursor.DefaultExtractor.
	Extract cursor.Extractor

	// MaxPages bounds the stream length, 0 meaning "until complete".
	MaxPages int
}

// YieldFunc receives each delivered batch together with the checkpoint
// built from it. Returning an error stops the stream; the returned state
// still reflects everything yielded so far.
type YieldFunc func(batch cursor.Batch, state *cursor.State) error

// RunStream drives a whole paginated import through repeated failover
// runs, one per page. The cursor is carried across provider switches: a
// provider that cannot resume from any representation in the checkpoint
// is left out of that page's candidate list. Timeouts in opts apply per
// page, not to the stream as a whole.
func (e *Executor) RunStream(
	ctx context.Context,
	providers []provider.Provider,
	req StreamRequest,
	opts Options,
	yield YieldFunc,
) (*cursor.State, error) {
	state := req.Resume
	stalled := 0

	for page := 0; req.MaxPages == 0 || page < req.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		eligible := resumable(providers, state)
		if len(eligible) == 0 {
			return state, ErrNoProviders
		}

		execute := func(ctx context.Context, p provider.Provider) (cursor.Batch, error) {
			var resume cursor.Cursor
			if state != nil {
				resume, _ = cursor.ResumeFor(state, p.Name(), p.Capabilities().UnderstandsCursor)
			}
			return p.Execute(ctx, provider.Request{
				Kind:     req.Kind,
				Address:  req.Address,
				Asset:    req.Asset,
				Resume:   resume,
				PageSize: req.PageSize,
			})
		}

		result, err := e.Run(ctx, eligible, execute, opts)
		if err != nil {
			return state, err
		}

		batch := result.Batch
		if state != nil {
			batch.Items = trimReplayed(batch.Items, state.LastTransactionID)
		}

		// A stream can legitimately be empty: an address with no activity
		// answers the first page with zero items and a completion marker.
		// There is nothing to checkpoint, and nothing went wrong.
		if len(batch.Items) == 0 && state == nil {
			if batch.IsComplete {
				return nil, nil
			}
			stalled++
			if stalled >= maxStalledPages {
				return nil, fmt.Errorf("%d consecutive pages without progress: %w", stalled, ErrStreamStalled)
			}
			continue
		}

		next, err := cursor.Build(state, batch, result.ProviderName, req.Extract, e.now())
		if err != nil {
			return state, err
		}

		if err := yield(batch, next); err != nil {
			return state, err
		}
		state = next

		if batch.IsComplete {
			break
		}

		if len(batch.Items) == 0 {
			stalled++
			if stalled >= maxStalledPages {
				return state, fmt.Errorf("%d consecutive pages without progress: %w", stalled, ErrStreamStalled)
			}
		} else {
			stalled = 0
		}
	}

	return state, nil
}

// resumable filters the candidate list down to providers that can continue
// from the current checkpoint. With no checkpoint every provider is a
// candidate.
func resumable(providers []provider.Provider, state *cursor.State) []provider.Provider {
	if state == nil {
		return providers
	}
	out := make([]provider.Provider, 0, len(providers))
	for _, p := range providers {
		if _, ok := cursor.ResumeFor(state, p.Name(), p.Capabilities().UnderstandsCursor); ok {
			out = append(out, p)
		}
	}
	return out
}

// trimReplayed drops the overlap when a provider replays records up to and
// including the last yielded transaction id.
func trimReplayed(items []domain.Transaction, lastID string) []domain.Transaction {
	if lastID == "" {
		return items
	}
	for i, tx := range items {
		if tx.ExternalID == lastID {
			return items[i+1:]
		}
	}
	return items
}
