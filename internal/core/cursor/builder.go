package cursor

import (
	"errors"
	"fmt"
	"time"

	"github.com/mkral/importer/internal/core/domain"
)

var (
	// ErrEmptyBatch is returned when a cursor is built from a batch with no
	// items and no prior state to carry forward.
	ErrEmptyBatch = errors.New("cannot build cursor from empty batch")

	// ErrTotalFetchedDecreased signals a checkpoint regression, which would
	// break the monotonic totalFetched invariant.
	ErrTotalFetchedDecreased = errors.New("totalFetched would decrease")
)

// Batch is one page of results as yielded by a provider.
type Batch struct {
	Items []domain.Transaction

	// PageToken is the provider-issued continuation token for the next page,
	// empty when the provider does not paginate by token.
	PageToken string

	// IsComplete marks the final page of the stream.
	IsComplete bool
}

// Extractor derives the alternative cursor representations from the last
// item of a batch. Providers register extractors that capture whatever
// fields they populate (block height, timestamp) so the checkpoint stays
// usable when a different provider has to resume the stream.
type Extractor func(last domain.Transaction) []Cursor

// DefaultExtractor captures block number and timestamp when present.
func DefaultExtractor(last domain.Transaction) []Cursor {
	var alts []Cursor
	if last.BlockNumber > 0 {
		alts = append(alts, Cursor{Kind: KindBlockNumber, BlockNumber: last.BlockNumber})
	}
	if last.Timestamp > 0 {
		alts = append(alts, Cursor{Kind: KindTimestamp, Timestamp: last.Timestamp})
	}
	return alts
}

// Build produces the next checkpoint from a delivered batch.
//
// The cursor is derived from the last item only. A provider-issued page
// token becomes the primary; otherwise the most specific alternative does.
// TotalFetched accumulates across batches and provider switches.
func Build(prev *State, batch Batch, providerName string, extract Extractor, now time.Time) (*State, error) {
	if len(batch.Items) == 0 {
		if prev == nil {
			return nil, ErrEmptyBatch
		}
		// Nothing new: carry the previous checkpoint, refresh metadata.
		next := *prev
		next.Metadata.ProviderName = providerName
		next.Metadata.UpdatedAt = now
		return &next, nil
	}

	if extract == nil {
		extract = DefaultExtractor
	}

	last := batch.Items[len(batch.Items)-1]
	alts := extract(last)

	next := &State{
		Alternatives:      alts,
		LastTransactionID: last.ExternalID,
		TotalFetched:      uint64(len(batch.Items)),
		Metadata: Metadata{
			ProviderName: providerName,
			UpdatedAt:    now,
		},
	}
	if prev != nil {
		next.TotalFetched += prev.TotalFetched
		next.Metadata.Custom = prev.Metadata.Custom
		if next.TotalFetched < prev.TotalFetched {
			return nil, ErrTotalFetchedDecreased
		}
	}

	if batch.PageToken != "" {
		next.Primary = Cursor{
			Kind:         KindPageToken,
			PageToken:    batch.PageToken,
			ProviderName: providerName,
		}
	} else {
		primary, ok := mostSpecific(alts)
		if !ok {
			return nil, fmt.Errorf("no cursor derivable from item %q", last.ExternalID)
		}
		next.Primary = primary
	}

	return next, nil
}

// ResumeFor picks the cursor a target provider can resume from.
//
// The primary page token is honored only by the provider that issued it;
// everyone else falls back through the alternatives in order. understands
// reports which kinds the target provider accepts.
func ResumeFor(state *State, providerName string, understands func(Kind) bool) (Cursor, bool) {
	if state == nil {
		return Cursor{}, false
	}

	if state.Primary.Kind == KindPageToken {
		if state.Primary.ProviderName == providerName && understands(KindPageToken) {
			return state.Primary, true
		}
	} else if understands(state.Primary.Kind) {
		return state.Primary, true
	}

	for _, alt := range state.Alternatives {
		if alt.Kind == KindPageToken && alt.ProviderName != providerName {
			continue
		}
		if understands(alt.Kind) {
			return alt, true
		}
	}

	return Cursor{}, false
}

func mostSpecific(alts []Cursor) (Cursor, bool) {
	if len(alts) == 0 {
		return Cursor{}, false
	}
	best := alts[0]
	for _, c := range alts[1:] {
		if MoreSpecific(c.Kind, best.Kind) {
			best = c
		}
	}
	return best, true
}
