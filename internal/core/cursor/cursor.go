// Package cursor tracks the resume position for each streaming import.
//
// # Purpose
//
// The cursor acts as a "bookmark" that remembers where a paginated import
// left off, so an interrupted run can resume without refetching the whole
// history:
//   - Primary cursor: the representation used to request the next page
//   - Alternatives: equivalent representations (block number, timestamp)
//     derived from the same last-seen record, so a different provider can
//     resume the stream if the original one becomes unavailable
//   - LastTransactionID: idempotent-resume check against provider replays
//   - TotalFetched: monotonically increasing across provider switches
//
// # Key Properties
//
// Checkpoint Safety - a cursor is only ever built from a batch that has been
// handed to the caller. It never references data the caller has not seen.
//
// Cross-Provider Resume - a page token is opaque to everyone but the provider
// that issued it. When failover picks another provider, ResumeFor falls back
// to the first alternative cursor kind the new provider understands.
//
// At-Least-Once - the in-run dedup set is not persisted. After a crash the
// first resumed batch may re-yield records already seen; consumers must
// upsert on external id, not insert blindly.
package cursor

import (
	"strconv"
	"time"
)

// Kind discriminates cursor representations.
type Kind string

const (
	// KindPageToken is a provider-issued opaque continuation token. It is
	// only meaningful to the provider named in the cursor.
	KindPageToken Kind = "page_token"

	// KindBlockNumber resumes from a chain height. Portable across providers.
	KindBlockNumber Kind = "block_number"

	// KindTimestamp resumes from a unix timestamp. The least specific kind.
	KindTimestamp Kind = "timestamp"
)

// Cursor is one resume-position representation.
type Cursor struct {
	Kind Kind `json:"kind"`

	// PageToken and ProviderName are set when Kind == KindPageToken.
	PageToken    string `json:"page_token,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`

	// BlockNumber is set when Kind == KindBlockNumber.
	BlockNumber uint64 `json:"block_number,omitempty"`

	// Timestamp is set when Kind == KindTimestamp.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Metadata carries bookkeeping about the checkpoint itself.
type Metadata struct {
	ProviderName string    `json:"provider_name"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Custom is a provider-specific opaque bag. It is namespaced under its
	// own field so it can never collide with the reserved fields above.
	Custom map[string]any `json:"custom,omitempty"`
}

// State is the persistable checkpoint for one logical stream.
type State struct {
	Primary           Cursor   `json:"primary"`
	Alternatives      []Cursor `json:"alternatives,omitempty"`
	LastTransactionID string   `json:"last_transaction_id"`
	TotalFetched      uint64   `json:"total_fetched"`
	Metadata          Metadata `json:"metadata"`
}

// specificity orders cursor kinds from most to least precise. Used when no
// page token is available and a fallback primary must be chosen.
var specificity = map[Kind]int{
	KindPageToken:   3,
	KindBlockNumber: 2,
	KindTimestamp:   1,
}

// MoreSpecific reports whether a is a more precise resume point than b.
func MoreSpecific(a, b Kind) bool {
	return specificity[a] > specificity[b]
}

// Value renders the position of this cursor as a string, independent of
// its kind. Used for request parameters and diagnostics.
func (c Cursor) Value() string {
	switch c.Kind {
	case KindPageToken:
		return c.PageToken
	case KindBlockNumber:
		return strconv.FormatUint(c.BlockNumber, 10)
	case KindTimestamp:
		return strconv.FormatInt(c.Timestamp, 10)
	}
	return ""
}
