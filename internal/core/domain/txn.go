package domain

// Transaction is a normalized activity record as yielded by a provider.
// Field mapping from vendor schemas happens outside this engine; only the
// fields the streaming layer needs (identity, ordering) are interpreted here.
type Transaction struct {
	ExternalID  string        `json:"external_id" db:"external_id"`
	Chain       Blockchain    `json:"chain" db:"chain"`
	Kind        OperationKind `json:"kind" db:"kind"`
	Address     string        `json:"address" db:"address"`
	BlockNumber uint64        `json:"block_number" db:"block_number"`
	Timestamp   int64         `json:"timestamp" db:"timestamp"`
	Asset       string        `json:"asset" db:"asset"`
	Amount      string        `json:"amount" db:"amount"`
	Fee         string        `json:"fee" db:"fee"`
	Counterpart string        `json:"counterpart" db:"counterpart"`
	Raw         []byte        `json:"raw,omitempty" db:"raw"`
}
