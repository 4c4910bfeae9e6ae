package domain

// OperationKind identifies a category of data a provider can fetch.
type OperationKind string

const (
	OpNormalTransactions   OperationKind = "normal_transactions"
	OpInternalTransactions OperationKind = "internal_transactions"
	OpTokenTransfers       OperationKind = "token_transfers"
	OpBalances             OperationKind = "balances"
	OpPrices               OperationKind = "prices"
)

// Granularity describes the finest time resolution a provider can serve
// for price/history queries. The selector uses it for fit scoring.
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
)
