package domain

type Blockchain string

const (
	BlockchainEthereum Blockchain = "ethereum"
	BlockchainBitcoin  Blockchain = "bitcoin"
	BlockchainPolygon  Blockchain = "polygon"
	BlockchainSolana   Blockchain = "solana"
)

// ProviderKey identifies a provider instance across the resilience layers.
// The breaker, health tracker and rate limiter are all keyed by it.
type ProviderKey string

// Key builds the canonical provider identity, e.g. "ethereum/alchemy".
func Key(chain Blockchain, providerName string) ProviderKey {
	return ProviderKey(string(chain) + "/" + providerName)
}
