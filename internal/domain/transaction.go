package domain

import "time"

// Trade action constants. ActionTrade is the fallback when the side of
// a trade cannot be classified from the payload.
const (
	ActionBuy    = "buy"
	ActionSell   = "sell"
	ActionCreate = "create"
	ActionTrade  = "trade"
)

// Transaction represents one trade or swap. Identity is the signature;
// a signature is accepted at most once and records are immutable after
// creation.
type Transaction struct {
	Signature string    // vendor transaction id or synthesized fallback
	TokenMint string    // mint address of the traded token
	Action    string    // buy | sell | create | trade
	Amount    float64   // token amount
	Price     float64   // USD price per token (or SOL-derived fallback)
	User      string    // trader wallet (possibly empty)
	Timestamp time.Time // trade time
	ScrapedAt time.Time // when this record was built
}

// Value returns the USD value contributed by this trade.
func (tx *Transaction) Value() float64 {
	return tx.Amount * tx.Price
}
