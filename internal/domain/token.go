package domain

import "time"

// Token represents one traded asset on the platform.
// Identity is the mint address; two tokens with the same mint are the
// same entity regardless of other field values.
type Token struct {
	MintAddress      string     // stable on-chain identifier (required)
	Name             string     // token name
	Symbol           string     // ticker symbol
	Price            float64    // USD price
	MarketCap        float64    // USD market capitalization
	Volume24h        float64    // accumulated 24h volume (USD)
	CreatedTimestamp *time.Time // launch time (nullable)
	Description      string     // free-form description
	ImageURI         string     // token image URL
	Twitter          string     // twitter link or handle
	Telegram         string     // telegram link
	Website          string     // project website
	ScrapedAt        time.Time  // when this record was first built
}

// Key returns the identity key used for deduplication.
func (t *Token) Key() string {
	return t.MintAddress
}

// Equal reports whether two tokens refer to the same entity.
func (t *Token) Equal(other *Token) bool {
	if other == nil {
		return false
	}
	return t.MintAddress == other.MintAddress
}
