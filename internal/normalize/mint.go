package normalize

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ValidMint reports whether a string is a plausible Solana mint
// address: base58, decoding to exactly 32 bytes. Vendor payloads
// occasionally carry truncated or placeholder addresses; callers that
// fan out per-mint requests use this to skip them.
func ValidMint(address string) bool {
	decoded, err := base58.Decode(address)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}

// OnCurve reports whether a 32-byte base58 address is a valid
// ed25519 curve point. Keypair-derived mints are on the curve; PDAs
// are not, so this separates organic launches from program-owned
// accounts.
func OnCurve(address string) bool {
	decoded, err := base58.Decode(address)
	if err != nil || len(decoded) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
