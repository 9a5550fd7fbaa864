package normalize

import (
	"strings"

	"pumpfeed/internal/coerce"
	"pumpfeed/internal/domain"
)

// typeKeys are the envelope keys that may carry a declared event type.
var typeKeys = []string{"type", "event", "method", "channel", "topic", "txType", "tx_type"}

// Declared kind-name sets, matched after lowercasing.
var (
	newTokenKinds = map[string]bool{
		"newtoken": true, "new_token": true, "new-token": true,
		"tokencreated": true, "token_created": true, "created": true,
		"create": true, "launch": true, "newpair": true, "new_pair": true,
	}
	tradeKinds = map[string]bool{
		"trade": true, "tokentrade": true, "token_trade": true,
		"swap": true, "buy": true, "sell": true, "transaction": true,
	}
	migrationKinds = map[string]bool{
		"migration": true, "migrate": true, "migrated": true,
		"graduation": true, "graduated": true,
	}
)

// Field-presence indicator sets for structural inference.
var (
	mintKeys = []string{"mint", "mint_address", "address", "token_address", "public_key"}

	signatureKeys = []string{"signature", "txSignature", "tx_signature", "transaction_hash", "tx_hash", "txHash"}

	tradeIndicatorKeys = []string{
		"side", "is_buy", "isBuy", "tradeType", "trade_type",
		"sol_amount", "solAmount", "token_amount", "tokenAmount",
		"trader", "traderPublicKey",
	}

	migrationIndicatorKeys = []string{
		"pool", "poolAddress", "pool_address", "raydium_pool",
		"bondingCurveKey", "bonding_curve_key", "migrated_to", "amm",
	}
)

// DeclaredType walks the envelope looking for a declared event type,
// recursing through nested data/payload containers. Returns the first
// non-empty type string found, lowercased.
func DeclaredType(payload map[string]any) string {
	for _, key := range typeKeys {
		if s, ok := payload[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return strings.ToLower(trimmed)
			}
		}
	}
	for _, container := range []string{"data", "payload"} {
		if nested, ok := payload[container].(map[string]any); ok {
			if t := DeclaredType(nested); t != "" {
				return t
			}
		}
	}
	return ""
}

// Classify determines the event kind of a raw payload. A declared type
// wins; otherwise structural inference over the flattened field pool
// applies with precedence new-token > trade > migration, so a creation
// event that also carries price fields is never misread as a trade.
func Classify(payload map[string]any) domain.EventKind {
	declared := DeclaredType(payload)
	switch {
	case newTokenKinds[declared]:
		return domain.EventNewToken
	case tradeKinds[declared]:
		return domain.EventTrade
	case migrationKinds[declared] || strings.Contains(declared, "migration"):
		return domain.EventMigration
	}

	flat := Flatten(payload)
	switch {
	case looksLikeNewToken(flat):
		return domain.EventNewToken
	case looksLikeTrade(flat):
		return domain.EventTrade
	case looksLikeMigration(declared, flat):
		return domain.EventMigration
	default:
		return domain.EventUnknown
	}
}

// looksLikeNewToken requires a resolvable mint plus either a
// name/symbol or a coercible price/market-cap field. The numeric
// branch yields to explicit trade indicators: a bare mint+price payload
// that also carries a side or amount field is a trade, not a launch.
func looksLikeNewToken(flat map[string]any) bool {
	if firstByKeys(flat, mintKeys) == "" {
		return false
	}
	if coerce.FirstString(flat["name"], flat["token_name"], flat["symbol"], flat["ticker"]) != "" {
		return true
	}
	if hasAnyKey(flat, tradeIndicatorKeys) {
		return false
	}
	for _, key := range []string{"price", "priceUsd", "price_usd", "usd_price", "market_cap", "marketCap", "usd_market_cap", "marketCapUsd"} {
		if v, ok := flat[key]; ok {
			if _, ok := coerce.Float(v); ok {
				return true
			}
		}
	}
	return false
}

func hasAnyKey(flat map[string]any, keys []string) bool {
	for _, key := range keys {
		if _, ok := flat[key]; ok {
			return true
		}
	}
	return false
}

// looksLikeTrade requires (signature and mint) or (mint and any trade
// indicator field).
func looksLikeTrade(flat map[string]any) bool {
	if firstByKeys(flat, mintKeys) == "" {
		return false
	}
	return firstByKeys(flat, signatureKeys) != "" || hasAnyKey(flat, tradeIndicatorKeys)
}

func looksLikeMigration(declared string, flat map[string]any) bool {
	if strings.Contains(declared, "migration") {
		return true
	}
	for _, key := range migrationIndicatorKeys {
		if _, ok := flat[key]; ok {
			return true
		}
	}
	return false
}

// firstByKeys returns the first non-empty string value among keys.
func firstByKeys(flat map[string]any, keys []string) string {
	vals := make([]any, 0, len(keys))
	for _, key := range keys {
		vals = append(vals, flat[key])
	}
	return coerce.FirstString(vals...)
}
