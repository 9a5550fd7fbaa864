// Package normalize turns loosely-structured vendor event payloads
// into canonical domain entities. Field names, nesting depth and
// numeric encodings differ per provider; extraction is alias-driven
// and best-effort, dropping payloads silently when the identity field
// cannot be resolved.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pumpfeed/internal/coerce"
	"pumpfeed/internal/domain"
)

// Per-field key alias sets, in resolution order.
var (
	nameKeys        = []string{"name", "token_name", "coin_name", "tokenName"}
	symbolKeys      = []string{"symbol", "ticker", "token_symbol", "tokenSymbol"}
	priceKeys       = []string{"usd_price", "price_usd", "priceUsd", "price"}
	marketCapKeys   = []string{"usd_market_cap", "market_cap_usd", "marketCapUsd", "market_cap", "marketCap"}
	supplyKeys      = []string{"supply", "total_supply", "totalSupply"}
	volumeKeys      = []string{"volume_24h", "usd_volume_24h", "volume24h", "volume"}
	createdKeys     = []string{"created_timestamp", "createdAt", "created_at", "createdTime", "creation_time", "launch_time"}
	descriptionKeys = []string{"description", "about"}
	imageKeys       = []string{"image_uri", "imageUrl", "image_url", "image", "uri"}
	amountKeys      = []string{"token_amount", "tokenAmount", "amount"}
	solAmountKeys   = []string{"sol_amount", "solAmount"}
	userKeys        = []string{"user", "trader", "traderPublicKey", "wallet", "user_address", "wallet_address"}
	tradeTimeKeys   = []string{"timestamp", "block_time", "time", "created_at", "createdAt"}
	actionKeys      = []string{"action", "side", "txType", "tradeType", "type"}

	// Social links are scanned across several payload sub-sections.
	socialSections = []string{"socials", "links", "community", "metadata"}
	twitterKeys    = []string{"twitter", "twitter_url", "twitter_handle", "x"}
	telegramKeys   = []string{"telegram", "telegram_url", "tg"}
	websiteKeys    = []string{"website", "website_url", "site", "web"}
)

// Result is the outcome of normalizing one payload. Exactly one entity
// pointer is set for a recognized kind; all nil means the payload was
// dropped (missing identity or unknown shape).
type Result struct {
	Kind        domain.EventKind
	Token       *domain.Token
	Transaction *domain.Transaction
	Migration   *domain.MigrationEvent
}

// Empty reports whether normalization produced no entity.
func (r Result) Empty() bool {
	return r.Token == nil && r.Transaction == nil && r.Migration == nil
}

// Normalizer classifies and extracts canonical entities from raw
// vendor payloads. The zero value is not usable; use NewNormalizer.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a Normalizer using wall-clock time for
// defaulted timestamps.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NormalizeBytes decodes a raw message body and normalizes it. A body
// that is not a JSON object yields an Unknown, empty result.
func (n *Normalizer) NormalizeBytes(raw []byte) Result {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Result{Kind: domain.EventUnknown}
	}
	return n.Normalize(payload)
}

// Normalize classifies the payload, flattens it and extracts the
// canonical entity for its kind.
func (n *Normalizer) Normalize(payload map[string]any) Result {
	kind := Classify(payload)
	flat := Flatten(payload)

	switch kind {
	case domain.EventNewToken:
		return Result{Kind: kind, Token: n.extractToken(flat)}
	case domain.EventTrade:
		return Result{Kind: kind, Transaction: n.extractTransaction(flat)}
	case domain.EventMigration:
		return Result{Kind: kind, Migration: n.extractMigration(flat)}
	default:
		return Result{Kind: domain.EventUnknown}
	}
}

// extractToken builds a Token candidate from a flattened field pool.
// Returns nil when the mint address cannot be resolved.
func (n *Normalizer) extractToken(flat map[string]any) *domain.Token {
	mint := firstByKeys(flat, mintKeys)
	if mint == "" {
		return nil
	}

	name := firstByKeys(flat, nameKeys)
	symbol := firstByKeys(flat, symbolKeys)
	if name == "" {
		name = symbol
	}
	if symbol == "" && name != "" {
		symbol = strings.ToUpper(truncate(name, 5))
	}

	price := floatByKeys(flat, priceKeys)
	marketCap := floatByKeys(flat, marketCapKeys)
	supply := floatByKeys(flat, supplyKeys)
	if price == 0 && marketCap > 0 && supply > 0 {
		price = marketCap / supply
	}
	if price == 0 {
		// Some vendors only publish the bonding-curve state.
		price = coerce.FloatOr(flat["bonding_curve"], 0)
	}

	token := &domain.Token{
		MintAddress: mint,
		Name:        name,
		Symbol:      symbol,
		Price:       price,
		MarketCap:   marketCap,
		Volume24h:   floatByKeys(flat, volumeKeys),
		Description: firstByKeys(flat, descriptionKeys),
		ImageURI:    firstByKeys(flat, imageKeys),
		Twitter:     socialLink(flat, twitterKeys),
		Telegram:    socialLink(flat, telegramKeys),
		Website:     socialLink(flat, websiteKeys),
		ScrapedAt:   n.now(),
	}

	for _, key := range createdKeys {
		if v, ok := flat[key]; ok {
			if ts, ok := coerce.Timestamp(v); ok {
				token.CreatedTimestamp = &ts
				break
			}
		}
	}
	return token
}

// extractTransaction builds a Transaction candidate. Both a mint and a
// signature are required; a missing signature is synthesized from
// mint, timestamp and amount so replays stay deterministic.
func (n *Normalizer) extractTransaction(flat map[string]any) *domain.Transaction {
	mint := firstByKeys(flat, mintKeys)
	if mint == "" {
		return nil
	}

	amount := floatByKeys(flat, amountKeys)
	price := floatByKeys(flat, priceKeys)
	if price == 0 {
		// SOL-denominated fallback when no USD price is present.
		sol := floatByKeys(flat, solAmountKeys)
		if amount > 0 {
			price = sol / amount
		} else {
			price = sol
		}
	}

	timestamp := n.now()
	for _, key := range tradeTimeKeys {
		if v, ok := flat[key]; ok {
			if ts, ok := coerce.Timestamp(v); ok {
				timestamp = ts
				break
			}
		}
	}

	signature := firstByKeys(flat, signatureKeys)
	if signature == "" {
		signature = fmt.Sprintf("%s|%d|%g", mint, timestamp.Unix(), amount)
	}

	return &domain.Transaction{
		Signature: signature,
		TokenMint: mint,
		Action:    classifyAction(flat),
		Amount:    amount,
		Price:     price,
		User:      firstByKeys(flat, userKeys),
		Timestamp: timestamp,
		ScrapedAt: n.now(),
	}
}

// classifyAction normalizes the trade side to buy/sell/create via
// substring match, falling back to the is_buy flag and finally to the
// generic "trade".
func classifyAction(flat map[string]any) string {
	raw := strings.ToLower(firstByKeys(flat, actionKeys))
	switch {
	case strings.Contains(raw, "buy"), raw == "purchase":
		return domain.ActionBuy
	case strings.Contains(raw, "sell"):
		return domain.ActionSell
	case strings.Contains(raw, "create"):
		return domain.ActionCreate
	}

	switch isBuy := flat["is_buy"].(type) {
	case bool:
		if isBuy {
			return domain.ActionBuy
		}
		return domain.ActionSell
	case string:
		switch strings.ToLower(strings.TrimSpace(isBuy)) {
		case "true", "1", "buy":
			return domain.ActionBuy
		case "false", "0", "sell":
			return domain.ActionSell
		}
	}
	return domain.ActionTrade
}

// extractMigration passes the flattened payload through with a derived
// ISO timestamp and a deduplication key.
func (n *Normalizer) extractMigration(flat map[string]any) *domain.MigrationEvent {
	timestamp := n.now()
	for _, key := range tradeTimeKeys {
		if v, ok := flat[key]; ok {
			if ts, ok := coerce.Timestamp(v); ok {
				timestamp = ts
				break
			}
		}
	}

	mint := firstByKeys(flat, mintKeys)
	key := firstByKeys(flat, signatureKeys)
	if key == "" {
		key = fmt.Sprintf("%s|%d", mint, timestamp.Unix())
	}

	fields := make(map[string]any, len(flat))
	for k, v := range flat {
		fields[k] = v
	}

	return &domain.MigrationEvent{
		EventKey: key,
		Mint:     mint,
		Fields:   fields,
		ISOTime:  timestamp.UTC().Format(time.RFC3339),
	}
}

// socialLink scans the flat pool and the known social sub-sections for
// the first non-empty alias.
func socialLink(flat map[string]any, keys []string) string {
	if v := firstByKeys(flat, keys); v != "" {
		return v
	}
	for _, section := range socialSections {
		nested, ok := flat[section].(map[string]any)
		if !ok {
			continue
		}
		if v := firstByKeys(nested, keys); v != "" {
			return v
		}
	}
	return ""
}

func floatByKeys(flat map[string]any, keys []string) float64 {
	for _, key := range keys {
		if v, ok := flat[key]; ok {
			if f, ok := coerce.Float(v); ok {
				return f
			}
		}
	}
	return 0
}

// truncate shortens to n runes, not bytes; token names are frequently
// emoji or CJK and must not be cut mid-rune.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
