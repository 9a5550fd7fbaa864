package normalize

import (
	"testing"
	"time"
	"unicode/utf8"

	"pumpfeed/internal/domain"
)

func testNormalizer() *Normalizer {
	n := NewNormalizer()
	n.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return n
}

func TestNormalize_NewTokenEnvelope(t *testing.T) {
	n := testNormalizer()
	raw := []byte(`{"type":"newToken","data":{"mint":"ABC123","name":"Foo","symbol":"FOO","priceUsd":"0.0015","marketCapUsd":1500000}}`)

	res := n.NormalizeBytes(raw)
	if res.Kind != domain.EventNewToken {
		t.Fatalf("kind = %v; want new token", res.Kind)
	}
	tok := res.Token
	if tok == nil {
		t.Fatal("expected token")
	}
	if tok.MintAddress != "ABC123" {
		t.Errorf("mint = %q", tok.MintAddress)
	}
	if tok.Price != 0.0015 {
		t.Errorf("price = %v; want 0.0015", tok.Price)
	}
	if tok.MarketCap != 1500000.0 {
		t.Errorf("market cap = %v; want 1500000", tok.MarketCap)
	}
	if tok.Name != "Foo" || tok.Symbol != "FOO" {
		t.Errorf("name/symbol = %q/%q", tok.Name, tok.Symbol)
	}
}

func TestNormalize_TokenMissingMintDropped(t *testing.T) {
	n := testNormalizer()
	res := n.NormalizeBytes([]byte(`{"type":"newToken","data":{"name":"NoMint","priceUsd":"1.0"}}`))
	if res.Kind != domain.EventNewToken {
		t.Fatalf("kind = %v", res.Kind)
	}
	if res.Token != nil {
		t.Error("token without mint must be dropped")
	}
}

func TestNormalize_TokenDerivedPrice(t *testing.T) {
	n := testNormalizer()
	payload := map[string]any{
		"type":       "newToken",
		"mint":       "MINT1",
		"name":       "Derived",
		"market_cap": 2000000.0,
		"supply":     1000000000.0,
	}
	res := n.Normalize(payload)
	if res.Token == nil {
		t.Fatal("expected token")
	}
	if res.Token.Price != 0.002 {
		t.Errorf("derived price = %v; want 0.002", res.Token.Price)
	}
}

func TestNormalize_TokenSymbolFallback(t *testing.T) {
	n := testNormalizer()
	res := n.Normalize(map[string]any{"type": "newToken", "mint": "M", "name": "longtokenname"})
	if res.Token == nil {
		t.Fatal("expected token")
	}
	if res.Token.Symbol != "LONGT" {
		t.Errorf("symbol fallback = %q; want LONGT", res.Token.Symbol)
	}
}

func TestNormalize_TokenSymbolFallbackMultibyte(t *testing.T) {
	n := testNormalizer()
	res := n.Normalize(map[string]any{"type": "newToken", "mint": "M", "name": "🚀🚀🚀🚀🚀🚀🚀"})
	if res.Token == nil {
		t.Fatal("expected token")
	}
	if !utf8.ValidString(res.Token.Symbol) {
		t.Errorf("symbol fallback %q is not valid UTF-8", res.Token.Symbol)
	}
	if got := utf8.RuneCountInString(res.Token.Symbol); got != 5 {
		t.Errorf("symbol fallback rune count = %d; want 5", got)
	}
}

func TestNormalize_TokenSocialSections(t *testing.T) {
	n := testNormalizer()
	payload := map[string]any{
		"type": "newToken",
		"mint": "MINT2",
		"name": "Social",
		"socials": map[string]any{
			"twitter": "https://x.com/foo",
		},
		"links": map[string]any{
			"website_url": "https://foo.example",
		},
	}
	res := n.Normalize(payload)
	if res.Token == nil {
		t.Fatal("expected token")
	}
	if res.Token.Twitter != "https://x.com/foo" {
		t.Errorf("twitter = %q", res.Token.Twitter)
	}
	if res.Token.Website != "https://foo.example" {
		t.Errorf("website = %q", res.Token.Website)
	}
}

func TestNormalize_TradeStructural(t *testing.T) {
	n := testNormalizer()
	raw := []byte(`{"mint":"ABC123","tokenAmount":"1,000","priceUsd":"0.002","side":"BUY"}`)

	res := n.NormalizeBytes(raw)
	if res.Kind != domain.EventTrade {
		t.Fatalf("kind = %v; want trade", res.Kind)
	}
	tx := res.Transaction
	if tx == nil {
		t.Fatal("expected transaction")
	}
	if tx.Action != domain.ActionBuy {
		t.Errorf("action = %q; want buy", tx.Action)
	}
	if tx.Amount != 1000.0 {
		t.Errorf("amount = %v; want 1000", tx.Amount)
	}
	if tx.Price != 0.002 {
		t.Errorf("price = %v", tx.Price)
	}
}

func TestNormalize_TradeSignatureSynthesis(t *testing.T) {
	n := testNormalizer()
	payload := map[string]any{
		"mint":      "ABC123",
		"timestamp": 1700000000,
		"amount":    50.0,
		"side":      "sell",
	}

	first := n.Normalize(payload)
	second := n.Normalize(payload)
	if first.Transaction == nil || second.Transaction == nil {
		t.Fatal("expected transactions")
	}
	if first.Transaction.Signature == "" {
		t.Fatal("signature not synthesized")
	}
	if first.Transaction.Signature != second.Transaction.Signature {
		t.Errorf("synthesized signatures differ: %q vs %q",
			first.Transaction.Signature, second.Transaction.Signature)
	}
}

func TestNormalize_TradeSolPriceFallback(t *testing.T) {
	n := testNormalizer()
	res := n.Normalize(map[string]any{
		"mint":        "ABC123",
		"signature":   "sig1",
		"solAmount":   2.0,
		"tokenAmount": 1000.0,
	})
	if res.Transaction == nil {
		t.Fatal("expected transaction")
	}
	if res.Transaction.Price != 0.002 {
		t.Errorf("sol fallback price = %v; want 0.002", res.Transaction.Price)
	}

	// Zero amount: raw sol amount is used as the price.
	res = n.Normalize(map[string]any{
		"mint":      "ABC123",
		"signature": "sig2",
		"solAmount": 1.5,
	})
	if res.Transaction.Price != 1.5 {
		t.Errorf("zero-amount fallback = %v; want 1.5", res.Transaction.Price)
	}
}

func TestNormalize_TradeActionFallback(t *testing.T) {
	n := testNormalizer()

	res := n.Normalize(map[string]any{"mint": "M", "signature": "s", "is_buy": true})
	if res.Transaction.Action != domain.ActionBuy {
		t.Errorf("is_buy true = %q", res.Transaction.Action)
	}

	res = n.Normalize(map[string]any{"mint": "M", "signature": "s", "is_buy": "false"})
	if res.Transaction.Action != domain.ActionSell {
		t.Errorf("is_buy false = %q", res.Transaction.Action)
	}

	res = n.Normalize(map[string]any{"mint": "M", "signature": "s", "trader": "w"})
	if res.Transaction.Action != domain.ActionTrade {
		t.Errorf("unclassifiable = %q; want trade", res.Transaction.Action)
	}
}

func TestNormalize_MigrationEventKey(t *testing.T) {
	n := testNormalizer()
	payload := map[string]any{
		"type":      "migration",
		"mint":      "ABC123",
		"timestamp": 1700000000,
		"pool":      "raydium",
	}

	first := n.Normalize(payload)
	second := n.Normalize(payload)
	if first.Kind != domain.EventMigration || first.Migration == nil {
		t.Fatalf("migration not extracted: %+v", first)
	}
	if first.Migration.EventKey != second.Migration.EventKey {
		t.Error("migration keys must be deterministic")
	}
	if first.Migration.EventKey != "ABC123|1700000000" {
		t.Errorf("event key = %q", first.Migration.EventKey)
	}
	if first.Migration.ISOTime == "" {
		t.Error("derived ISO timestamp missing")
	}
}

func TestNormalizeBytes_Garbage(t *testing.T) {
	n := testNormalizer()
	res := n.NormalizeBytes([]byte("not json"))
	if res.Kind != domain.EventUnknown || !res.Empty() {
		t.Errorf("garbage should be unknown and empty: %+v", res)
	}
}
