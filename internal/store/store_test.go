package store

import (
	"fmt"
	"testing"
	"time"

	"pumpfeed/internal/domain"
)

func makeToken(mint string) *domain.Token {
	return &domain.Token{
		MintAddress: mint,
		Name:        "Token " + mint,
		Symbol:      "TK",
		Price:       0.001,
		ScrapedAt:   time.Now(),
	}
}

func TestUpsertToken_SingleEntryPerMint(t *testing.T) {
	s := NewMergeStore()

	first := makeToken("MINT1")
	first.Volume24h = 100
	second := makeToken("MINT1")
	second.Volume24h = 50

	s.UpsertToken(first)
	merged := s.UpsertToken(second)

	snap := s.Snapshot()
	if len(snap.Tokens) != 1 {
		t.Fatalf("store has %d tokens; want 1", len(snap.Tokens))
	}
	if merged.Volume24h != 150 {
		t.Errorf("volume = %v; want sum 150", merged.Volume24h)
	}
}

func TestUpsertToken_InformativeOverwrite(t *testing.T) {
	s := NewMergeStore()

	full := makeToken("MINT1")
	full.Description = "known description"
	full.Twitter = "https://x.com/foo"
	full.MarketCap = 1000000
	s.UpsertToken(full)

	// A later price-only sighting must not blank out known fields.
	sparse := &domain.Token{MintAddress: "MINT1", Price: 0.005}
	merged := s.UpsertToken(sparse)

	if merged.Price != 0.005 {
		t.Errorf("price not updated: %v", merged.Price)
	}
	if merged.Description != "known description" {
		t.Errorf("description blanked: %q", merged.Description)
	}
	if merged.Twitter != "https://x.com/foo" {
		t.Errorf("twitter blanked: %q", merged.Twitter)
	}
	if merged.MarketCap != 1000000 {
		t.Errorf("market cap blanked: %v", merged.MarketCap)
	}
}

func TestUpsertToken_Idempotent(t *testing.T) {
	s := NewMergeStore()

	candidate := makeToken("MINT1")
	candidate.MarketCap = 1500000
	first := *s.UpsertToken(candidate)
	second := *s.UpsertToken(makeToken("MINT1"))

	if first.Name != second.Name || first.Price != second.Price ||
		first.Symbol != second.Symbol || first.MarketCap != second.MarketCap {
		t.Errorf("re-upsert changed fields: %+v vs %+v", first, second)
	}
}

func TestUpsertToken_CreatedTimestampKeepsFirst(t *testing.T) {
	s := NewMergeStore()

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tok := makeToken("MINT1")
	tok.CreatedTimestamp = &early
	s.UpsertToken(tok)

	update := makeToken("MINT1")
	update.CreatedTimestamp = &late
	merged := s.UpsertToken(update)

	if merged.CreatedTimestamp == nil || !merged.CreatedTimestamp.Equal(early) {
		t.Errorf("created timestamp changed: %v", merged.CreatedTimestamp)
	}

	// A previously nil timestamp is filled in.
	bare := &domain.Token{MintAddress: "MINT2"}
	s.UpsertToken(bare)
	update = &domain.Token{MintAddress: "MINT2", CreatedTimestamp: &late}
	merged = s.UpsertToken(update)
	if merged.CreatedTimestamp == nil || !merged.CreatedTimestamp.Equal(late) {
		t.Errorf("nil timestamp not filled: %v", merged.CreatedTimestamp)
	}
}

func TestAppendTransaction_DuplicateSignatureDropped(t *testing.T) {
	s := NewMergeStore()

	tx := &domain.Transaction{Signature: "sig1", TokenMint: "MINT1", Action: domain.ActionBuy}
	if !s.AppendTransaction(tx) {
		t.Fatal("first append rejected")
	}
	if s.AppendTransaction(tx) {
		t.Fatal("duplicate append accepted")
	}

	snap := s.Snapshot()
	if len(snap.Transactions) != 1 {
		t.Errorf("transactions = %d; want 1", len(snap.Transactions))
	}
	if snap.Stats.DuplicatesDropped != 1 {
		t.Errorf("duplicates dropped = %d; want 1", snap.Stats.DuplicatesDropped)
	}
}

func TestAppendTransaction_InsertionOrder(t *testing.T) {
	s := NewMergeStore()
	for i := 0; i < 5; i++ {
		s.AppendTransaction(&domain.Transaction{
			Signature: fmt.Sprintf("sig%d", i),
			TokenMint: "MINT1",
		})
	}

	snap := s.Snapshot()
	for i, tx := range snap.Transactions {
		if tx.Signature != fmt.Sprintf("sig%d", i) {
			t.Fatalf("order broken at %d: %q", i, tx.Signature)
		}
	}
}

func TestRecordLaunch_OncePerMint(t *testing.T) {
	s := NewMergeStore()

	tok := makeToken("MINT1")
	if !s.RecordLaunch(tok) {
		t.Fatal("first launch rejected")
	}
	if s.RecordLaunch(makeToken("MINT1")) {
		t.Fatal("second launch accepted")
	}

	// A later upsert updates the launch entry in place.
	update := makeToken("MINT1")
	update.Name = "Renamed"
	s.UpsertToken(update)

	snap := s.Snapshot()
	if len(snap.NewLaunches) != 1 {
		t.Fatalf("launches = %d; want 1", len(snap.NewLaunches))
	}
	if snap.NewLaunches[0].Name != "Renamed" {
		t.Errorf("launch entry not synced: %q", snap.NewLaunches[0].Name)
	}
}

func TestRecordMigration_DedupByEventKey(t *testing.T) {
	s := NewMergeStore()

	event := &domain.MigrationEvent{EventKey: "ABC123|1700000000", Mint: "ABC123"}
	if !s.RecordMigration(event) {
		t.Fatal("first migration rejected")
	}
	// Identical mint and timestamp with no signature collapse to one.
	dup := &domain.MigrationEvent{EventKey: "ABC123|1700000000", Mint: "ABC123"}
	if s.RecordMigration(dup) {
		t.Fatal("duplicate migration accepted")
	}

	if got := len(s.Snapshot().Migrations); got != 1 {
		t.Errorf("migrations = %d; want 1", got)
	}
}

func TestAddTradeVolume_UnknownMintCreatesToken(t *testing.T) {
	s := NewMergeStore()

	tx := &domain.Transaction{
		Signature: "sig1",
		TokenMint: "MINT9",
		Amount:    1000,
		Price:     0.002,
	}
	s.AddTradeVolume(tx)

	snap := s.Snapshot()
	if len(snap.Tokens) != 1 {
		t.Fatalf("tokens = %d; want 1", len(snap.Tokens))
	}
	if snap.Tokens[0].Volume24h != 2.0 {
		t.Errorf("volume = %v; want 2.0", snap.Tokens[0].Volume24h)
	}
	if snap.Tokens[0].Price != 0.002 {
		t.Errorf("price seeded = %v", snap.Tokens[0].Price)
	}
}

func TestSnapshot_IsolatedFromLiveStore(t *testing.T) {
	s := NewMergeStore()
	s.UpsertToken(makeToken("MINT1"))

	snap := s.Snapshot()
	snap.Tokens[0].Name = "mutated"

	if s.Snapshot().Tokens[0].Name == "mutated" {
		t.Error("snapshot mutation leaked into live store")
	}
}

func TestStats_Counters(t *testing.T) {
	s := NewMergeStore()
	s.CountMessage()
	s.CountMessage()
	s.CountParseError()
	s.CountReconnect()
	s.CountConnectionError()
	s.CountPersistFlush(false)
	s.CountPersistFlush(true)

	stats := s.Stats()
	if stats.MessagesReceived != 2 || stats.ParseErrors != 1 ||
		stats.ReconnectAttempts != 1 || stats.ConnectionErrors != 1 {
		t.Errorf("counter mismatch: %+v", stats)
	}
	if stats.PersistFlushes != 1 || stats.PersistFailures != 1 {
		t.Errorf("persist counters: %+v", stats)
	}
}
