package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pumpfeed/internal/domain"
	"pumpfeed/internal/pumpapi"
)

// wrappedSOL is a well-formed mint; bogus rows below must be skipped
// by the per-mint trade fan-out.
const wrappedSOL = "So11111111111111111111111111111111111111112"

func newPollServer(t *testing.T, coins string, trades string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/coins", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, coins)
	})
	mux.HandleFunc("/trades/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, trades)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestPoller(srv *httptest.Server, opts PollerOptions) *Poller {
	opts.Client = pumpapi.NewClient(srv.URL)
	opts.Logger = quietLogger()
	return NewPoller(opts)
}

func TestPoller_CycleIngestsCoinsAndTrades(t *testing.T) {
	created := time.Now().Add(-2 * time.Hour).Unix()
	coins := fmt.Sprintf(`[
		{"mint": %q, "name": "Wrapped SOL", "symbol": "SOL", "usd_market_cap": 90000, "created_timestamp": %d},
		{"mint": "placeholder-row", "name": "Bogus"}
	]`, wrappedSOL, created)
	trades := `{"trades": [
		{"signature": "trade-1", "token_amount": 10, "usd_price": 2, "is_buy": true},
		{"signature": "trade-1", "token_amount": 10, "usd_price": 2, "is_buy": true}
	]}`

	srv := newPollServer(t, coins, trades)
	archiver := &fakeArchiver{}
	p := newTestPoller(srv, PollerOptions{Archiver: archiver})

	p.cycle(context.Background())

	if !p.store.HasToken(wrappedSOL) {
		t.Fatal("coin not ingested")
	}
	stats := p.store.Stats()
	if stats.TokensCollected != 2 {
		t.Errorf("tokens = %d; want 2", stats.TokensCollected)
	}
	if stats.NewLaunches != 1 {
		t.Errorf("launches = %d; only the recently created coin qualifies", stats.NewLaunches)
	}
	if stats.TransactionsStored != 1 {
		t.Errorf("transactions = %d; duplicate signature must be dropped", stats.TransactionsStored)
	}
	if stats.DuplicatesDropped != 1 {
		t.Errorf("duplicates = %d", stats.DuplicatesDropped)
	}

	// Trade value folded into the coin's volume: 10 * 2.
	snap := p.store.Snapshot()
	var sol *domain.Token
	for _, token := range snap.Tokens {
		if token.MintAddress == wrappedSOL {
			sol = token
		}
	}
	if sol == nil || sol.Volume24h != 20 {
		t.Errorf("volume = %+v; want 20", sol)
	}

	if archiver.flushCount() != 1 {
		t.Errorf("flushes = %d; every cycle ends with one", archiver.flushCount())
	}
}

func TestPoller_SkipsMalformedMintsForTrades(t *testing.T) {
	var tradeCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/coins", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"mint": "placeholder-row", "name": "Bogus"}]`)
	})
	mux.HandleFunc("/trades/", func(w http.ResponseWriter, r *http.Request) {
		tradeCalls++
		fmt.Fprint(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestPoller(srv, PollerOptions{})
	p.cycle(context.Background())

	if tradeCalls != 0 {
		t.Errorf("trade calls = %d; malformed mint must not fan out", tradeCalls)
	}
}

func TestPoller_MarketCapFilter(t *testing.T) {
	coins := fmt.Sprintf(`[{"mint": %q, "name": "Dust", "usd_market_cap": 100}]`, wrappedSOL)
	srv := newPollServer(t, coins, `[]`)

	p := newTestPoller(srv, PollerOptions{MinMarketCap: 5000})
	p.cycle(context.Background())

	if p.store.HasToken(wrappedSOL) {
		t.Error("coin below the market-cap floor was ingested")
	}
}

func TestPoller_ListErrorCountsConnectionError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/coins", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	archiver := &fakeArchiver{}
	p := newTestPoller(srv, PollerOptions{Archiver: archiver})
	p.cycle(context.Background())

	stats := p.store.Stats()
	if stats.ConnectionErrors != 1 {
		t.Errorf("connection errors = %d; want 1", stats.ConnectionErrors)
	}
	// The flush still runs so partial sessions are never lost.
	if archiver.flushCount() != 1 {
		t.Errorf("flushes = %d; want 1", archiver.flushCount())
	}
}

func TestPoller_IsRecentLaunch(t *testing.T) {
	p := NewPoller(PollerOptions{Logger: quietLogger()})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	recent := now.Add(-2 * time.Hour)
	stale := now.Add(-25 * time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name  string
		token *domain.Token
		want  bool
	}{
		{"recent", &domain.Token{MintAddress: "a", CreatedTimestamp: &recent}, true},
		{"stale", &domain.Token{MintAddress: "b", CreatedTimestamp: &stale}, false},
		{"future", &domain.Token{MintAddress: "c", CreatedTimestamp: &future}, false},
		{"unknown", &domain.Token{MintAddress: "d"}, false},
	}
	for _, tc := range cases {
		if got := p.isRecentLaunch(tc.token); got != tc.want {
			t.Errorf("%s: isRecentLaunch = %v; want %v", tc.name, got, tc.want)
		}
	}
}
