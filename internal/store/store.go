// Package store holds the deduplicated in-memory collections built up
// over one scraping session. The store owns all four collections;
// mutation happens only through the upsert/append methods and readers
// take point-in-time snapshots.
package store

import (
	"sync"
	"time"

	"pumpfeed/internal/domain"
)

// MergeStore is an identity-keyed, incrementally merged collection of
// tokens, transactions, launches and migrations. All methods are safe
// for concurrent use.
type MergeStore struct {
	mu sync.RWMutex

	tokens     map[string]*domain.Token // keyed by mint address
	tokenOrder []string                 // insertion order of mints

	transactions   []*domain.Transaction
	seenSignatures map[string]bool

	launches      []*domain.Token
	launchIndex   map[string]int // mint -> index in launches
	seenLaunches  map[string]bool
	seenMigration map[string]bool
	migrations    []*domain.MigrationEvent

	stats        domain.SessionStats
	sessionStart time.Time
}

// NewMergeStore creates an empty store for one scraping session.
func NewMergeStore() *MergeStore {
	now := time.Now()
	return &MergeStore{
		tokens:         make(map[string]*domain.Token),
		seenSignatures: make(map[string]bool),
		launchIndex:    make(map[string]int),
		seenLaunches:   make(map[string]bool),
		seenMigration:  make(map[string]bool),
		sessionStart:   now,
		stats:          domain.SessionStats{SessionStart: now},
	}
}

// UpsertToken merges a candidate into the store and returns the live
// record. A new mint inserts the candidate verbatim. An existing mint
// is updated field by field: a candidate value overwrites only when it
// is informative (non-empty string, positive number, non-nil
// timestamp), so a price-only trade update cannot blank out known
// metadata. Volume24h is additive; CreatedTimestamp keeps the first
// known value.
func (s *MergeStore) UpsertToken(candidate *domain.Token) *domain.Token {
	if candidate == nil || candidate.MintAddress == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tokens[candidate.MintAddress]
	if !ok {
		inserted := *candidate
		s.tokens[candidate.MintAddress] = &inserted
		s.tokenOrder = append(s.tokenOrder, candidate.MintAddress)
		s.syncLaunchLocked(&inserted)
		return &inserted
	}

	mergeToken(existing, candidate)
	s.syncLaunchLocked(existing)
	return existing
}

// mergeToken applies the informative-overwrite policy in place.
func mergeToken(dst, src *domain.Token) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Symbol != "" {
		dst.Symbol = src.Symbol
	}
	if src.Price > 0 {
		dst.Price = src.Price
	}
	if src.MarketCap > 0 {
		dst.MarketCap = src.MarketCap
	}
	// Each sighting contributes incremental volume rather than
	// restating a total.
	dst.Volume24h += src.Volume24h
	if dst.CreatedTimestamp == nil && src.CreatedTimestamp != nil {
		ts := *src.CreatedTimestamp
		dst.CreatedTimestamp = &ts
	}
	if src.Description != "" {
		dst.Description = src.Description
	}
	if src.ImageURI != "" {
		dst.ImageURI = src.ImageURI
	}
	if src.Twitter != "" {
		dst.Twitter = src.Twitter
	}
	if src.Telegram != "" {
		dst.Telegram = src.Telegram
	}
	if src.Website != "" {
		dst.Website = src.Website
	}
}

// AppendTransaction adds a transaction unless its signature was seen
// before. Duplicates are dropped, never merged. Returns true when the
// record was newly added.
func (s *MergeStore) AppendTransaction(tx *domain.Transaction) bool {
	if tx == nil || tx.Signature == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seenSignatures[tx.Signature] {
		s.stats.DuplicatesDropped++
		return false
	}
	s.seenSignatures[tx.Signature] = true

	record := *tx
	s.transactions = append(s.transactions, &record)
	return true
}

// AddTradeVolume folds a trade's USD value into the token's
// accumulated volume, creating a bare token record for an unknown
// mint.
func (s *MergeStore) AddTradeVolume(tx *domain.Transaction) {
	if tx == nil || tx.TokenMint == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tokens[tx.TokenMint]
	if !ok {
		existing = &domain.Token{
			MintAddress: tx.TokenMint,
			ScrapedAt:   tx.ScrapedAt,
		}
		s.tokens[tx.TokenMint] = existing
		s.tokenOrder = append(s.tokenOrder, tx.TokenMint)
	}
	existing.Volume24h += tx.Value()
	if existing.Price == 0 && tx.Price > 0 {
		existing.Price = tx.Price
	}
}

// RecordLaunch marks a token as newly launched at most once per mint.
// Later sightings of the same mint update the launch entry in place so
// the launch list mirrors the live token without duplicate rows.
func (s *MergeStore) RecordLaunch(token *domain.Token) bool {
	if token == nil || token.MintAddress == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seenLaunches[token.MintAddress] {
		return false
	}
	s.seenLaunches[token.MintAddress] = true

	live, ok := s.tokens[token.MintAddress]
	if !ok {
		inserted := *token
		s.tokens[token.MintAddress] = &inserted
		s.tokenOrder = append(s.tokenOrder, token.MintAddress)
		live = &inserted
	}
	s.launchIndex[token.MintAddress] = len(s.launches)
	s.launches = append(s.launches, live)
	return true
}

// syncLaunchLocked keeps the launch list entry for a mint pointing at
// the live token record. Callers hold the write lock.
func (s *MergeStore) syncLaunchLocked(live *domain.Token) {
	if idx, ok := s.launchIndex[live.MintAddress]; ok {
		s.launches[idx] = live
	}
}

// RecordMigration stores a migration event unless its key was seen
// before. Returns true when newly added.
func (s *MergeStore) RecordMigration(event *domain.MigrationEvent) bool {
	if event == nil || event.EventKey == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seenMigration[event.EventKey] {
		return false
	}
	s.seenMigration[event.EventKey] = true
	s.migrations = append(s.migrations, event)
	return true
}

// HasToken reports whether a mint is already known.
func (s *MergeStore) HasToken(mint string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[mint]
	return ok
}

// Counters for session statistics; incremented by the ingestion loop.

func (s *MergeStore) CountMessage() {
	s.mu.Lock()
	s.stats.MessagesReceived++
	s.mu.Unlock()
}

func (s *MergeStore) CountParseError() {
	s.mu.Lock()
	s.stats.ParseErrors++
	s.mu.Unlock()
}

func (s *MergeStore) CountConnectionError() {
	s.mu.Lock()
	s.stats.ConnectionErrors++
	s.mu.Unlock()
}

func (s *MergeStore) CountReconnect() {
	s.mu.Lock()
	s.stats.ReconnectAttempts++
	s.mu.Unlock()
}

func (s *MergeStore) CountPersistFlush(failed bool) {
	s.mu.Lock()
	if failed {
		s.stats.PersistFailures++
	} else {
		s.stats.PersistFlushes++
	}
	s.mu.Unlock()
}

// Stats returns a copy of the session counters with collection sizes
// filled in.
func (s *MergeStore) Stats() domain.SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statsLocked()
}

func (s *MergeStore) statsLocked() domain.SessionStats {
	stats := s.stats
	stats.TokensCollected = len(s.tokens)
	stats.TransactionsStored = len(s.transactions)
	stats.NewLaunches = len(s.launches)
	stats.Migrations = len(s.migrations)
	return stats
}

// Snapshot returns a read-only copy of all collections. Token records
// are copied by value so concurrent upserts cannot tear a persisted
// row; insertion order is preserved.
func (s *MergeStore) Snapshot() *domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &domain.Snapshot{
		Tokens:       make([]*domain.Token, 0, len(s.tokenOrder)),
		Transactions: make([]*domain.Transaction, len(s.transactions)),
		NewLaunches:  make([]*domain.Token, 0, len(s.launches)),
		Migrations:   make([]*domain.MigrationEvent, len(s.migrations)),
		Stats:        s.statsLocked(),
		TakenAt:      time.Now(),
	}

	for _, mint := range s.tokenOrder {
		copied := *s.tokens[mint]
		snap.Tokens = append(snap.Tokens, &copied)
	}
	for _, launch := range s.launches {
		copied := *launch
		snap.NewLaunches = append(snap.NewLaunches, &copied)
	}
	copy(snap.Transactions, s.transactions)
	copy(snap.Migrations, s.migrations)
	return snap
}
