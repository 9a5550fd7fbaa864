package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pumpfeed/internal/domain"
	"pumpfeed/internal/storage"
)

// ArchiveStore implements storage.Archiver as an append-only analytics
// archive. Every token flush appends a snapshot row; trades and
// migrations dedupe through ReplacingMergeTree keys.
type ArchiveStore struct {
	conn *Conn
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(conn *Conn) *ArchiveStore {
	return &ArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.Archiver = (*ArchiveStore)(nil)

// SaveTokens appends one snapshot row per token.
func (s *ArchiveStore) SaveTokens(ctx context.Context, tokens []*domain.Token) error {
	if len(tokens) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_snapshots (
			mint_address, name, symbol, price, market_cap, volume_24h,
			created_ts, scraped_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range tokens {
		created := time.Time{}
		if t.CreatedTimestamp != nil {
			created = *t.CreatedTimestamp
		}
		err = batch.Append(
			t.MintAddress, t.Name, t.Symbol,
			t.Price, t.MarketCap, t.Volume24h,
			created, t.ScrapedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// SaveLaunches archives launches as ordinary token snapshots. The
// launch set is a subset of the token set, so a dedicated table would
// only duplicate rows.
func (s *ArchiveStore) SaveLaunches(ctx context.Context, launches []*domain.Token) error {
	return s.SaveTokens(ctx, launches)
}

// SaveTransactions appends trade rows keyed by (token_mint, signature).
func (s *ArchiveStore) SaveTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_archive (
			signature, token_mint, action, amount, price, user_address,
			trade_ts, scraped_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tx := range txs {
		err = batch.Append(
			tx.Signature, tx.TokenMint, tx.Action,
			tx.Amount, tx.Price, tx.User,
			tx.Timestamp, tx.ScrapedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// SaveMigrations appends migration events keyed by event key.
func (s *ArchiveStore) SaveMigrations(ctx context.Context, events []*domain.MigrationEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO migration_archive (event_key, mint, payload, event_ts)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, ev := range events {
		payload, err := json.Marshal(ev.Fields)
		if err != nil {
			return fmt.Errorf("marshal migration payload: %w", err)
		}
		eventTime := time.Time{}
		if ev.ISOTime != "" {
			if ts, err := time.Parse(time.RFC3339, ev.ISOTime); err == nil {
				eventTime = ts
			}
		}
		if err := batch.Append(ev.EventKey, ev.Mint, string(payload), eventTime); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
