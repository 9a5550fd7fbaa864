package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pumpfeed/internal/domain"
	"pumpfeed/internal/storage"
)

// ArchiveStore implements storage.Archiver using PostgreSQL. Tokens and
// launches are upserted by mint; transactions and migration events are
// insert-once by their natural keys.
type ArchiveStore struct {
	pool *Pool
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(pool *Pool) *ArchiveStore {
	return &ArchiveStore{pool: pool}
}

// Compile-time interface check.
var _ storage.Archiver = (*ArchiveStore)(nil)

// SaveTokens upserts the token set keyed by mint address.
func (s *ArchiveStore) SaveTokens(ctx context.Context, tokens []*domain.Token) error {
	return s.upsertTokens(ctx, "tokens", tokens)
}

// SaveLaunches upserts the new-launch set keyed by mint address.
func (s *ArchiveStore) SaveLaunches(ctx context.Context, launches []*domain.Token) error {
	return s.upsertTokens(ctx, "new_launches", launches)
}

func (s *ArchiveStore) upsertTokens(ctx context.Context, table string, tokens []*domain.Token) error {
	if len(tokens) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			mint_address, name, symbol, price, market_cap, volume_24h,
			created_timestamp, description, image_uri, twitter, telegram,
			website, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (mint_address) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			price = EXCLUDED.price,
			market_cap = EXCLUDED.market_cap,
			volume_24h = EXCLUDED.volume_24h,
			created_timestamp = EXCLUDED.created_timestamp,
			description = EXCLUDED.description,
			image_uri = EXCLUDED.image_uri,
			twitter = EXCLUDED.twitter,
			telegram = EXCLUDED.telegram,
			website = EXCLUDED.website,
			scraped_at = EXCLUDED.scraped_at,
			updated_at = now()
	`, table)

	for _, t := range tokens {
		_, err := s.pool.Exec(ctx, query,
			t.MintAddress,
			t.Name,
			t.Symbol,
			t.Price,
			t.MarketCap,
			t.Volume24h,
			t.CreatedTimestamp,
			t.Description,
			t.ImageURI,
			t.Twitter,
			t.Telegram,
			t.Website,
			t.ScrapedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert into %s: %w", table, err)
		}
	}
	return nil
}

// SaveTransactions inserts trade records, skipping signatures already
// persisted by an earlier flush.
func (s *ArchiveStore) SaveTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	query := `
		INSERT INTO transactions (
			signature, token_mint, action, amount, price, user_address,
			timestamp, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (signature) DO NOTHING
	`

	for _, tx := range txs {
		_, err := s.pool.Exec(ctx, query,
			tx.Signature,
			tx.TokenMint,
			tx.Action,
			tx.Amount,
			tx.Price,
			tx.User,
			tx.Timestamp,
			tx.ScrapedAt,
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	return nil
}

// SaveMigrations inserts migration events, deduplicated by event key.
func (s *ArchiveStore) SaveMigrations(ctx context.Context, events []*domain.MigrationEvent) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO migration_events (event_key, mint, payload, event_time)
		VALUES ($1, $2, $3, $4)
	`

	for _, ev := range events {
		payload, err := json.Marshal(ev.Fields)
		if err != nil {
			return fmt.Errorf("marshal migration payload: %w", err)
		}
		var eventTime *time.Time
		if ev.ISOTime != "" {
			if ts, err := time.Parse(time.RFC3339, ev.ISOTime); err == nil {
				eventTime = &ts
			}
		}
		if _, err := s.pool.Exec(ctx, query, ev.EventKey, ev.Mint, payload, eventTime); err != nil {
			if isDuplicateKeyError(err) {
				// Already archived by a previous flush.
				continue
			}
			return fmt.Errorf("insert migration event: %w", err)
		}
	}
	return nil
}

// GetToken retrieves a persisted token by mint address. Returns
// storage.ErrNotFound if it was never flushed.
func (s *ArchiveStore) GetToken(ctx context.Context, mint string) (*domain.Token, error) {
	query := `
		SELECT mint_address, name, symbol, price, market_cap, volume_24h,
		       created_timestamp, description, image_uri, twitter, telegram,
		       website, scraped_at
		FROM tokens
		WHERE mint_address = $1
	`

	var t domain.Token
	err := s.pool.QueryRow(ctx, query, mint).Scan(
		&t.MintAddress,
		&t.Name,
		&t.Symbol,
		&t.Price,
		&t.MarketCap,
		&t.Volume24h,
		&t.CreatedTimestamp,
		&t.Description,
		&t.ImageURI,
		&t.Twitter,
		&t.Telegram,
		&t.Website,
		&t.ScrapedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &t, nil
}

// CountTransactions returns the number of persisted trades for a mint.
func (s *ArchiveStore) CountTransactions(ctx context.Context, mint string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE token_mint = $1`, mint).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}
