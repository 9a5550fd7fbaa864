// Package storage defines the archiver contract the persistence driver
// flushes collected data through, plus file, postgres and clickhouse
// implementations.
package storage

import (
	"context"

	"pumpfeed/internal/domain"
)

// Archiver persists one flush of collected data. Each method is
// best-effort: the caller logs failures and keeps ingesting, so an
// error must never be treated as fatal by implementations either.
type Archiver interface {
	// SaveTokens persists the current token set. Implementations may
	// upsert or append a snapshot depending on the backing medium.
	SaveTokens(ctx context.Context, tokens []*domain.Token) error

	// SaveTransactions persists trade records. Records whose signature
	// was already persisted are skipped, not errors.
	SaveTransactions(ctx context.Context, txs []*domain.Transaction) error

	// SaveLaunches persists the new-launch token set.
	SaveLaunches(ctx context.Context, launches []*domain.Token) error

	// SaveMigrations persists migration events, deduplicated by event key.
	SaveMigrations(ctx context.Context, events []*domain.MigrationEvent) error
}

// Closer is implemented by archivers holding external connections.
type Closer interface {
	Close() error
}
