package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a PostgreSQL container for testing and applies
// the schema. Returns a cleanup function that must be called after
// tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := pgcontainer.Run(ctx, "postgres:15-alpine",
		pgcontainer.WithDatabase("testdb"),
		pgcontainer.WithUsername("test"),
		pgcontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	applySchema(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// applySchema mirrors the embedded migration files. The migrations
// package cannot be imported here without an import cycle, so the
// statements are duplicated; keep them in sync with
// internal/storage/migrations/postgres/.
func applySchema(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tokens (
			mint_address TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			symbol TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			market_cap DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_timestamp TIMESTAMPTZ,
			description TEXT NOT NULL DEFAULT '',
			image_uri TEXT NOT NULL DEFAULT '',
			twitter TEXT NOT NULL DEFAULT '',
			telegram TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			scraped_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS new_launches (
			mint_address TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			symbol TEXT NOT NULL DEFAULT '',
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			market_cap DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_timestamp TIMESTAMPTZ,
			description TEXT NOT NULL DEFAULT '',
			image_uri TEXT NOT NULL DEFAULT '',
			twitter TEXT NOT NULL DEFAULT '',
			telegram TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			scraped_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			signature TEXT PRIMARY KEY,
			token_mint TEXT NOT NULL,
			action TEXT NOT NULL DEFAULT 'trade',
			amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			user_address TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL,
			scraped_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS migration_events (
			event_key TEXT PRIMARY KEY,
			mint TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL DEFAULT '{}'::jsonb,
			event_time TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range stmts {
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err, "apply schema")
	}
}

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}
