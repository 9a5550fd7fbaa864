// Package migrations carries the archive schemas as embedded SQL and
// applies them on startup. Postgres files run one per statement batch
// in lexical order; ClickHouse files are split into single statements
// because its native protocol rejects multi-statement queries.
package migrations

import "embed"

// PostgresFS holds the PostgreSQL schema files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the ClickHouse schema files.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
