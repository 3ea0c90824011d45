package ingest

import "embed"

// ClickHouseMigrationsFS embeds the ClickHouse schema migrations so the
// gateway binary can migrate its own audit database.
//
//go:embed db/clickhouse/migrations/*.sql
var ClickHouseMigrationsFS embed.FS
