// Package migrations embeds the goose SQL migrations of both storage backends.
package migrations

import "embed"

// Subdirectories of FS, one per goose dialect.
const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)

// FS holds the migration files.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
