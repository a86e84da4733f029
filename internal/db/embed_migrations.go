package db

import "embed"

// MigrationFS holds the custody schema migrations, applied by internal/db/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
