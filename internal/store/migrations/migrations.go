package migrations

import "embed"

// FS holds the ordered schema migrations applied by store.Migrate.
//
//go:embed *.sql
var FS embed.FS
