// Package migrations embeds SQL migration files for use at startup, in tests
// and tooling. Postgres migrations live at the root; SQLite ones under sqlite/.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var FS embed.FS

//go:embed sqlite/*.sql
var SQLiteFS embed.FS

// ForDialect returns the migration tree and directory for a dialect name
// ("postgres" or "sqlite").
func ForDialect(dialect string) (fs.FS, string, bool) {
	switch dialect {
	case "postgres":
		return FS, ".", true
	case "sqlite":
		return SQLiteFS, "sqlite", true
	default:
		return nil, "", false
	}
}
