// Package migrations embeds the SQL migration files into the binary so
// the daemon can bring its schema up to date without shipping loose
// files alongside the executable.
package migrations

import (
	"embed"

	"github.com/bresilla/tractor-isobus/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// The embed directive captures every .sql file in this directory.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
