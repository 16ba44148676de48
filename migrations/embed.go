// Package migrations embeds the SQL migration files into the binary so the
// frame journal schema can be applied without files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
