// Package migrations embeds the SQL schema files into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/infrastructure/database"
)

//go:embed *.up.sql
var schemaFS embed.FS

func init() {
	database.Migrations = schemaFS
}
