package catalog

import (
	_ "embed"

	"softdex/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

var schema = sqlitedb.Schema{
	Name:    "catalog",
	SQL:     schemaSQL,
	Version: schemaVersion,
}
