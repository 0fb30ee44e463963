package auth

import (
	"embed"
)

//go:embed data/sql/schema
var schemaFS embed.FS

// GetSchemaFS returns the schema files for this package, one directory
// per dialect
func GetSchemaFS() embed.FS {
	return schemaFS
}
