// Package migrations holds the schema, embedded for cmd/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
