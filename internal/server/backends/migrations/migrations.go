// Package migrations embeds the goose migrations of the SQL backend, one
// directory per dialect.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
