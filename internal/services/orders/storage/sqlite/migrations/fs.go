// Package migrations embeds the orders SQLite schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
