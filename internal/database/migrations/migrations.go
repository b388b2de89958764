// Package migrations embeds the SQL migration files that are applied at
// startup, so the binary carries its own schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
