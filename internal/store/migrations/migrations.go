// Package migrations embeds the ordered goose migration steps for the
// local store schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
