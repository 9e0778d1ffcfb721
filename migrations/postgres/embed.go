// Package migrations embebe los SQL de esquema para el driver postgres.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
