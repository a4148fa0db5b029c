// Package migrations embebe el SQL del key store postgres.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files en orden de aplicación.
var Files = []string{
	"0001_signing_keys.sql",
}
