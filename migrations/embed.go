// Package migrations holds the database schema
package migrations

import "embed"

// FS contains every *.sql migration in file-name order
//
//go:embed *.sql
var FS embed.FS
