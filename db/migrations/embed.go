// Package dbmigrations exposes embedded SQL migrations for tally binaries.
package dbmigrations

import "embed"

// Files contains the embedded Postgres migrations.
//
//go:embed *.sql
var Files embed.FS
