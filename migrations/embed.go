package migrations

import "embed"

// FS holds the transcript journal schema for golang-migrate's iofs source.
//
//go:embed *.sql
var FS embed.FS
