// Package migrations embeds the SQL migration files so the engine can
// bring its schema up to date without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
