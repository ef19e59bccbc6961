// Package migrations embeds the SQL schema applied by `ibs migrate`.
package migrations

import "embed"

// FS holds the numbered up and down scripts.
//
//go:embed *.sql
var FS embed.FS
