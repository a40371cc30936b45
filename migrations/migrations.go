// Package migrations embeds the goose SQL migrations of the catalog schema:
// referential tables, supplier listings, label cache, pending reviews, run
// records and LLM usage.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
