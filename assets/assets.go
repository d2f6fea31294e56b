// Package assets embeds the demo data served by the memory backend.
package assets

import "embed"

// SeedFS holds subscribers.json, the default memory backend data set.
//
//go:embed seed/subscribers.json
var SeedFS embed.FS

// SeedFile is the path of the default data set inside SeedFS.
const SeedFile = "seed/subscribers.json"

// ReceiptFont is DejaVu Sans Condensed, the default document font. It covers
// Arabic and carries the GSUB tables needed for contextual letter forms.
//
//go:embed fonts/DejaVuSansCondensed.ttf
var ReceiptFont []byte
