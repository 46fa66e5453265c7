// Package migrations embeds the goose SQL migrations of each supported engine.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
