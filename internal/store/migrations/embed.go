// Package migrations embeds the schema for each supported dialect, one
// directory per dialect in golang-migrate's file naming scheme.
package migrations

import "embed"

//go:embed mysql/*.sql sqlite/*.sql postgres/*.sql
var FS embed.FS
