// Package sqlassets embeds the versioned SQL migrations so binaries stay
// self-contained.
package sqlassets

import "embed"

// Migrations holds golang-migrate files named NNNNNN_<name>.(up|down).sql.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"
