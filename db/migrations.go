// Package db embeds the schema migrations applied at startup.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDirectory = "migrations"
