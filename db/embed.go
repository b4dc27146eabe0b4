// Package db embeds the PostgreSQL schema migrations for the message trail.
package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the numbered up/down migrations rooted at the SQL files,
// the layout golang-migrate's iofs source expects.
func Migrations() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}
