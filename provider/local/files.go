package local

import (
	"embed"
	"io/fs"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// MigrationsDir returns the account tables migrations, pass it to
// buildtracker.Migrate next to the domain migrations
func MigrationsDir() fs.FS {
	dir, err := fs.Sub(migrationsFS, "data/sql/migrations")
	if err != nil {
		panic(err)
	}
	return dir
}
