package buildtracker

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/migrate"

	_ "github.com/lib/pq"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenDB opens a bun database for driver, sqlite when driver is empty
func OpenDB(driver, dsn string) (*bun.DB, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite, "sqlite3":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "unable to open sqlite database")
		}
		// in memory databases are per connection
		if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
			sqldb.SetMaxOpenConns(1)
		}
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres, "postgresql", "pg":
		sqldb, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "unable to open postgres database")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, errors.New(fmt.Sprintf("unsupported database driver %q", driver), errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	}
}

// Migrate applies every pending migration found in sources. When no source
// is given the package migrations are used.
func Migrate(ctx context.Context, db *bun.DB, logger Logger, sources ...fs.FS) error {
	if logger == nil {
		logger = defLogger{}
	}

	if len(sources) == 0 {
		sources = []fs.FS{MigrationsDir()}
	}

	migrations := migrate.NewMigrations()
	for _, src := range sources {
		if err := migrations.Discover(src); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "unable to discover migrations")
		}
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to initialize migrations")
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "migration failed")
	}

	if group.IsZero() {
		logger.Info("database is up to date")
		return nil
	}

	logger.Info("database migrated", "group", group.String())
	return nil
}
