package buildtracker_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-buildtracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := buildtracker.OpenDB(buildtracker.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, buildtracker.Migrate(context.Background(), db, nil))
	return db
}

func newTestRepo(t *testing.T) buildtracker.RepositoryManager {
	t.Helper()

	repo := buildtracker.NewRepositoryManager(newTestDB(t))
	require.NoError(t, repo.Validate())
	return repo
}

func TestOpenDB_UnsupportedDriver(t *testing.T) {
	_, err := buildtracker.OpenDB("oracle", "dsn")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, buildtracker.Migrate(context.Background(), db, nil))

	var count int
	err := db.NewSelect().
		TableExpr("sqlite_master").
		ColumnExpr("COUNT(*)").
		Where("type = 'table' AND name IN (?)", bun.In([]string{"profiles", "builds", "build_updates", "build_update_steps", "build_update_comments"})).
		Scan(context.Background(), &count)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestRepositoryManager_Validate(t *testing.T) {
	assert.Error(t, buildtracker.NewRepositoryManager(nil).Validate())
}
