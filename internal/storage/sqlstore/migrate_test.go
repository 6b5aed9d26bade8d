package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationManager_SQLite(t *testing.T) {
	ctx := context.Background()
	db, driver, err := OpenDB(storage.Config{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "m.db")})
	require.NoError(t, err)
	defer db.Close()

	m := NewMigrationManager(db, driver, logging.NewNopLogger())

	status, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 2, status.Pending)
	assert.Equal(t, []string{"001", "002"}, status.PendingVersions)

	require.NoError(t, m.RunMigrations(ctx))
	require.NoError(t, m.RunMigrations(ctx), "re-running is a no-op")

	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Applied)
	assert.Zero(t, status.Pending)

	var tables int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('triggers', 'trigger_executions')`,
	).Scan(&tables))
	assert.Equal(t, 2, tables)
}

func TestMigrationManager_FileSelection(t *testing.T) {
	lite := &MigrationManager{dialect: dialect{name: DriverSQLite}}
	pg := &MigrationManager{dialect: dialect{name: DriverPostgres}}

	assert.True(t, lite.isFileCompatible("001_triggers.sql"))
	assert.False(t, lite.isFileCompatible("001_triggers_postgres.sql"))
	assert.True(t, pg.isFileCompatible("001_triggers_postgres.sql"))
	assert.False(t, pg.isFileCompatible("001_triggers.sql"))

	assert.Equal(t, "012", extractVersion("012_more.sql"))
	assert.Empty(t, extractVersion("readme.sql"))
	assert.Equal(t, -1, compareVersions("2", "10"))
}

func TestMigrationManager_LoadsPostgresFiles(t *testing.T) {
	m := NewMigrationManager(nil, "postgres", nil)
	migrations, err := m.loadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "001_triggers_postgres.sql", migrations[0].Filename)
	assert.Contains(t, migrations[0].Content, "TIMESTAMPTZ")
	assert.NotEmpty(t, migrations[0].Checksum)
}
