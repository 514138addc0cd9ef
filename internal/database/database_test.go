package database

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridequery/internal/config"
)

func memoryConfig(t *testing.T) *config.Config {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return &config.Config{Database: config.DatabaseConfig{
		Type: config.DBTypeMemory,
		DSN:  "file:" + name + "?mode=memory&cache=shared",
	}}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db, err := Connect(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
	// Second run is a no-op
	require.NoError(t, Migrate(db))

	version, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	for _, table := range []string{"rides", "cities", "search_logs"} {
		var count int
		err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}

	require.NoError(t, Rollback(db))

	var count int
	require.NoError(t, db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'rides'"))
	assert.Zero(t, count)
}

func TestVersion_Unmigrated(t *testing.T) {
	db, err := Connect(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}
