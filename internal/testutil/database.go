package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/config"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/database"
	"github.com/davidleathers/causal-correlation-engine/internal/testutil/containers"
)

// NewTestPool starts a throwaway PostgreSQL container and connects a pool to
// it. With migrated set the embedded schema is applied first.
func NewTestPool(t *testing.T, migrated bool) *database.ConnectionPool {
	t.Helper()
	pg := containers.StartPostgres(t)

	cfg := config.Defaults().Database
	cfg.URL = pg.ConnectionString
	pool, err := database.NewConnectionPool(TestContext(t), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	if migrated {
		db := pool.DB()
		t.Cleanup(func() { _ = db.Close() })
		_, err := database.Migrate(db, database.MigrateUp, zaptest.NewLogger(t))
		require.NoError(t, err)
	}
	return pool
}
