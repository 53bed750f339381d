// Package dbtest provides migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pharmadesk/m/internal/database"
	"pharmadesk/m/internal/migrations"
	"pharmadesk/m/internal/seed"
)

// New returns a fresh sqlite database with the schema applied and plans
// seeded. It is closed when the test ends.
func New(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, migrations.Run(ctx, db, zap.NewNop()))
	require.NoError(t, seed.Plans(ctx, db))
	return db
}
