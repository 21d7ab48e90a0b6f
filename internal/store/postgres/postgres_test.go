package postgres

import (
	"context"
	"os"
	"testing"

	"propdesk/internal/db"
	"propdesk/internal/store"
	"propdesk/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database only when TEST_DB_DSN is set.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = db.Migrate(ctx, pool)
	require.NoError(t, err)

	storetest.Run(t, func(t *testing.T) store.Store {
		_, err := pool.Exec(ctx, "truncate trades, challenges")
		require.NoError(t, err)
		return New(pool)
	})
}

func TestValidID(t *testing.T) {
	t.Parallel()

	assert.True(t, validID("6f1c0d1e-9b7a-4c51-8d0e-2f3a4b5c6d7e"))
	assert.False(t, validID(""))
	assert.False(t, validID("not-a-uuid"))
}
