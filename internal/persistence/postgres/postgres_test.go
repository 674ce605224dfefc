package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/room-booking/internal/persistence"
	"github.com/example/room-booking/internal/persistence/postgres"
	"github.com/example/room-booking/internal/persistence/storetest"
)

// Set BOOKING_TEST_POSTGRES_DSN to run against a disposable database.
func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("BOOKING_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BOOKING_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) persistence.Store {
		ctx := context.Background()
		store, err := postgres.Open(ctx, postgres.Config{DSN: dsn}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })

		require.NoError(t, store.EnsureSchema(ctx))
		require.NoError(t, store.Reset(ctx))
		return store
	})
}
