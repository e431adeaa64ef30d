package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"equity-price-pipeline/internal/storage/migrations"
)

// setupTestDB creates a PostgreSQL container for testing and applies the
// embedded migrations. Returns a cleanup function that must be called
// after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	require.NoError(t, migrations.RunPostgres(ctx, pool), "failed to apply migrations")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// seedEquity inserts a bare reference-data row.
func seedEquity(t *testing.T, pool *Pool, isin, symbol string) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`INSERT INTO equities (isin, symbol) VALUES ($1, $2)`, isin, symbol)
	require.NoError(t, err, "failed to seed equity %s/%s", isin, symbol)
}

// seedCanonical inserts an isin -> canonical symbol mapping.
func seedCanonical(t *testing.T, pool *Pool, isin, symbol string) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`INSERT INTO symbol_canonical_map (isin, canonical_symbol) VALUES ($1, $2)`, isin, symbol)
	require.NoError(t, err, "failed to seed canonical mapping for %s", isin)
}

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}
