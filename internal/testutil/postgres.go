package testutil

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/nkiryanov/vidsession/internal/db"
)

const postgresImage = "postgres:17-alpine"

// Migrated users database running in a container
type Postgres struct {
	DSN  string
	Pool *pgxpool.Pool
}

// StartPostgres runs a container, applies migrations and removes it when the test ends
// Skips the test when no container runtime is reachable
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	container, err := postgres.Run(t.Context(),
		postgresImage,
		postgres.WithDatabase("vidsession"),
		postgres.WithUsername("vidsession"),
		postgres.WithPassword("vidsession"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "postgres container must start")

	dsn, err := container.ConnectionString(t.Context(), "sslmode=disable")
	require.NoError(t, err)

	pool, err := db.ConnectAndMigrate(t.Context(), dsn)
	require.NoError(t, err, "users schema must migrate")
	t.Cleanup(pool.Close)

	return &Postgres{DSN: dsn, Pool: pool}
}

// InTx runs fn inside a transaction that is always rolled back,
// so users created by one subtest never leak into another
func (p *Postgres) InTx(t *testing.T, fn func(tx pgx.Tx)) {
	t.Helper()

	tx, err := p.Pool.Begin(t.Context())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, tx.Rollback(t.Context()))
	}()

	fn(tx)
}
