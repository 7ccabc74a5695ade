// Package dbtest starts throwaway Postgres containers for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/logger"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
)

// StartPostgres runs a Postgres container for the life of t and returns its DSN.
// It skips t in -short mode.
func StartPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "booking",
				"POSTGRES_PASSWORD": "booking",
				"POSTGRES_DB":       "booking",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://booking:booking@%s:%s/booking?sslmode=disable", host, port.Port())
}

// OpenPostgres starts a container, applies every migration and returns a pooled
// connection wide enough for concurrent writers.
func OpenPostgres(t *testing.T) *bun.DB {
	t.Helper()
	dsn := StartPostgres(t)
	log := logger.NewNop(nil)

	runner := migrations.NewRunner(dsn, log)
	require.NoError(t, runner.Up())
	require.NoError(t, runner.Close())

	db, err := database.Open(context.Background(), config.DatabaseConfig{
		DSN:          dsn,
		MaxOpenConns: 32,
		MaxIdleConns: 32,
		MaxLifetime:  time.Minute,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}
