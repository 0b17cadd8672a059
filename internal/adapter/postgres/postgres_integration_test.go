package postgres

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("faceswap"),
		postgres.WithUsername("faceswap"),
		postgres.WithPassword("faceswap"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	testPool, err = Connect(ctx, connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to test database: %v\n", err)
		os.Exit(1)
	}

	if err := RunMigrationsWithLock(ctx, testPool); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testPool.Close()
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to terminate postgres container: %v\n", err)
	}
	os.Exit(code)
}

// setupTestDB returns the shared pool and truncates the jobs table after the test.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	t.Cleanup(func() {
		if _, err := testPool.Exec(context.Background(), "TRUNCATE jobs"); err != nil {
			t.Logf("Failed to truncate tables: %v", err)
		}
	})
	return testPool
}

func TestRunMigrationsWithLock_ConcurrentReplicas(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	var g errgroup.Group
	for range 3 {
		g.Go(func() error { return RunMigrationsWithLock(ctx, pool) })
	}
	require.NoError(t, g.Wait())

	var version int32
	require.NoError(t, pool.QueryRow(ctx, "SELECT version FROM public.faceswap_schema_version").Scan(&version))
	assert.Equal(t, int32(1), version)
}

func TestExtractSSLMode(t *testing.T) {
	assert.Equal(t, "require", extractSSLMode("postgres://u:p@db/faceswap?sslmode=REQUIRE"))
	assert.Equal(t, "prefer (default)", extractSSLMode("postgres://u:p@db/faceswap"))
	assert.Equal(t, "unknown", extractSSLMode("postgres://%zz"))
}
