package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Connect opens a pool sized for the job workers and the status surface.
// Archive writes happen once per finished job, so the pool stays small.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if poolCfg.MaxConns > 8 {
		poolCfg.MaxConns = 8
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	slog.Info("Database SSL mode", "sslmode", extractSSLMode(databaseURL))

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected", "min_conns", poolCfg.MinConns, "max_conns", poolCfg.MaxConns)
	return pool, nil
}

func extractSSLMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown"
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "" {
		return "prefer (default)"
	}
	return mode
}

// Session-level advisory lock key serialising migrations across replicas.
const migrationLockKey int64 = 0x666163657377

// RunMigrationsWithLock applies the embedded job archive schema. Replicas
// starting together queue on an advisory lock, so only the first one migrates.
func RunMigrationsWithLock(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		// The caller's ctx may already be done; the unlock must still go out.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			slog.ErrorContext(ctx, "Failed to release migration lock", "error", err)
		}
	}()

	return migrateArchive(ctx, conn.Conn())
}

func migrateArchive(ctx context.Context, conn *pgx.Conn) error {
	schemas, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, "public.faceswap_schema_version")
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.LoadMigrations(schemas); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	migrator.OnStart = func(sequence int32, name, direction, _ string) {
		slog.InfoContext(ctx, "Applying migration", "sequence", sequence, "name", name, "direction", direction)
	}

	current, err := migrator.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	target := int32(len(migrator.Migrations))
	if current == target {
		slog.DebugContext(ctx, "Job archive schema up to date", "version", current)
		return nil
	}

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate job archive from version %d: %w", current, err)
	}
	slog.InfoContext(ctx, "Job archive schema migrated", "from", current, "to", target)
	return nil
}
