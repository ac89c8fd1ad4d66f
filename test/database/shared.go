// Package database provides shared Postgres test infrastructure: one
// container per test run, one schema per test.
//
// CI points TEST_DB_URL at a service container; local runs start a
// testcontainer once and share it across the package's tests.
package database

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	engagicdb "github.com/engagic/engagic/pkg/database"
)

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// NewTestPool creates an isolated, fully migrated schema and returns a pool
// pointed at it. The schema is dropped when the test completes.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in -short mode")
	}

	ctx := context.Background()
	connStr := getOrCreateSharedDatabase(t)
	schema := generateSchemaName(t)

	admin, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		_ = admin.Close()
	})

	schemaConnStr := withSearchPath(t, connStr, schema)
	require.NoError(t, engagicdb.Migrate(schemaConnStr))

	poolCfg, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)
	poolCfg.ConnConfig.RuntimeParams["search_path"] = schema
	poolCfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

// getOrCreateSharedDatabase returns the base connection string, starting the
// shared container on first use.
func getOrCreateSharedDatabase(t *testing.T) string {
	t.Helper()

	if envURL := os.Getenv("TEST_DB_URL"); envURL != "" {
		return envURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("engagic_test"),
			postgres.WithUsername("engagic"),
			postgres.WithPassword("engagic"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}
		sharedConnStr, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, containerErr)
	return sharedConnStr
}

// generateSchemaName derives a unique, valid schema name for this test.
func generateSchemaName(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 4)
	_, err := rand.Read(buf)
	require.NoError(t, err)

	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(name) > 32 {
		name = name[:32]
	}
	return "t_" + name + "_" + hex.EncodeToString(buf)
}

// withSearchPath rewrites a URL-style DSN so every connection lands in the
// test schema.
func withSearchPath(t *testing.T, connStr, schema string) string {
	t.Helper()
	u, err := url.Parse(connStr)
	require.NoError(t, err)
	q := u.Query()
	q.Set("options", fmt.Sprintf("-csearch_path=%s", schema))
	u.RawQuery = q.Encode()
	return u.String()
}
