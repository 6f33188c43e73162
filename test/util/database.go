// Package util holds shared test harness helpers.
package util

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/feedeater/feedeater/pkg/store"
)

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// SetupTestStore returns a migrated store isolated in its own schema.
// CI points CI_DATABASE_URL at a pgvector-enabled PostgreSQL; local runs
// share one pgvector testcontainer across the package and isolate tests
// by schema. The schema is dropped when the test ends.
func SetupTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	connStr := sharedDatabase(t)
	schema := schemaName(t)

	conn, err := pgx.Connect(ctx, connStr)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	require.NoError(t, conn.Close(ctx))

	// The test schema leads the search path; public trails it so the
	// vector type installed by the init script stays visible.
	st, err := store.Open(ctx, withSearchPath(connStr, schema))
	require.NoError(t, err)

	t.Cleanup(func() {
		st.Close()
		dropTestSchema(t, connStr, schema)
	})

	return st
}

func dropTestSchema(t *testing.T, connStr, schema string) {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		t.Logf("leaking schema %s: %v", schema, err)
		return
	}
	defer func() { _ = conn.Close(ctx) }()
	if _, err := conn.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
		t.Logf("leaking schema %s: %v", schema, err)
	}
}

// sharedDatabase returns the connection string every test store builds
// on: CI_DATABASE_URL when set, otherwise a package-wide container.
func sharedDatabase(t *testing.T) string {
	if url := os.Getenv("CI_DATABASE_URL"); url != "" {
		return url
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("starting shared pgvector container")

		pgContainer, err := postgres.Run(ctx,
			"pgvector/pgvector:pg16",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			postgres.WithInitScripts(initScriptPath()),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}

		sharedConnStr, containerErr = pgContainer.ConnectionString(ctx, "sslmode=disable")
	})

	require.NoError(t, containerErr)
	return sharedConnStr
}

// schemaName derives a unique identifier-safe schema name from the test
// name, within PostgreSQL's 63-byte identifier limit.
func schemaName(t *testing.T) string {
	name := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, strings.ToLower(t.Name()))
	if len(name) > 40 {
		name = name[:40]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("test_%s_%s", name, suffix)
}

func withSearchPath(connStr, schema string) string {
	sep := "?"
	if strings.Contains(connStr, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%ssearch_path=%s,public", connStr, sep, schema)
}

// initScriptPath locates deploy/postgres-init/01-init.sql relative to
// this source file, so it resolves from any package's test binary.
func initScriptPath() string {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		panic("initScriptPath: runtime.Caller failed")
	}
	root := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	return filepath.Join(root, "deploy", "postgres-init", "01-init.sql")
}
