package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

// MaxIndexableDim is the largest vector dimension ivfflat can index.
const MaxIndexableDim = 2000

var identifierPattern = regexp.MustCompile(`[^a-z0-9_]+`)

// SchemaName returns the namespace for a module, e.g. mod_bitfinex.
// Dots and any other unsafe characters collapse to underscores.
func SchemaName(module string) string {
	name := strings.ToLower(module)
	name = identifierPattern.ReplaceAllString(name, "_")
	return "mod_" + name
}

// Schema performs idempotent DDL inside a module's namespace. Every
// collector runs it at boot; repeated runs are no-ops.
type Schema struct {
	store *Store
	name  string
}

// Schema returns the DDL helper for a module's namespace.
func (s *Store) Schema(module string) *Schema {
	return &Schema{store: s, name: SchemaName(module)}
}

// Name returns the qualified schema name.
func (sc *Schema) Name() string {
	return sc.name
}

// Table returns the qualified name of a table in this namespace.
func (sc *Schema) Table(table string) string {
	return sc.name + "." + table
}

// Ensure creates the namespace if it does not exist.
func (sc *Schema) Ensure(ctx context.Context) error {
	if _, err := sc.store.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", sc.name)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", sc.name, err)
	}
	return nil
}

// EnsureTable creates a table in this namespace if it does not exist.
// columns is the body of the CREATE TABLE statement.
func (sc *Schema) EnsureTable(ctx context.Context, table, columns string) error {
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s)", sc.name, table, columns)
	if _, err := sc.store.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s.%s: %w", sc.name, table, err)
	}
	return nil
}

// EnsureIndex creates an index if it does not exist. spec is everything
// after the table name, e.g. "(symbol, executed_at DESC)".
func (sc *Schema) EnsureIndex(ctx context.Context, index, table, spec string) error {
	ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s.%s %s", index, sc.name, table, spec)
	if _, err := sc.store.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	return nil
}

// EnsureVectorColumn tracks the configured embedding dimension on a
// table in this namespace.
func (sc *Schema) EnsureVectorColumn(ctx context.Context, table, column string, dim int) error {
	return sc.store.EnsureVectorColumn(ctx, sc.Table(table), column, dim)
}

// EnsureVectorColumn makes qualifiedTable.column a vector(dim) column,
// evolving the type when the configured dimension changes. Existing
// embeddings do not survive a dimension change; they are rewritten on the
// next summarization pass. The cosine-distance index is maintained only
// while dim <= MaxIndexableDim.
func (s *Store) EnsureVectorColumn(ctx context.Context, qualifiedTable, column string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("vector dimension must be positive, got %d", dim)
	}

	var current int
	err := s.QueryRow(ctx,
		`SELECT a.atttypmod
		 FROM pg_attribute a
		 WHERE a.attrelid = $1::regclass AND a.attname = $2 AND NOT a.attisdropped`,
		qualifiedTable, column).Scan(&current)

	indexName := vectorIndexName(qualifiedTable, column)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s vector(%d)", qualifiedTable, column, dim)
		if _, err := s.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to add vector column %s.%s: %w", qualifiedTable, column, err)
		}
	case err != nil:
		return fmt.Errorf("failed to inspect column %s.%s: %w", qualifiedTable, column, err)
	case current != dim:
		// Drop the index first: Postgres rebuilds dependent indexes on
		// ALTER TYPE, and an ivfflat rebuild fails above MaxIndexableDim.
		if _, err := s.Exec(ctx, fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName)); err != nil {
			return fmt.Errorf("failed to drop vector index %s: %w", indexName, err)
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE vector(%d) USING NULL", qualifiedTable, column, dim)
		if _, err := s.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to evolve vector column %s.%s to %d: %w", qualifiedTable, column, dim, err)
		}
		slog.Info("Vector column dimension changed", "table", qualifiedTable, "column", column, "from", current, "to", dim)
	}

	if dim > MaxIndexableDim {
		if _, err := s.Exec(ctx, fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName)); err != nil {
			return fmt.Errorf("failed to drop vector index %s: %w", indexName, err)
		}
		slog.Warn("Similarity index skipped, dimension exceeds ivfflat limit",
			"table", qualifiedTable, "column", column, "dim", dim, "max", MaxIndexableDim)
		return nil
	}

	ddl := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (%s vector_cosine_ops) WITH (lists = 100)",
		indexName.unqualified(), qualifiedTable, column)
	if _, err := s.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create vector index %s: %w", indexName, err)
	}
	return nil
}

// qualifiedIndex carries an index name together with its schema so DROP
// statements resolve outside the current search path.
type qualifiedIndex struct {
	schema string
	name   string
}

func (q qualifiedIndex) String() string {
	if q.schema == "" {
		return q.name
	}
	return q.schema + "." + q.name
}

func (q qualifiedIndex) unqualified() string {
	return q.name
}

func vectorIndexName(qualifiedTable, column string) qualifiedIndex {
	schema := ""
	table := qualifiedTable
	if i := strings.IndexByte(qualifiedTable, '.'); i >= 0 {
		schema = qualifiedTable[:i]
		table = qualifiedTable[i+1:]
	}
	return qualifiedIndex{schema: schema, name: fmt.Sprintf("%s_%s_ivfflat", table, column)}
}
