package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedeater/feedeater/pkg/store"
	"github.com/feedeater/feedeater/test/util"
)

func vectorDim(t *testing.T, st *store.Store, table string) int {
	t.Helper()
	var dim int
	require.NoError(t, st.QueryRow(context.Background(),
		`SELECT a.atttypmod FROM pg_attribute a
		 WHERE a.attrelid = $1::regclass AND a.attname = 'embedding' AND NOT a.attisdropped`,
		table).Scan(&dim))
	return dim
}

func indexCount(t *testing.T, st *store.Store, schema, index string) int {
	t.Helper()
	var n int
	require.NoError(t, st.QueryRow(context.Background(),
		`SELECT count(*) FROM pg_indexes WHERE schemaname = $1 AND indexname = $2`,
		schema, index).Scan(&n))
	return n
}

func TestEnsureVectorColumnLifecycle(t *testing.T) {
	st := util.SetupTestStore(t)
	ctx := context.Background()

	moduleName := fmt.Sprintf("vectest%d", time.Now().UnixNano())
	sc := st.Schema(moduleName)
	require.NoError(t, sc.Ensure(ctx))
	require.NoError(t, sc.EnsureTable(ctx, "items", "id TEXT PRIMARY KEY"))
	t.Cleanup(func() {
		_, _ = st.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", sc.Name()))
	})

	table := sc.Table("items")
	index := "items_embedding_ivfflat"

	// Fresh column gets the configured dimension and a cosine index.
	require.NoError(t, st.EnsureVectorColumn(ctx, table, "embedding", 768))
	assert.Equal(t, 768, vectorDim(t, st, table))
	assert.Equal(t, 1, indexCount(t, st, sc.Name(), index))

	// Idempotent re-run.
	require.NoError(t, st.EnsureVectorColumn(ctx, table, "embedding", 768))
	assert.Equal(t, 768, vectorDim(t, st, table))
	assert.Equal(t, 1, indexCount(t, st, sc.Name(), index))

	vec := make([]float32, 768)
	vec[0] = 1
	_, err := st.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (id, embedding) VALUES ('a', $1)", table),
		pgvector.NewVector(vec))
	require.NoError(t, err)

	require.NoError(t, st.EnsureVectorColumn(ctx, table, "embedding", 1024))
	assert.Equal(t, 1024, vectorDim(t, st, table))
	var isNull bool
	require.NoError(t, st.QueryRow(ctx,
		fmt.Sprintf("SELECT embedding IS NULL FROM %s WHERE id = 'a'", table)).Scan(&isNull))
	assert.True(t, isNull, "embeddings do not survive a dimension change")

	// Beyond the ivfflat limit the index is dropped, not rebuilt.
	require.NoError(t, st.EnsureVectorColumn(ctx, table, "embedding", store.MaxIndexableDim+1))
	assert.Equal(t, store.MaxIndexableDim+1, vectorDim(t, st, table))
	assert.Zero(t, indexCount(t, st, sc.Name(), index))

	// Shrinking back under the limit restores the index.
	require.NoError(t, st.EnsureVectorColumn(ctx, table, "embedding", 768))
	assert.Equal(t, 768, vectorDim(t, st, table))
	assert.Equal(t, 1, indexCount(t, st, sc.Name(), index))
}

func TestEnsureVectorColumnRejectsNonPositiveDim(t *testing.T) {
	st := util.SetupTestStore(t)
	err := st.EnsureVectorColumn(context.Background(), "ignored", "embedding", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}
