package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedeater/feedeater/test/util"
)

func strPtr(s string) *string { return &s }

func TestRegistryPutGetRoundTrip(t *testing.T) {
	st := util.SetupTestStore(t)
	r := NewRegistry(st)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "rss", "feed_urls", strPtr("https://example.com/feed"), false))
	require.NoError(t, r.Put(ctx, "rss", "api_key", strPtr("hunter2"), true))

	got, err := r.Get(ctx, "rss", "feed_urls")
	require.NoError(t, err)
	require.NotNil(t, got.Value)
	assert.Equal(t, "https://example.com/feed", *got.Value)
	assert.False(t, got.IsSecret)

	secret, err := r.Get(ctx, "rss", "api_key")
	require.NoError(t, err)
	assert.True(t, secret.IsSecret)

	_, err = r.Get(ctx, "rss", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := r.GetAll(ctx, "rss")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRegistryPutOverwrites(t *testing.T) {
	st := util.SetupTestStore(t)
	r := NewRegistry(st)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "bitfinex", "symbols", strPtr("tBTCUSD"), false))
	require.NoError(t, r.Put(ctx, "bitfinex", "symbols", strPtr("tETHUSD"), false))

	got, err := r.Get(ctx, "bitfinex", "symbols")
	require.NoError(t, err)
	require.NotNil(t, got.Value)
	assert.Equal(t, "tETHUSD", *got.Value)
}

func TestRegistryGenerationCountsWrites(t *testing.T) {
	st := util.SetupTestStore(t)
	r := NewRegistry(st)
	ctx := context.Background()

	assert.Equal(t, uint64(0), r.Generation("rss"))

	require.NoError(t, r.Put(ctx, "rss", "feed_urls", strPtr("https://example.com/feed"), false))
	require.NoError(t, r.Put(ctx, "rss", "max_items", strPtr("20"), false))
	assert.Equal(t, uint64(2), r.Generation("rss"))
	assert.Equal(t, uint64(0), r.Generation("bitfinex"), "generations are per module")
}

func TestRegistryCacheInvalidatesOnPut(t *testing.T) {
	st := util.SetupTestStore(t)
	r := NewRegistry(st)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "rss", "max_items", strPtr("20"), false))
	_, err := r.GetAll(ctx, "rss")
	require.NoError(t, err)

	// A direct database write is invisible until the TTL passes.
	_, err = st.Exec(ctx,
		`UPDATE settings SET value = '99' WHERE module = 'rss' AND key = 'max_items'`)
	require.NoError(t, err)
	stale, err := r.Get(ctx, "rss", "max_items")
	require.NoError(t, err)
	assert.Equal(t, "20", *stale.Value)

	// A write through the registry invalidates immediately.
	require.NoError(t, r.Put(ctx, "rss", "max_items", strPtr("50"), false))
	fresh, err := r.Get(ctx, "rss", "max_items")
	require.NoError(t, err)
	assert.Equal(t, "50", *fresh.Value)
}

func TestRegistryResolveMergesDefaults(t *testing.T) {
	st := util.SetupTestStore(t)
	r := NewRegistry(st)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "rss", "max_items", strPtr("5"), false))
	require.NoError(t, r.Put(ctx, "rss", "cleared", nil, false))

	vals, err := r.Resolve(ctx, "rss", map[string]string{
		"max_items": "20",
		"timeout":   "10s",
		"cleared":   "default",
	})
	require.NoError(t, err)

	assert.Equal(t, "5", vals["max_items"], "stored row overrides the default")
	assert.Equal(t, "10s", vals["timeout"], "unset key keeps the default")
	assert.Equal(t, "default", vals["cleared"], "null row falls back to the default")
}

func TestRegistryEmbedDim(t *testing.T) {
	st := util.SetupTestStore(t)
	r := NewRegistry(st)
	ctx := context.Background()

	assert.Equal(t, DefaultEmbedDim, r.EmbedDim(ctx))

	require.NoError(t, r.Put(ctx, SystemModule, KeyEmbedDim, strPtr("1024"), false))
	assert.Equal(t, 1024, r.EmbedDim(ctx))

	require.NoError(t, r.Put(ctx, SystemModule, KeyEmbedDim, strPtr("0"), false))
	assert.Equal(t, DefaultEmbedDim, r.EmbedDim(ctx))
}
