package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedeater/feedeater/pkg/bus"
	"github.com/feedeater/feedeater/pkg/collect"
	"github.com/feedeater/feedeater/pkg/module"
	"github.com/feedeater/feedeater/pkg/settings"
	"github.com/feedeater/feedeater/pkg/store"
	"github.com/feedeater/feedeater/test/util"
)

func TestManifest(t *testing.T) {
	m := New()
	manifest := m.Manifest()
	require.NoError(t, manifest.Validate())

	jobs := m.Jobs()
	assert.Len(t, jobs, len(manifest.Jobs))
	for _, j := range manifest.Jobs {
		assert.Contains(t, jobs, j.Name)
	}
}

// feedDoc renders a three-item feed whose guids are unique per test
// run. The item tables are shared within the database, so identity
// must not collide across tests.
func feedDoc(stamp int64) string {
	const tmpl = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test Feed</title>
<item><guid>g-%d-1</guid><title>first</title><link>https://example.com/1</link><pubDate>Mon, 02 Mar 2026 10:00:00 +0000</pubDate></item>
<item><guid>g-%d-2</guid><title>second</title><link>https://example.com/2</link><pubDate>Mon, 02 Mar 2026 11:00:00 +0000</pubDate></item>
<item><guid>g-%d-3</guid><title>third</title><link>https://example.com/3</link><pubDate>Mon, 02 Mar 2026 12:00:00 +0000</pubDate></item>
</channel></rss>`
	return fmt.Sprintf(tmpl, stamp, stamp, stamp)
}

func pollSession(st *store.Store, feedURL string) *collect.Session {
	client := &bus.Client{}
	return &collect.Session{
		Module:   moduleName,
		Job:      "poll",
		Store:    st,
		Bus:      client.Publisher(moduleName),
		Log:      client.LogPublisher(moduleName),
		Settings: settings.Values{"feed_urls": feedURL},
	}
}

func countItems(t *testing.T, st *store.Store, ids []string) int {
	t.Helper()
	var n int
	err := st.QueryRow(context.Background(),
		`SELECT count(*) FROM `+itemsTable+` WHERE id = ANY($1)`, ids).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestPollInsertsOnce(t *testing.T) {
	st := util.SetupTestStore(t)
	ctx := context.Background()

	deps := &module.Deps{Store: st, Settings: settings.NewRegistry(st)}
	require.NoError(t, New().EnsureSchema(ctx, deps))
	require.NoError(t, New().EnsureSchema(ctx, deps), "schema setup must be idempotent")

	stamp := time.Now().UnixNano()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedDoc(stamp)))
	}))
	defer srv.Close()

	host := FeedHost(srv.URL)
	ids := []string{
		itemID(host, fmt.Sprintf("g-%d-1", stamp)),
		itemID(host, fmt.Sprintf("g-%d-2", stamp)),
		itemID(host, fmt.Sprintf("g-%d-3", stamp)),
	}

	first := pollSession(st, srv.URL+"/feed.xml")
	require.NoError(t, New().poll(ctx, first))

	metrics := first.Metrics()
	assert.Equal(t, 3.0, metrics["items_collected"])
	assert.Equal(t, 1.0, metrics["feeds_polled"])
	assert.NotContains(t, metrics, "feeds_unchanged")
	assert.Equal(t, 3, countItems(t, st, ids))

	var retrieval int
	err := st.QueryRow(ctx,
		`SELECT count(*) FROM `+embeddingsTable+` WHERE record_id = ANY($1)`, ids).Scan(&retrieval)
	require.NoError(t, err)
	assert.Equal(t, 3, retrieval, "each fresh item gets a retrieval row")

	// Identical response on the next sweep: nothing fresh.
	second := pollSession(st, srv.URL+"/feed.xml")
	require.NoError(t, New().poll(ctx, second))

	metrics = second.Metrics()
	assert.NotContains(t, metrics, "items_collected")
	assert.Equal(t, 1.0, metrics["feeds_unchanged"])
	assert.Equal(t, 3, countItems(t, st, ids))
}

func TestPollAllFeedsFailing(t *testing.T) {
	st := util.SetupTestStore(t)
	ctx := context.Background()

	deps := &module.Deps{Store: st, Settings: settings.NewRegistry(st)}
	require.NoError(t, New().EnsureSchema(ctx, deps))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	s := pollSession(st, srv.URL+"/feed.xml")
	err := New().poll(ctx, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feeds failed")
	assert.Equal(t, 1.0, s.Metrics()["feeds_failed"])
}

func TestPollRequiresSettings(t *testing.T) {
	s := &collect.Session{Module: moduleName, Job: "poll", Settings: settings.Values{}}
	err := New().poll(context.Background(), s)
	require.Error(t, err)
	assert.True(t, settings.IsValidationError(err))
}
