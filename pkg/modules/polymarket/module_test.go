package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedeater/feedeater/pkg/ai"
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

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	st := util.SetupTestStore(t)
	deps := &module.Deps{Store: st, Settings: settings.NewRegistry(st)}
	require.NoError(t, New().EnsureSchema(context.Background(), deps))
	return st
}

func testSession(st *store.Store, vals settings.Values) *collect.Session {
	client := &bus.Client{}
	return &collect.Session{
		Module:   moduleName,
		Job:      "poll",
		Store:    st,
		Bus:      client.Publisher(moduleName),
		Log:      client.LogPublisher(moduleName),
		Settings: vals,
	}
}

// testMarket builds a market whose condition id is unique per run; the
// market tables are shared within the database.
func testMarket(stamp int64) market {
	return market{
		ConditionID: fmt.Sprintf("0xtest%d", stamp),
		Question:    "Will the test pass?",
		Slug:        fmt.Sprintf("test-market-%d", stamp),
		Description: "Resolves YES when the suite is green.",
		Outcomes:    []string{"Yes", "No"},
		Volume24h:   1000,
		Liquidity:   500,
		EndDate:     time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:      true,
	}
}

// embedStub serves fixed-dimension vectors and counts calls.
func embedStub(t *testing.T, dim int) (*httptest.Server, *int) {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		*calls++

		vec := make([]float32, dim)
		for i := range vec {
			vec[i] = 0.1
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": vec, "tokens_per_second": 55.0})
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestStoreMarketUpsert(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	m := New()
	mk := testMarket(time.Now().UnixNano())

	first := testSession(st, nil)
	require.NoError(t, m.storeMarket(ctx, first, &mk, now))
	assert.Equal(t, 1.0, first.Metrics()["markets_discovered"])

	// Refresh with moved volume: same row, updated in place.
	mk.Volume24h = 2000
	second := testSession(st, nil)
	require.NoError(t, m.storeMarket(ctx, second, &mk, now.Add(time.Minute)))
	assert.NotContains(t, second.Metrics(), "markets_discovered")

	var volume float64
	var updatedAt time.Time
	err := st.QueryRow(ctx,
		`SELECT volume_24h, updated_at FROM `+marketsTable+` WHERE condition_id = $1`,
		mk.ConditionID).Scan(&volume, &updatedAt)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, volume)
	assert.True(t, updatedAt.After(now))

	var content string
	err = st.QueryRow(ctx,
		`SELECT content FROM `+embeddingsTable+` WHERE record_id = $1`,
		marketRecordID(mk.ConditionID)).Scan(&content)
	require.NoError(t, err)
	assert.Contains(t, content, "Will the test pass?")
}

func TestRefreshEmbeddingGating(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	srv, calls := embedStub(t, settings.DefaultEmbedDim)

	m := New()
	mk := testMarket(time.Now().UnixNano())
	s := testSession(st, nil)
	s.AI = ai.NewClient(srv.URL, "")

	embedded := func() bool {
		var isNull bool
		err := st.QueryRow(ctx,
			`SELECT embedding IS NULL FROM `+embeddingsTable+` WHERE record_id = $1`,
			marketRecordID(mk.ConditionID)).Scan(&isNull)
		require.NoError(t, err)
		return !isNull
	}

	require.NoError(t, m.storeMarket(ctx, s, &mk, time.Now().UTC()))
	assert.Equal(t, 1, *calls, "fresh market embeds once")
	assert.Equal(t, 1.0, s.Metrics()["markets_embedded"])
	assert.True(t, embedded())

	// Unchanged content keeps the vector and skips the embedder.
	require.NoError(t, m.storeMarket(ctx, s, &mk, time.Now().UTC()))
	assert.Equal(t, 1, *calls)
	assert.True(t, embedded())

	// A description change clears the vector and re-embeds.
	mk.Description = "Resolves NO when the suite is red."
	require.NoError(t, m.storeMarket(ctx, s, &mk, time.Now().UTC()))
	assert.Equal(t, 2, *calls)
	assert.True(t, embedded())

	var content string
	require.NoError(t, st.QueryRow(ctx,
		`SELECT content FROM `+embeddingsTable+` WHERE record_id = $1`,
		marketRecordID(mk.ConditionID)).Scan(&content))
	assert.Contains(t, content, "Resolves NO")
}

func TestRefreshEmbeddingFailureIsNonFatal(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := New()
	mk := testMarket(time.Now().UnixNano())
	s := testSession(st, nil)
	s.AI = ai.NewClient(srv.URL, "")

	require.NoError(t, m.storeMarket(ctx, s, &mk, time.Now().UTC()))
	assert.Equal(t, 1.0, s.Metrics()["embed_failures"])

	var isNull bool
	require.NoError(t, st.QueryRow(ctx,
		`SELECT embedding IS NULL FROM `+embeddingsTable+` WHERE record_id = $1`,
		marketRecordID(mk.ConditionID)).Scan(&isNull))
	assert.True(t, isNull, "row stays content-only until the next sweep")
}

func TestStoreTradeInsertsOnce(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	m := New()
	s := testSession(st, nil)
	conditionID := fmt.Sprintf("0xtrade%d", time.Now().UnixNano())
	tr := trade{
		TradeID:    "0xfeedbeef",
		Side:       "buy",
		Outcome:    "Yes",
		Price:      0.62,
		Size:       150,
		ExecutedAt: now.Add(-time.Minute),
	}

	inserted, err := m.storeTrade(ctx, s, conditionID, &tr, now)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = m.storeTrade(ctx, s, conditionID, &tr, now)
	require.NoError(t, err)
	assert.False(t, inserted, "replayed fills land on the conflict path")

	var n int
	require.NoError(t, st.QueryRow(ctx,
		`SELECT count(*) FROM `+tradesTable+` WHERE condition_id = $1`, conditionID).Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, st.QueryRow(ctx,
		`SELECT count(*) FROM `+embeddingsTable+` WHERE source_key = $1`, conditionID).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestActiveMarketKeysOrdersByVolume(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	m := New()
	s := testSession(st, nil)
	stamp := time.Now().UnixNano()

	quiet := testMarket(stamp)
	quiet.Volume24h = 9000
	low := testMarket(stamp + 1)
	low.Volume24h = 100
	high := testMarket(stamp + 2)
	high.Volume24h = 5000

	for _, mk := range []*market{&quiet, &low, &high} {
		require.NoError(t, m.storeMarket(ctx, s, mk, now))
	}
	for i, mk := range []*market{&low, &high} {
		tr := trade{
			TradeID: fmt.Sprintf("0xkey%d", stamp+int64(i)), Side: "buy",
			Outcome: "Yes", Price: 0.5, Size: 1, ExecutedAt: now,
		}
		_, err := m.storeTrade(ctx, s, mk.ConditionID, &tr, now)
		require.NoError(t, err)
	}

	keys, err := m.activeMarketKeys(ctx, s, 1000)
	require.NoError(t, err)

	assert.NotContains(t, keys, quiet.ConditionID, "markets without recent trades are skipped")
	hi := slices.Index(keys, high.ConditionID)
	lo := slices.Index(keys, low.ConditionID)
	require.GreaterOrEqual(t, hi, 0)
	require.GreaterOrEqual(t, lo, 0)
	assert.Less(t, hi, lo, "busier markets come first")
}

// marketsPage renders rows [start, start+n) of a synthetic listing
// ordered by descending volume.
func marketsPage(start, n int) string {
	entries := make([]string, 0, n)
	for i := start; i < start+n; i++ {
		entries = append(entries, fmt.Sprintf(
			`{"conditionId": "0xpage%06d", "question": "page market", "volume24hr": %d, "active": true}`,
			i, 1_000_000-i))
	}
	return "[" + strings.Join(entries, ",") + "]"
}

// pagedGamma serves a listing of the given size, recording each
// requested (offset, limit) window.
func pagedGamma(t *testing.T, available int, pages *[][2]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		require.NoError(t, err)
		offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
		require.NoError(t, err)
		*pages = append(*pages, [2]int{offset, limit})

		n := available - offset
		if n < 0 {
			n = 0
		}
		if n > limit {
			n = limit
		}
		fmt.Fprint(w, marketsPage(offset, n))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchMarketsPaginates(t *testing.T) {
	const available = 230
	var pages [][2]int
	srv := pagedGamma(t, available, &pages)

	s := testSession(nil, nil)
	markets, err := New().fetchMarkets(context.Background(),
		s.NewFetcher(5*time.Second), Settings{APIURL: srv.URL, MarketsLimit: 250})
	require.NoError(t, err)

	require.Len(t, markets, available, "a short page ends the listing")
	assert.Equal(t, [][2]int{{0, 100}, {100, 100}, {200, 50}}, pages)
	assert.Equal(t, "0xpage000000", markets[0].ConditionID)
	assert.Equal(t, fmt.Sprintf("0xpage%06d", available-1), markets[available-1].ConditionID)
}

func TestFetchMarketsStopsAtVolumeFloor(t *testing.T) {
	var pages [][2]int
	srv := pagedGamma(t, 1000, &pages)

	s := testSession(nil, nil)
	markets, err := New().fetchMarkets(context.Background(),
		s.NewFetcher(5*time.Second),
		Settings{APIURL: srv.URL, MarketsLimit: 300, MinVolume: 1_000_000 - 149})
	require.NoError(t, err)

	require.Len(t, markets, 150, "the volume-ordered listing cuts at the floor")
	assert.Equal(t, [][2]int{{0, 100}, {100, 100}}, pages, "no request past the cut")
}

func TestPollSweep(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	conditionID := fmt.Sprintf("0xsweep%d", stamp)

	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets", r.URL.Path)
		fmt.Fprintf(w, `[{"conditionId": %q, "question": "Sweep?", "slug": "sweep", "volume24hr": 10, "active": true}]`, conditionID)
	}))
	defer gamma.Close()

	executed := stamp / int64(time.Second)
	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trades", r.URL.Path)
		require.Equal(t, conditionID, r.URL.Query().Get("market"))
		fmt.Fprintf(w, `[
			{"transactionHash": "0xa%d", "side": "BUY", "outcome": "Yes", "price": 0.6, "size": 10, "timestamp": %d},
			{"transactionHash": "0xb%d", "side": "SELL", "outcome": "No", "price": 0.4, "size": 5, "timestamp": %d}
		]`, stamp, executed, stamp, executed)
	}))
	defer data.Close()

	vals := settings.Values{"api_url": gamma.URL, "data_api_url": data.URL}

	first := testSession(st, vals)
	require.NoError(t, New().poll(ctx, first))

	metrics := first.Metrics()
	assert.Equal(t, 1.0, metrics["markets_listed"])
	assert.Equal(t, 1.0, metrics["markets_polled"])
	assert.Equal(t, 1.0, metrics["markets_discovered"])
	assert.Equal(t, 2.0, metrics["trades_collected"])

	// Identical responses next sweep: market refreshes, nothing fresh.
	second := testSession(st, vals)
	require.NoError(t, New().poll(ctx, second))

	metrics = second.Metrics()
	assert.Equal(t, 1.0, metrics["markets_polled"])
	assert.NotContains(t, metrics, "markets_discovered")
	assert.NotContains(t, metrics, "trades_collected")
}

func TestPollAllMarketsFailing(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	conditionID := fmt.Sprintf("0xfail%d", time.Now().UnixNano())

	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"conditionId": %q, "question": "Doomed?", "volume24hr": 1, "active": true}]`, conditionID)
	}))
	defer gamma.Close()

	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer data.Close()

	s := testSession(st, settings.Values{"api_url": gamma.URL, "data_api_url": data.URL})
	err := New().poll(ctx, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "markets failed")
	assert.Equal(t, 1.0, s.Metrics()["markets_failed"])
}

func TestPollRejectsBadSettings(t *testing.T) {
	s := &collect.Session{Module: moduleName, Job: "poll", Settings: settings.Values{"markets_limit": "0"}}
	err := New().poll(context.Background(), s)
	require.Error(t, err)
	assert.True(t, settings.IsValidationError(err))
}
