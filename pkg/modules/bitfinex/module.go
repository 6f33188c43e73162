// Package bitfinex streams public trades and order books from the
// Bitfinex v2 WebSocket API. Each sweep holds the stream for its
// budget: trades land as raw rows, fold into per-symbol candles, and
// maintain a bounded book whose snapshots persist on a fixed cadence.
package bitfinex

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/feedeater/feedeater/pkg/module"
	"github.com/feedeater/feedeater/pkg/store"
)

const moduleName = "bitfinex"

// labelTTL bounds how long currency display labels are trusted before
// the conf endpoint is consulted again.
const labelTTL = time.Hour

var (
	tradesTable     = store.SchemaName(moduleName) + ".trades"
	candlesTable    = store.SchemaName(moduleName) + ".candles"
	snapshotsTable  = store.SchemaName(moduleName) + ".book_snapshots"
	embeddingsTable = store.SchemaName(moduleName) + ".trade_embeddings"
)

// Module implements the exchange collector.
type Module struct {
	// labels caches currency code → display label across sweeps.
	labels *expirable.LRU[string, string]
}

// New returns the module for registration.
func New() *Module {
	return &Module{
		labels: expirable.NewLRU[string, string](512, nil, labelTTL),
	}
}

// Manifest declares the module's jobs and settings.
func (m *Module) Manifest() module.Manifest {
	return module.Manifest{
		Name:        moduleName,
		Version:     "1.0.0",
		Description: "Streams public trades and order books from Bitfinex",
		Queues:      []string{moduleName},
		Jobs: []module.Job{
			{
				Name:         "stream",
				Queue:        moduleName,
				Schedule:     "* * * * *",
				TriggerClass: "collect",
				Description:  "Holds the trade and book stream for one budget window",
			},
			{
				Name:         "updateContexts",
				Queue:        moduleName,
				Schedule:     "40 * * * *",
				TriggerClass: "contexts",
				Budget:       10 * time.Minute,
				Description:  "Refreshes the per-symbol market summaries",
			},
		},
		Settings: []module.SettingDecl{
			{
				Key:         "symbols",
				Type:        module.SettingString,
				Required:    true,
				Description: "Comma-separated trading pairs, e.g. tBTCUSD,tETHUSD",
			},
			{
				Key:         "candle_interval",
				Type:        module.SettingString,
				Default:     "1m",
				Description: "Aggregation window for trade candles",
			},
			{
				Key:         "book_depth",
				Type:        module.SettingNumber,
				Default:     "25",
				Description: "Order book depth per side (1, 25, 100, or 250)",
			},
			{
				Key:         "ws_url",
				Type:        module.SettingString,
				Default:     "wss://api-pub.bitfinex.com/ws/2",
				Description: "Public WebSocket endpoint",
			},
			{
				Key:         "api_url",
				Type:        module.SettingString,
				Default:     "https://api-pub.bitfinex.com",
				Description: "Public REST endpoint for conf lookups",
			},
			{
				Key:         "snapshot_interval",
				Type:        module.SettingString,
				Default:     "60s",
				Description: "Minimum spacing between stored book snapshots",
			},
		},
		Card: &module.Card{Title: "Bitfinex Markets", PanelID: "bitfinex"},
	}
}

// EnsureSchema creates the market tables and tracks the embedding
// dimension.
func (m *Module) EnsureSchema(ctx context.Context, deps *module.Deps) error {
	sc := deps.Store.Schema(moduleName)
	if err := sc.Ensure(ctx); err != nil {
		return err
	}

	if err := sc.EnsureTable(ctx, "trades", `
		id           TEXT PRIMARY KEY,
		symbol       TEXT NOT NULL,
		trade_id     BIGINT NOT NULL,
		price        DOUBLE PRECISION NOT NULL,
		amount       DOUBLE PRECISION NOT NULL,
		side         TEXT NOT NULL,
		executed_at  TIMESTAMPTZ NOT NULL,
		collected_at TIMESTAMPTZ NOT NULL DEFAULT now()`); err != nil {
		return err
	}
	if err := sc.EnsureIndex(ctx, "trades_symbol_executed", "trades", "(symbol, executed_at DESC)"); err != nil {
		return err
	}

	if err := sc.EnsureTable(ctx, "candles", `
		symbol      TEXT NOT NULL,
		interval_ms BIGINT NOT NULL,
		start_time  TIMESTAMPTZ NOT NULL,
		open        DOUBLE PRECISION NOT NULL,
		high        DOUBLE PRECISION NOT NULL,
		low         DOUBLE PRECISION NOT NULL,
		close       DOUBLE PRECISION NOT NULL,
		volume      DOUBLE PRECISION NOT NULL,
		trade_count INTEGER NOT NULL,
		PRIMARY KEY (symbol, interval_ms, start_time)`); err != nil {
		return err
	}

	if err := sc.EnsureTable(ctx, "book_snapshots", `
		id          TEXT PRIMARY KEY,
		symbol      TEXT NOT NULL,
		bids        JSONB NOT NULL,
		asks        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL`); err != nil {
		return err
	}
	if err := sc.EnsureIndex(ctx, "book_snapshots_symbol_captured", "book_snapshots", "(symbol, captured_at DESC)"); err != nil {
		return err
	}

	if err := sc.EnsureTable(ctx, "trade_embeddings", `
		id           BIGSERIAL PRIMARY KEY,
		record_id    TEXT NOT NULL UNIQUE,
		source_key   TEXT NOT NULL,
		content      TEXT NOT NULL,
		collected_at TIMESTAMPTZ NOT NULL DEFAULT now()`); err != nil {
		return err
	}
	if err := sc.EnsureIndex(ctx, "trade_embeddings_key_collected", "trade_embeddings", "(source_key, collected_at DESC)"); err != nil {
		return err
	}
	return sc.EnsureVectorColumn(ctx, "trade_embeddings", "embedding", deps.Settings.EmbedDim(ctx))
}

// Jobs binds the manifest's job names to implementations.
func (m *Module) Jobs() map[string]module.JobFunc {
	return map[string]module.JobFunc{
		"stream":         m.stream,
		"updateContexts": m.updateContexts,
	}
}
