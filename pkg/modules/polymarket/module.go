// Package polymarket polls prediction markets and their trades from
// the public Gamma and Data REST APIs. Markets upsert in place as their
// volume and liquidity move; trades are append-only and become
// messages. Market descriptions are embedded so context retrieval can
// rank related activity semantically.
package polymarket

import (
	"context"
	"time"

	"github.com/feedeater/feedeater/pkg/module"
	"github.com/feedeater/feedeater/pkg/store"
)

const moduleName = "polymarket"

var (
	marketsTable    = store.SchemaName(moduleName) + ".markets"
	tradesTable     = store.SchemaName(moduleName) + ".trades"
	embeddingsTable = store.SchemaName(moduleName) + ".market_embeddings"
)

// Module implements the prediction market collector.
type Module struct{}

// New returns the module for registration.
func New() *Module {
	return &Module{}
}

// Manifest declares the module's jobs and settings.
func (m *Module) Manifest() module.Manifest {
	return module.Manifest{
		Name:        moduleName,
		Version:     "1.0.0",
		Description: "Collects prediction markets and trades from Polymarket",
		Queues:      []string{moduleName},
		Jobs: []module.Job{
			{
				Name:         "poll",
				Queue:        moduleName,
				Schedule:     "*/2 * * * *",
				TriggerClass: "collect",
				Description:  "Sweeps active markets and their recent trades",
			},
			{
				Name:         "updateContexts",
				Queue:        moduleName,
				Schedule:     "50 * * * *",
				TriggerClass: "contexts",
				Budget:       10 * time.Minute,
				Description:  "Refreshes per-market summaries, busiest markets first",
			},
		},
		Settings: []module.SettingDecl{
			{
				Key:         "api_url",
				Type:        module.SettingString,
				Default:     "https://gamma-api.polymarket.com",
				Description: "Gamma REST endpoint for market metadata",
			},
			{
				Key:         "data_api_url",
				Type:        module.SettingString,
				Default:     "https://data-api.polymarket.com",
				Description: "Data REST endpoint for trades",
			},
			{
				Key:         "markets_limit",
				Type:        module.SettingNumber,
				Default:     "50",
				Description: "How many active markets to sweep, by 24h volume",
			},
			{
				Key:         "trades_limit",
				Type:        module.SettingNumber,
				Default:     "100",
				Description: "Trades fetched per market per sweep",
			},
			{
				Key:         "min_volume",
				Type:        module.SettingNumber,
				Default:     "0",
				Description: "Ignore markets below this 24h volume",
			},
			{
				Key:         "request_timeout",
				Type:        module.SettingString,
				Default:     "15s",
				Description: "Per-request HTTP timeout",
			},
			{
				Key:         "context_top_k",
				Type:        module.SettingNumber,
				Description: "Records per context summary prompt",
			},
		},
		Card: &module.Card{Title: "Polymarket", PanelID: "polymarket"},
	}
}

// EnsureSchema creates the market tables and tracks the embedding
// dimension.
func (m *Module) EnsureSchema(ctx context.Context, deps *module.Deps) error {
	sc := deps.Store.Schema(moduleName)
	if err := sc.Ensure(ctx); err != nil {
		return err
	}

	if err := sc.EnsureTable(ctx, "markets", `
		condition_id TEXT PRIMARY KEY,
		question     TEXT NOT NULL DEFAULT '',
		slug         TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		volume_24h   DOUBLE PRECISION NOT NULL DEFAULT 0,
		liquidity    DOUBLE PRECISION NOT NULL DEFAULT 0,
		end_date     TIMESTAMPTZ,
		active       BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at   TIMESTAMPTZ NOT NULL`); err != nil {
		return err
	}
	if err := sc.EnsureIndex(ctx, "markets_volume", "markets", "(volume_24h DESC)"); err != nil {
		return err
	}

	if err := sc.EnsureTable(ctx, "trades", `
		id           TEXT PRIMARY KEY,
		condition_id TEXT NOT NULL,
		trade_id     TEXT NOT NULL,
		side         TEXT NOT NULL,
		outcome      TEXT NOT NULL DEFAULT '',
		price        DOUBLE PRECISION NOT NULL,
		size         DOUBLE PRECISION NOT NULL,
		executed_at  TIMESTAMPTZ NOT NULL,
		collected_at TIMESTAMPTZ NOT NULL DEFAULT now()`); err != nil {
		return err
	}
	if err := sc.EnsureIndex(ctx, "trades_condition_executed", "trades", "(condition_id, executed_at DESC)"); err != nil {
		return err
	}

	if err := sc.EnsureTable(ctx, "market_embeddings", `
		id           BIGSERIAL PRIMARY KEY,
		record_id    TEXT NOT NULL UNIQUE,
		source_key   TEXT NOT NULL,
		content      TEXT NOT NULL,
		collected_at TIMESTAMPTZ NOT NULL DEFAULT now()`); err != nil {
		return err
	}
	if err := sc.EnsureIndex(ctx, "market_embeddings_key_collected", "market_embeddings", "(source_key, collected_at DESC)"); err != nil {
		return err
	}
	return sc.EnsureVectorColumn(ctx, "market_embeddings", "embedding", deps.Settings.EmbedDim(ctx))
}

// Jobs binds the manifest's job names to implementations.
func (m *Module) Jobs() map[string]module.JobFunc {
	return map[string]module.JobFunc{
		"poll":           m.poll,
		"updateContexts": m.updateContexts,
	}
}
