// Package rss polls configured RSS 2.0 and Atom feeds, stores fresh
// items under the module's namespace, and publishes one message per
// previously unseen item. Contexts are keyed by feed host, so every
// feed on a host shares one rolling summary.
package rss

import (
	"context"
	"time"

	"github.com/feedeater/feedeater/pkg/module"
	"github.com/feedeater/feedeater/pkg/store"
)

const moduleName = "rss"

var (
	itemsTable      = store.SchemaName(moduleName) + ".items"
	embeddingsTable = store.SchemaName(moduleName) + ".item_embeddings"
)

// Module implements the feed collector.
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
		Description: "Collects items from configured RSS and Atom feeds",
		Queues:      []string{moduleName},
		Jobs: []module.Job{
			{
				Name:         "poll",
				Queue:        moduleName,
				Schedule:     "*/5 * * * *",
				TriggerClass: "collect",
				Description:  "Fetches every configured feed and stores fresh items",
			},
			{
				Name:         "updateContexts",
				Queue:        moduleName,
				Schedule:     "20 * * * *",
				TriggerClass: "contexts",
				Budget:       10 * time.Minute,
				Description:  "Refreshes the per-host feed summaries",
			},
		},
		Settings: []module.SettingDecl{
			{
				Key:         "feed_urls",
				Type:        module.SettingString,
				Required:    true,
				Description: "Comma-separated feed URLs to poll",
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
				Description: "Items per context summary prompt",
			},
			{
				Key:         "context_lookback",
				Type:        module.SettingString,
				Description: "Activity window for context key discovery",
			},
		},
		Card: &module.Card{Title: "RSS Feeds", PanelID: "rss"},
	}
}

// EnsureSchema creates the item tables and tracks the embedding
// dimension.
func (m *Module) EnsureSchema(ctx context.Context, deps *module.Deps) error {
	sc := deps.Store.Schema(moduleName)
	if err := sc.Ensure(ctx); err != nil {
		return err
	}

	if err := sc.EnsureTable(ctx, "items", `
		id           TEXT PRIMARY KEY,
		feed_host    TEXT NOT NULL,
		guid         TEXT NOT NULL,
		title        TEXT NOT NULL DEFAULT '',
		link         TEXT NOT NULL DEFAULT '',
		author       TEXT NOT NULL DEFAULT '',
		summary      TEXT NOT NULL DEFAULT '',
		published_at TIMESTAMPTZ NOT NULL,
		collected_at TIMESTAMPTZ NOT NULL DEFAULT now()`); err != nil {
		return err
	}
	if err := sc.EnsureIndex(ctx, "items_host_published", "items", "(feed_host, published_at DESC)"); err != nil {
		return err
	}

	if err := sc.EnsureTable(ctx, "item_embeddings", `
		id           BIGSERIAL PRIMARY KEY,
		record_id    TEXT NOT NULL UNIQUE,
		source_key   TEXT NOT NULL,
		content      TEXT NOT NULL,
		collected_at TIMESTAMPTZ NOT NULL DEFAULT now()`); err != nil {
		return err
	}
	if err := sc.EnsureIndex(ctx, "item_embeddings_key_collected", "item_embeddings", "(source_key, collected_at DESC)"); err != nil {
		return err
	}
	return sc.EnsureVectorColumn(ctx, "item_embeddings", "embedding", deps.Settings.EmbedDim(ctx))
}

// Jobs binds the manifest's job names to implementations.
func (m *Module) Jobs() map[string]module.JobFunc {
	return map[string]module.JobFunc{
		"poll":           m.poll,
		"updateContexts": m.updateContexts,
	}
}
