package rss

import (
	"context"

	"github.com/feedeater/feedeater/pkg/collect"
	"github.com/feedeater/feedeater/pkg/contexts"
)

// updateContexts refreshes the per-host summaries from recently
// collected items.
func (m *Module) updateContexts(ctx context.Context, s *collect.Session) error {
	cfg, err := parseSettings(s.Settings)
	if err != nil {
		return err
	}

	metrics, err := s.Contexts.RefreshModule(ctx, contexts.RefreshSpec{
		Module:          moduleName,
		EmbeddingsTable: embeddingsTable,
		Lookback:        cfg.ContextLookback,
		TopK:            cfg.ContextTopK,
		Publisher:       s.Bus,
		Log:             s.Log,
	})
	s.Merge(metrics.Map())
	return err
}
