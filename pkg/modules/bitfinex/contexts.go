package bitfinex

import (
	"context"

	"github.com/feedeater/feedeater/pkg/collect"
	"github.com/feedeater/feedeater/pkg/contexts"
)

// updateContexts refreshes the per-symbol summaries from recently
// collected trades. Keys come from discovery, so symbols with no
// recent activity are skipped.
func (m *Module) updateContexts(ctx context.Context, s *collect.Session) error {
	if _, err := parseSettings(s.Settings); err != nil {
		return err
	}

	metrics, err := s.Contexts.RefreshModule(ctx, contexts.RefreshSpec{
		Module:          moduleName,
		EmbeddingsTable: embeddingsTable,
		Publisher:       s.Bus,
		Log:             s.Log,
	})
	s.Merge(metrics.Map())
	return err
}
