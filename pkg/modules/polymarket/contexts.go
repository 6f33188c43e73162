package polymarket

import (
	"context"
	"fmt"
	"time"

	"github.com/feedeater/feedeater/pkg/collect"
	"github.com/feedeater/feedeater/pkg/contexts"
)

// updateContexts refreshes per-market summaries, busiest markets
// first. Keys come from the markets table rather than retrieval-table
// discovery so the order can follow 24h volume.
func (m *Module) updateContexts(ctx context.Context, s *collect.Session) error {
	cfg, err := parseSettings(s.Settings)
	if err != nil {
		return err
	}

	keys, err := m.activeMarketKeys(ctx, s, cfg.MarketsLimit)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	metrics, err := s.Contexts.RefreshModule(ctx, contexts.RefreshSpec{
		Module:          moduleName,
		EmbeddingsTable: embeddingsTable,
		Keys:            keys,
		TopK:            cfg.ContextTopK,
		Publisher:       s.Bus,
		Log:             s.Log,
	})
	s.Merge(metrics.Map())
	return err
}

// activeMarketKeys returns condition ids with trades inside the default
// lookback, ordered by 24h volume.
func (m *Module) activeMarketKeys(ctx context.Context, s *collect.Session, limit int) ([]string, error) {
	cutoff := time.Now().UTC().Add(-contexts.DefaultLookback)
	rows, err := s.Store.Query(ctx, `
		SELECT mk.condition_id
		FROM `+marketsTable+` mk
		WHERE EXISTS (
			SELECT 1 FROM `+tradesTable+` t
			WHERE t.condition_id = mk.condition_id AND t.executed_at >= $1
		)
		ORDER BY mk.volume_24h DESC, mk.condition_id ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active markets: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
