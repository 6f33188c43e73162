package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/feedeater/feedeater/pkg/collect"
	"github.com/feedeater/feedeater/pkg/ident"
	"github.com/feedeater/feedeater/pkg/models"
)

// poll sweeps the busiest active markets once: metadata upserts in
// place, recent trades append, and fresh trades become messages.
// Per-market failures are isolated; the sweep errors only when no
// market could be processed at all.
func (m *Module) poll(ctx context.Context, s *collect.Session) error {
	cfg, err := parseSettings(s.Settings)
	if err != nil {
		return err
	}

	fetcher := s.NewFetcher(cfg.RequestTimeout)
	now := time.Now().UTC()

	markets, err := m.fetchMarkets(ctx, fetcher, cfg)
	if err != nil {
		return err
	}
	s.Add("markets_listed", float64(len(markets)))

	failed := 0
	for i := range markets {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		mk := &markets[i]
		if err := m.pollMarket(ctx, s, fetcher, cfg, mk, now); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			s.Count("markets_failed")
			s.Log.Warn("Market sweep failed", map[string]any{"market": mk.ConditionID, "error": err.Error()})
			continue
		}
		s.Count("markets_polled")
	}

	if failed > 0 && failed == len(markets) {
		return fmt.Errorf("all %d markets failed", failed)
	}
	return nil
}

// marketsPageSize caps one Gamma listing request. The API serves at
// most 100 rows per call regardless of the requested limit.
const marketsPageSize = 100

// fetchMarkets pages through the active-market listing, busiest first,
// until the configured limit fills or the listing ends. The listing is
// volume-ordered, so the first market below the volume floor ends the
// pull.
func (m *Module) fetchMarkets(ctx context.Context, fetcher *collect.Fetcher, cfg Settings) ([]market, error) {
	var out []market
	offset := 0
	for len(out) < cfg.MarketsLimit {
		pageSize := cfg.MarketsLimit - len(out)
		if pageSize > marketsPageSize {
			pageSize = marketsPageSize
		}

		reqURL := fmt.Sprintf("%s/markets?active=true&closed=false&order=volume24hr&ascending=false&limit=%d&offset=%d",
			cfg.APIURL, pageSize, offset)
		body, err := fetcher.Get(ctx, reqURL)
		if err != nil {
			return nil, err
		}
		page, raw, err := parseMarkets(body)
		if err != nil {
			return nil, err
		}

		for _, mk := range page {
			if cfg.MinVolume > 0 && mk.Volume24h < cfg.MinVolume {
				return out, nil
			}
			out = append(out, mk)
		}
		if raw < pageSize {
			break
		}
		offset += raw
	}
	return out, nil
}

func (m *Module) pollMarket(ctx context.Context, s *collect.Session, fetcher *collect.Fetcher, cfg Settings, mk *market, now time.Time) error {
	if err := m.storeMarket(ctx, s, mk, now); err != nil {
		return err
	}
	return m.pollTrades(ctx, s, fetcher, cfg, mk, now)
}

// storeMarket upserts the market row and keeps its retrieval row
// current. xmax = 0 distinguishes a first sighting from a refresh.
func (m *Module) storeMarket(ctx context.Context, s *collect.Session, mk *market, now time.Time) error {
	var endDate any
	if !mk.EndDate.IsZero() {
		endDate = mk.EndDate
	}

	var inserted bool
	err := s.Store.QueryRow(ctx, `
		INSERT INTO `+marketsTable+` (condition_id, question, slug, description, volume_24h, liquidity, end_date, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (condition_id) DO UPDATE SET
			question    = EXCLUDED.question,
			slug        = EXCLUDED.slug,
			description = EXCLUDED.description,
			volume_24h  = EXCLUDED.volume_24h,
			liquidity   = EXCLUDED.liquidity,
			end_date    = EXCLUDED.end_date,
			active      = EXCLUDED.active,
			updated_at  = EXCLUDED.updated_at
		RETURNING (xmax = 0)`,
		mk.ConditionID, mk.Question, mk.Slug, mk.Description, mk.Volume24h, mk.Liquidity, endDate, mk.Active, now).Scan(&inserted)
	if err != nil {
		return fmt.Errorf("failed to upsert market: %w", err)
	}
	if inserted {
		s.Count("markets_discovered")
	}

	return m.refreshEmbedding(ctx, s, mk, now)
}

// refreshEmbedding maintains the market's description row in the
// retrieval table. A content change clears the stored vector so it is
// re-embedded; a failed embed call leaves the row content-only until
// the next sweep picks it up again.
func (m *Module) refreshEmbedding(ctx context.Context, s *collect.Session, mk *market, now time.Time) error {
	content := mk.embedText()
	if content == "" {
		return nil
	}
	recordID := marketRecordID(mk.ConditionID)

	var needsEmbed bool
	err := s.Store.QueryRow(ctx, `
		INSERT INTO `+embeddingsTable+` AS me (record_id, source_key, content, collected_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_id) DO UPDATE SET
			content      = EXCLUDED.content,
			collected_at = EXCLUDED.collected_at,
			embedding    = CASE WHEN me.content IS DISTINCT FROM EXCLUDED.content THEN NULL ELSE me.embedding END
		RETURNING me.embedding IS NULL`,
		recordID, mk.ConditionID, content, now).Scan(&needsEmbed)
	if err != nil {
		return fmt.Errorf("failed to upsert market retrieval row: %w", err)
	}
	if !needsEmbed || s.AI == nil {
		return nil
	}

	vec, _, err := s.AI.Embed(ctx, content)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Count("embed_failures")
		s.Log.Warn("Failed to embed market description", map[string]any{
			"market": mk.ConditionID, "error": err.Error(),
		})
		return nil
	}
	if _, err := s.Store.Exec(ctx,
		`UPDATE `+embeddingsTable+` SET embedding = $1 WHERE record_id = $2`,
		pgvector.NewVector(vec), recordID); err != nil {
		return fmt.Errorf("failed to store market embedding: %w", err)
	}
	s.Count("markets_embedded")
	return nil
}

// pollTrades fetches the market's recent fills and stores the
// previously unseen ones.
func (m *Module) pollTrades(ctx context.Context, s *collect.Session, fetcher *collect.Fetcher, cfg Settings, mk *market, now time.Time) error {
	reqURL := fmt.Sprintf("%s/trades?market=%s&limit=%d",
		cfg.DataAPIURL, url.QueryEscape(mk.ConditionID), cfg.TradesLimit)
	body, err := fetcher.Get(ctx, reqURL)
	if err != nil {
		return err
	}

	trades, err := parseTrades(body)
	if err != nil {
		return err
	}

	for i := range trades {
		tr := &trades[i]
		inserted, err := m.storeTrade(ctx, s, mk.ConditionID, tr, now)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.Log.Warn("Failed to store trade", map[string]any{
				"market": mk.ConditionID, "trade": tr.TradeID, "error": err.Error(),
			})
			continue
		}
		if !inserted {
			continue
		}

		s.Count("trades_collected")
		if s.Bus.PublishMessage(m.tradeMessage(mk, tr)) {
			s.Count("messages_published")
		}
	}
	return nil
}

// storeTrade inserts a trade and its retrieval row, reporting whether
// the trade was previously unseen. Trade rows never carry embeddings;
// retrieval tops them up by recency next to the embedded description.
func (m *Module) storeTrade(ctx context.Context, s *collect.Session, conditionID string, tr *trade, now time.Time) (bool, error) {
	id := tradeRecordID(conditionID, tr.TradeID)

	tag, err := s.Store.Exec(ctx, `
		INSERT INTO `+tradesTable+` (id, condition_id, trade_id, side, outcome, price, size, executed_at, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		id, conditionID, tr.TradeID, tr.Side, tr.Outcome, tr.Price, tr.Size, tr.ExecutedAt, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := s.Store.Exec(ctx, `
		INSERT INTO `+embeddingsTable+` (record_id, source_key, content, collected_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_id) DO NOTHING`,
		id, conditionID, tradeText(tr), now); err != nil {
		return true, fmt.Errorf("failed to insert retrieval row: %w", err)
	}
	return true, nil
}

func (m *Module) tradeMessage(mk *market, tr *trade) models.Message {
	stream := mk.Slug
	if stream == "" {
		stream = mk.ConditionID
	}

	return models.Message{
		ID:        tradeRecordID(mk.ConditionID, tr.TradeID),
		CreatedAt: tr.ExecutedAt,
		Source:    models.Source{Module: moduleName, Stream: stream},
		Text:      mk.Question + ": " + tradeText(tr),
		From:      moduleName,
		ContextRef: &models.ContextRef{
			OwnerModule: moduleName,
			SourceKey:   mk.ConditionID,
		},
		Tags: models.Tags{
			"market":  mk.ConditionID,
			"outcome": tr.Outcome,
			"side":    tr.Side,
			"price":   tr.Price,
			"size":    tr.Size,
		},
	}
}

func tradeText(tr *trade) string {
	return fmt.Sprintf("%s %s %s at %s", tr.Side, formatQty(tr.Size), tr.Outcome, formatQty(tr.Price))
}

// marketRecordID derives the retrieval row id for a market description.
func marketRecordID(conditionID string) string {
	return ident.MessageID(moduleName, ident.SourceID(moduleName, conditionID, "market"))
}

// tradeRecordID derives the canonical message id from the trade's
// natural key.
func tradeRecordID(conditionID, tradeID string) string {
	return ident.MessageID(moduleName, ident.SourceID(moduleName, conditionID, tradeID))
}
