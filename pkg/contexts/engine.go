// Package contexts maintains the per-key AI summaries that back
// semantic retrieval. A scheduled job per module fans the engine out
// over the module's active source keys; each key gets a fresh summary
// built from its most relevant stored records, an embedding of that
// summary, and a ContextUpdated publication.
package contexts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/feedeater/feedeater/pkg/ai"
	"github.com/feedeater/feedeater/pkg/bus"
	"github.com/feedeater/feedeater/pkg/models"
	"github.com/feedeater/feedeater/pkg/store"
)

const (
	// DefaultLookback is the recent-activity window for key discovery.
	DefaultLookback = 24 * time.Hour

	// DefaultTopK bounds how many records feed one summary prompt.
	DefaultTopK = 20
)

var tablePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// Engine drives context refreshes for all modules against the shared
// bus_contexts table.
type Engine struct {
	store *store.Store
	ai    *ai.Client
}

// NewEngine builds an engine over the shared store and AI client.
func NewEngine(st *store.Store, client *ai.Client) *Engine {
	return &Engine{store: st, ai: client}
}

// RefreshSpec describes one module's context sweep.
type RefreshSpec struct {
	// Module is the owning module name.
	Module string

	// EmbeddingsTable is the module's record table, qualified with its
	// schema. It must expose (id, source_key, content, embedding,
	// collected_at); embedding may be NULL.
	EmbeddingsTable string

	// Keys overrides key discovery when set. Order is preserved, so
	// modules can rank keys (polymarket orders by 24h volume).
	Keys []string

	// Lookback is the activity window for key discovery.
	Lookback time.Duration

	// TopK bounds records per prompt.
	TopK int

	Publisher *bus.Publisher
	Log       *bus.LogPublisher
}

func (s *RefreshSpec) normalize() error {
	if s.Module == "" {
		return errors.New("refresh spec requires a module")
	}
	if !tablePattern.MatchString(s.EmbeddingsTable) {
		return fmt.Errorf("invalid embeddings table %q", s.EmbeddingsTable)
	}
	if s.Publisher == nil {
		return errors.New("refresh spec requires a publisher")
	}
	if s.Lookback <= 0 {
		s.Lookback = DefaultLookback
	}
	if s.TopK <= 0 {
		s.TopK = DefaultTopK
	}
	return nil
}

// Metrics summarizes one refresh sweep.
type Metrics struct {
	Updated            int
	AISummaries        int
	FallbackSummaries  int
	EmbeddingsInserted int
	AvgTokenRate       float64
}

// Map renders the metrics for job bookkeeping.
func (m Metrics) Map() map[string]any {
	return map[string]any{
		"updated":            m.Updated,
		"aiSummaries":        m.AISummaries,
		"fallbackSummaries":  m.FallbackSummaries,
		"embeddingsInserted": m.EmbeddingsInserted,
		"avgTokenRate":       m.AvgTokenRate,
	}
}

// RefreshModule runs the context loop for one module. Per-key failures
// are local: a failed AI call or upsert logs and moves on. The loop
// stops early only when ctx expires.
func (e *Engine) RefreshModule(ctx context.Context, spec RefreshSpec) (Metrics, error) {
	var m Metrics
	if err := spec.normalize(); err != nil {
		return m, err
	}

	keys := spec.Keys
	if len(keys) == 0 {
		found, err := e.recentKeys(ctx, spec)
		if err != nil {
			return m, fmt.Errorf("failed to discover context keys: %w", err)
		}
		keys = found
	}

	var rates []float64
	for _, key := range keys {
		res, err := e.refreshKey(ctx, spec, key)
		if err != nil {
			if ctx.Err() != nil {
				return m.withAvg(rates), ctx.Err()
			}
			e.logKeyError(spec, key, err)
			continue
		}
		if res.skipped {
			continue
		}

		m.Updated++
		if res.fromAI {
			m.AISummaries++
		} else {
			m.FallbackSummaries++
		}
		if res.embedded {
			m.EmbeddingsInserted++
		}
		rates = append(rates, res.rates...)
	}

	return m.withAvg(rates), nil
}

func (m Metrics) withAvg(rates []float64) Metrics {
	if len(rates) == 0 {
		return m
	}
	var sum float64
	for _, r := range rates {
		sum += r
	}
	m.AvgTokenRate = sum / float64(len(rates))
	return m
}

type keyResult struct {
	skipped  bool
	fromAI   bool
	embedded bool
	rates    []float64
}

func (e *Engine) refreshKey(ctx context.Context, spec RefreshSpec, key string) (keyResult, error) {
	var res keyResult

	priorSummary, priorEmbedding, err := e.priorContext(ctx, spec.Module, key)
	if err != nil {
		return res, fmt.Errorf("failed to read prior context: %w", err)
	}

	items, err := e.selectItems(ctx, spec, key, priorEmbedding)
	if err != nil {
		return res, fmt.Errorf("failed to select records: %w", err)
	}
	if len(items) == 0 {
		res.skipped = true
		return res, nil
	}

	summary, fromAI, rates := e.summarize(ctx, key, priorSummary, items)
	res.fromAI = fromAI
	res.rates = rates

	c := models.Context{
		OwnerModule:  spec.Module,
		SourceKey:    key,
		SummaryShort: models.TruncateSummary(summary.Short),
		SummaryLong:  summary.Long,
		KeyPoints:    summary.KeyPoints,
		UpdatedAt:    time.Now().UTC(),
	}

	if vec, rate, err := e.ai.Embed(ctx, c.SummaryLong); err == nil {
		c.Embedding = vec
		res.embedded = true
		if rate > 0 {
			res.rates = append(res.rates, rate)
		}
	} else {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		slog.Warn("Context embedding failed", "module", spec.Module, "key", key, "error", err)
	}

	if err := e.upsert(ctx, c); err != nil {
		return res, fmt.Errorf("failed to upsert context: %w", err)
	}

	spec.Publisher.PublishContext(models.NewContextUpdated(c))
	return res, nil
}

// summarize runs the three-tier ladder: structured JSON, plain text,
// then a minimal placeholder that can never fail.
func (e *Engine) summarize(ctx context.Context, key, prior string, items []record) (ai.Summary, bool, []float64) {
	var rates []float64
	body := buildPromptBody(key, prior, items)

	summary, err := e.ai.SummarizeJSON(ctx, jsonPrompt(body))
	if err == nil {
		if summary.TokenRate > 0 {
			rates = append(rates, summary.TokenRate)
		}
		return summary, true, rates
	}
	slog.Debug("Structured summary failed, falling back to text", "key", key, "error", err)

	text, rate, err := e.ai.SummarizeText(ctx, textPrompt(body))
	if err == nil {
		if rate > 0 {
			rates = append(rates, rate)
		}
		return ai.Summary{Short: deriveShort(text), Long: text}, false, rates
	}
	slog.Warn("Text summary failed, emitting placeholder context", "key", key, "error", err)

	return minimalFallback(key, time.Now().UTC()), false, rates
}

func (e *Engine) recentKeys(ctx context.Context, spec RefreshSpec) ([]string, error) {
	cutoff := time.Now().UTC().Add(-spec.Lookback)
	sql := fmt.Sprintf(
		`SELECT DISTINCT source_key FROM %s WHERE collected_at >= $1 ORDER BY source_key`,
		spec.EmbeddingsTable)

	rows, err := e.store.Query(ctx, sql, cutoff)
	if err != nil {
		return nil, err
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

func (e *Engine) priorContext(ctx context.Context, module, key string) (string, *pgvector.Vector, error) {
	var summary string
	var embedding *pgvector.Vector
	err := e.store.QueryRow(ctx,
		`SELECT summary_long, embedding FROM bus_contexts WHERE owner_module = $1 AND source_key = $2`,
		module, key).Scan(&summary, &embedding)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	return summary, embedding, nil
}

type record struct {
	ID          int64
	Content     string
	CollectedAt time.Time
}

// selectItems picks the records that feed the prompt: nearest
// neighbors of the query embedding when one exists, most recent
// otherwise. Ties break by newest timestamp, then lowest id. Tables
// where only some rows carry embeddings (polymarket embeds market
// descriptions, not trades) top the neighbor set up with the most
// recent remaining records.
func (e *Engine) selectItems(ctx context.Context, spec RefreshSpec, key string, priorEmbedding *pgvector.Vector) ([]record, error) {
	query := priorEmbedding
	if query == nil {
		latest, err := e.latestEmbedding(ctx, spec.EmbeddingsTable, key)
		if err != nil {
			return nil, err
		}
		query = latest
	}

	if query != nil {
		sql := fmt.Sprintf(
			`SELECT id, content, collected_at FROM %s
			 WHERE source_key = $1 AND embedding IS NOT NULL
			 ORDER BY embedding <=> $2, collected_at DESC, id ASC
			 LIMIT $3`,
			spec.EmbeddingsTable)
		items, err := e.scanRecords(ctx, sql, key, *query, spec.TopK)
		if err != nil {
			return nil, err
		}
		if len(items) >= spec.TopK {
			return items, nil
		}
		if len(items) > 0 {
			more, err := e.recentRecords(ctx, spec, key, recordIDs(items), spec.TopK-len(items))
			if err != nil {
				return nil, err
			}
			return append(items, more...), nil
		}
	}

	return e.recentRecords(ctx, spec, key, nil, spec.TopK)
}

// recentRecords returns the newest records for key, skipping ids
// already selected.
func (e *Engine) recentRecords(ctx context.Context, spec RefreshSpec, key string, exclude []int64, limit int) ([]record, error) {
	if len(exclude) > 0 {
		sql := fmt.Sprintf(
			`SELECT id, content, collected_at FROM %s
			 WHERE source_key = $1 AND id <> ALL($2)
			 ORDER BY collected_at DESC, id ASC
			 LIMIT $3`,
			spec.EmbeddingsTable)
		return e.scanRecords(ctx, sql, key, exclude, limit)
	}

	sql := fmt.Sprintf(
		`SELECT id, content, collected_at FROM %s
		 WHERE source_key = $1
		 ORDER BY collected_at DESC, id ASC
		 LIMIT $2`,
		spec.EmbeddingsTable)
	return e.scanRecords(ctx, sql, key, limit)
}

func recordIDs(items []record) []int64 {
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func (e *Engine) latestEmbedding(ctx context.Context, table, key string) (*pgvector.Vector, error) {
	sql := fmt.Sprintf(
		`SELECT embedding FROM %s
		 WHERE source_key = $1 AND embedding IS NOT NULL
		 ORDER BY collected_at DESC, id DESC
		 LIMIT 1`,
		table)

	var vec pgvector.Vector
	err := e.store.QueryRow(ctx, sql, key).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vec, nil
}

func (e *Engine) scanRecords(ctx context.Context, sql string, args ...any) ([]record, error) {
	rows, err := e.store.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.ID, &r.Content, &r.CollectedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (e *Engine) upsert(ctx context.Context, c models.Context) error {
	var embedding any
	if c.Embedding != nil {
		embedding = pgvector.NewVector(c.Embedding)
	}
	var keyPoints any
	if len(c.KeyPoints) > 0 {
		keyPoints = c.KeyPoints
	}

	// A failed embed call leaves the previous embedding in place rather
	// than clearing it.
	_, err := e.store.Exec(ctx,
		`INSERT INTO bus_contexts (owner_module, source_key, summary_short, summary_long, key_points, embedding, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (owner_module, source_key) DO UPDATE SET
		     summary_short = EXCLUDED.summary_short,
		     summary_long  = EXCLUDED.summary_long,
		     key_points    = EXCLUDED.key_points,
		     embedding     = COALESCE(EXCLUDED.embedding, bus_contexts.embedding),
		     updated_at    = EXCLUDED.updated_at`,
		c.OwnerModule, c.SourceKey, c.SummaryShort, c.SummaryLong, keyPoints, embedding, c.UpdatedAt)
	return err
}

func (e *Engine) logKeyError(spec RefreshSpec, key string, err error) {
	if spec.Log != nil {
		spec.Log.Error("Context refresh failed for key", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	slog.Error("Context refresh failed for key", "module", spec.Module, "key", key, "error", err)
}
