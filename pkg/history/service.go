package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/feedeater/feedeater/pkg/bus"
	"github.com/feedeater/feedeater/pkg/store"
)

// Query bounds and caps for history reads.
const (
	DefaultSinceMinutes = 60
	MaxSinceMinutes     = 1440
	DefaultLimit        = 200
	MaxLimit            = 1000
)

// Query filters a history read. Zero values take defaults; oversized
// values are clamped, not rejected.
type Query struct {
	SinceMinutes int
	Limit        int
	Module       string
	Stream       string
	Text         string
}

func (q Query) normalized() Query {
	if q.SinceMinutes <= 0 {
		q.SinceMinutes = DefaultSinceMinutes
	}
	if q.SinceMinutes > MaxSinceMinutes {
		q.SinceMinutes = MaxSinceMinutes
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return q
}

func (q Query) build(cutoff time.Time) (string, []any) {
	sql := `SELECT subject, received_at, context_summary_short, data FROM bus_messages WHERE received_at >= $1`
	args := []any{cutoff}

	if q.Module != "" {
		args = append(args, bus.Subject(q.Module, bus.EventMessageCreated))
		sql += fmt.Sprintf(" AND subject = $%d", len(args))
	}
	if q.Stream != "" {
		args = append(args, q.Stream)
		sql += fmt.Sprintf(" AND data->'message'->'source'->>'stream' = $%d", len(args))
	}
	if q.Text != "" {
		args = append(args, "%"+q.Text+"%")
		sql += fmt.Sprintf(" AND data->'message'->>'message' ILIKE $%d", len(args))
	}

	args = append(args, q.Limit)
	sql += fmt.Sprintf(" ORDER BY received_at DESC LIMIT $%d", len(args))
	return sql, args
}

// Entry is one persisted bus envelope.
type Entry struct {
	Subject             string          `json:"subject"`
	ReceivedAt          time.Time       `json:"receivedAt"`
	ContextSummaryShort string          `json:"contextSummaryShort,omitempty"`
	Data                json.RawMessage `json:"data"`
}

// Service answers history queries from bus_messages.
type Service struct {
	store *store.Store
}

// NewService creates a history query service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// History returns matching envelopes, newest first.
func (s *Service) History(ctx context.Context, q Query) ([]Entry, error) {
	q = q.normalized()
	cutoff := time.Now().UTC().Add(-time.Duration(q.SinceMinutes) * time.Minute)
	sql, args := q.build(cutoff)

	rows, err := s.store.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bus history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var summary *string
		if err := rows.Scan(&e.Subject, &e.ReceivedAt, &summary, &e.Data); err != nil {
			return nil, fmt.Errorf("failed to scan bus history row: %w", err)
		}
		if summary != nil {
			e.ContextSummaryShort = *summary
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
