// Package history copies bus traffic into Postgres and serves the
// replay queries behind the operational API. The persister is the only
// writer of bus_messages; SSE clients replay from it before going live.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/feedeater/feedeater/pkg/bus"
	"github.com/feedeater/feedeater/pkg/models"
	"github.com/feedeater/feedeater/pkg/store"
)

// Persister subscribes to every messageCreated subject and records each
// envelope once, keyed by message id.
type Persister struct {
	store *store.Store
	bus   *bus.Client

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPersister creates a persister over the shared store and broker.
func NewPersister(st *store.Store, client *bus.Client) *Persister {
	return &Persister{store: st, bus: client}
}

// Start launches the persistence loop.
func (p *Persister) Start(ctx context.Context) error {
	if p.cancel != nil {
		return nil
	}
	ctx, p.cancel = context.WithCancel(ctx)

	deliveries, err := p.bus.Subscribe(ctx, bus.AllMessages)
	if err != nil {
		p.cancel()
		p.cancel = nil
		return err
	}
	p.done = make(chan struct{})

	go p.run(ctx, deliveries)

	slog.Info("Bus history persister started", "subject", bus.AllMessages)
	return nil
}

// Stop signals the loop to exit and waits for it to finish.
func (p *Persister) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	slog.Info("Bus history persister stopped")
}

func (p *Persister) run(ctx context.Context, deliveries <-chan bus.Delivery) {
	defer close(p.done)

	for delivery := range deliveries {
		p.persist(ctx, delivery)
	}
}

func (p *Persister) persist(ctx context.Context, delivery bus.Delivery) {
	var env models.MessageCreated
	if err := json.Unmarshal(delivery.Data, &env); err != nil {
		decodeFailuresTotal.Inc()
		slog.Debug("Skipping undecodable bus message", "subject", delivery.Subject, "error", err)
		return
	}
	if env.Type != models.TypeMessageCreated || env.Message.ID == "" {
		decodeFailuresTotal.Inc()
		return
	}

	var ownerModule, sourceKey *string
	if ref := env.Message.ContextRef; ref != nil {
		ownerModule, sourceKey = &ref.OwnerModule, &ref.SourceKey
	}

	// The joined summary is a point-in-time denormalization for history
	// listings; live context reads still go to bus_contexts.
	tag, err := p.store.Exec(ctx,
		`INSERT INTO bus_messages (message_id, subject, received_at, context_summary_short, data)
		 VALUES ($1, $2, $3,
		     (SELECT summary_short FROM bus_contexts WHERE owner_module = $4 AND source_key = $5),
		     $6)
		 ON CONFLICT (message_id) DO NOTHING`,
		env.Message.ID, delivery.Subject, time.Now().UTC(), ownerModule, sourceKey, delivery.Data)
	if err != nil {
		insertFailuresTotal.Inc()
		slog.Error("Failed to persist bus message", "subject", delivery.Subject, "message_id", env.Message.ID, "error", err)
		return
	}

	if tag.RowsAffected() == 0 {
		duplicatesTotal.Inc()
		return
	}
	insertsTotal.Inc()
}
