package bus

import (
	"log/slog"
	"time"

	"github.com/feedeater/feedeater/pkg/models"
)

// Publisher publishes one module's envelopes. Failures are logged and
// counted but never propagate into the collector's event loop.
type Publisher struct {
	client *Client
	module string
}

// Publisher binds a publisher to a module name. Every message envelope
// it publishes must carry that name as source.module.
func (c *Client) Publisher(module string) *Publisher {
	return &Publisher{client: c, module: module}
}

// Module returns the bound module name.
func (p *Publisher) Module() string {
	return p.module
}

// PublishMessage validates msg and publishes its MessageCreated
// envelope. Returns false when the envelope was rejected or the publish
// failed.
func (p *Publisher) PublishMessage(msg models.Message) bool {
	if err := msg.Validate(p.module); err != nil {
		slog.Error("Dropping invalid message envelope", "module", p.module, "error", err)
		return false
	}
	return p.publish(EventMessageCreated, models.NewMessageCreated(msg))
}

// PublishContext publishes a ContextUpdated envelope, enforcing the
// summaryShort cap.
func (p *Publisher) PublishContext(env models.ContextUpdated) bool {
	env.Context.SummaryShort = models.TruncateSummary(env.Context.SummaryShort)
	return p.publish(EventContextUpdated, env)
}

// PublishEvent publishes a module-domain event such as tradeExecuted or
// orderbookSnapshot.
func (p *Publisher) PublishEvent(event string, v any) bool {
	return p.publish(event, v)
}

// PublishReconnecting announces a transport drop and the wait before
// the next attempt.
func (p *Publisher) PublishReconnecting(attempt int, wait time.Duration) {
	p.publish(EventReconnecting, models.Reconnecting{
		Module:      p.module,
		At:          time.Now().UTC(),
		Attempt:     attempt,
		WaitSeconds: wait.Seconds(),
	})
}

// PublishDead announces a tripped circuit breaker on the dead-module
// subject.
func (p *Publisher) PublishDead() {
	dead := models.ModuleDead{Module: p.module, At: time.Now().UTC()}
	if err := p.client.PublishJSON(DeadSubject(p.module), dead); err != nil {
		slog.Error("Failed to publish dead-module notification", "module", p.module, "error", err)
	}
}

func (p *Publisher) publish(event string, v any) bool {
	if err := p.client.PublishJSON(Subject(p.module, event), v); err != nil {
		slog.Warn("Broker publish failed", "module", p.module, "event", event, "error", err)
		return false
	}
	return true
}
