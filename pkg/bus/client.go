// Package bus implements the broker layer shared by every collector:
// subject naming, the NATS connection, module-bound publishers, channel
// subscriptions, and the log stream.
//
// Delivery is at-most-once. A subscriber that cannot keep up loses its
// own pending deliveries; producers never block on slow consumers.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/feedeater/feedeater/pkg/version"
)

// subscribeBuffer bounds per-subscriber pending deliveries.
const subscribeBuffer = 256

// Client wraps the shared broker connection. Publishes are safe for
// concurrent use across modules.
type Client struct {
	conn *nats.Conn
}

// Connect dials the broker and keeps reconnecting for the life of the
// process.
func Connect(url string) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name(version.Full()),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			reconnectsTotal.Inc()
			slog.Info("Broker reconnected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("Broker disconnected", "error", err)
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				droppedDeliveriesTotal.Inc()
				slog.Warn("Broker subscription error", "subject", sub.Subject, "error", err)
				return
			}
			slog.Warn("Broker async error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	slog.Info("Broker connected", "url", url)
	return &Client{conn: conn}, nil
}

// PublishJSON marshals v and publishes it to subject. Collectors that
// treat publish failure as non-fatal should go through a Publisher.
func (c *Client) PublishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", subject, err)
	}
	if c.conn == nil {
		publishFailuresTotal.WithLabelValues(SubjectEvent(subject)).Inc()
		return fmt.Errorf("failed to publish to %s: not connected", subject)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		publishFailuresTotal.WithLabelValues(SubjectEvent(subject)).Inc()
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	publishesTotal.WithLabelValues(SubjectEvent(subject)).Inc()
	return nil
}

// Delivery is one received broker message.
type Delivery struct {
	Subject string
	Data    []byte
}

// Subscribe delivers messages matching subject (wildcards allowed)
// until ctx ends. The returned channel closes once the subscription is
// torn down.
func (c *Client) Subscribe(ctx context.Context, subject string) (<-chan Delivery, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("failed to subscribe to %s: not connected", subject)
	}
	msgs := make(chan *nats.Msg, subscribeBuffer)
	sub, err := c.conn.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	out := make(chan Delivery, subscribeBuffer)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- Delivery{Subject: msg.Subject, Data: msg.Data}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Healthy reports whether the broker connection is currently up.
func (c *Client) Healthy() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains the connection, flushing outstanding publishes and
// subscription deliveries before closing. Falls back to an immediate
// close when draining fails.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
