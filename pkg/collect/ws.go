package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"
)

// DefaultKeepalive is the ping period for streaming transports.
const DefaultKeepalive = 20 * time.Second

// dialTimeout bounds a single connection attempt.
const dialTimeout = 15 * time.Second

// maxFrameBytes bounds a single inbound frame. Book snapshots on busy
// pairs run large.
const maxFrameBytes = 1 << 20

// ErrCircuitTripped ends an invocation whose transport kept failing.
// The scheduler marks the run as errored; the schedule itself is
// untouched.
var ErrCircuitTripped = errors.New("circuit breaker tripped")

// WSConfig configures one streaming session.
type WSConfig struct {
	URL string

	// OnConnect runs after every successful dial, typically to send
	// subscribe frames.
	OnConnect func(ctx context.Context, conn *WSConn) error

	// Keepalive is the ping period. Zero selects DefaultKeepalive.
	Keepalive time.Duration

	// MaxBackoff caps the reconnect delay. Zero selects DefaultMaxBackoff.
	MaxBackoff time.Duration

	// BreakerThreshold trips the invocation after this many consecutive
	// failed connects. Zero selects DefaultBreakerThreshold.
	BreakerThreshold int
}

// WSConn is the transport handle passed to OnConnect and used by the
// read loop.
type WSConn struct {
	conn *websocket.Conn
}

// WriteJSON marshals v and sends it as a text frame.
func (c *WSConn) WriteJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// WriteText sends a raw text frame.
func (c *WSConn) WriteText(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// RunWS drives a streaming session: dial, subscribe, feed frames to
// handler, reconnecting with backoff on drops, until the budget carried
// by ctx expires. Returns nil on budget expiry and ErrCircuitTripped
// after too many consecutive failed connects. A handler error skips the
// frame and never ends the session.
func (s *Session) RunWS(ctx context.Context, cfg WSConfig, handler func(frame []byte) error) error {
	keepalive := cfg.Keepalive
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	bo := NewBackoff(cfg.MaxBackoff)
	breaker := NewBreaker(cfg.BreakerThreshold)

	for {
		if ctx.Err() != nil {
			return budgetErr(ctx)
		}

		conn, err := dialWS(ctx, cfg.URL)
		if err != nil {
			if ctx.Err() != nil {
				return budgetErr(ctx)
			}
			tripped := breaker.Failure()
			wait := bo.NextBackOff()
			s.Bus.PublishReconnecting(breaker.Failures(), wait)
			if tripped {
				s.Log.Error("Transport failed repeatedly, circuit tripped", map[string]any{
					"url": cfg.URL, "failures": breaker.Failures(),
				})
				s.Bus.PublishDead()
				return ErrCircuitTripped
			}
			s.Log.Warn("Connect failed, backing off", map[string]any{
				"url": cfg.URL, "attempt": breaker.Failures(), "wait": wait.String(), "error": err.Error(),
			})
			if !sleepCtx(ctx, wait) {
				return budgetErr(ctx)
			}
			continue
		}

		breaker.Success()
		bo.Reset()
		wsConnectsTotal.Inc()
		ws := &WSConn{conn: conn}

		if cfg.OnConnect != nil {
			if err := cfg.OnConnect(ctx, ws); err != nil {
				_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
				if ctx.Err() != nil {
					return budgetErr(ctx)
				}
				wait := bo.NextBackOff()
				s.Bus.PublishReconnecting(0, wait)
				s.Log.Warn("Subscribe failed, reconnecting", map[string]any{
					"url": cfg.URL, "wait": wait.String(), "error": err.Error(),
				})
				if !sleepCtx(ctx, wait) {
					return budgetErr(ctx)
				}
				continue
			}
		}

		readErr := s.readFrames(ctx, ws, keepalive, handler)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		if ctx.Err() != nil {
			return budgetErr(ctx)
		}

		wait := bo.NextBackOff()
		s.Bus.PublishReconnecting(0, wait)
		s.Log.Warn("Transport dropped, reconnecting", map[string]any{
			"url": cfg.URL, "wait": wait.String(), "error": readErr.Error(),
		})
		if !sleepCtx(ctx, wait) {
			return budgetErr(ctx)
		}
	}
}

// readFrames pumps inbound frames into handler until the transport
// drops or ctx ends. The keepalive pinger shares the connection; a
// failed ping surfaces as a read error.
func (s *Session) readFrames(ctx context.Context, ws *WSConn, keepalive time.Duration, handler func([]byte) error) error {
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go func() {
		ticker := time.NewTicker(keepalive)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				pctx, cancel := context.WithTimeout(pingCtx, keepalive)
				err := ws.conn.Ping(pctx)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, frame, err := ws.conn.Read(ctx)
		if err != nil {
			return err
		}
		wsFramesTotal.Inc()
		if err := handler(frame); err != nil {
			s.Count("frames_skipped")
			s.Log.Warn("Frame handler failed, skipping frame", map[string]any{"error": err.Error()})
		}
	}
}

func dialWS(ctx context.Context, url string) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameBytes)
	return conn, nil
}

// budgetErr translates context termination: budget expiry is a normal
// end of a bounded sweep, cancellation propagates.
func budgetErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil
	}
	return ctx.Err()
}

// sleepCtx waits d or until ctx ends, reporting whether the full wait
// elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
