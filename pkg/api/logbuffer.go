package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/feedeater/feedeater/pkg/bus"
)

// DefaultLogBufferSize is how many recent log frames the SSE bridge
// replays to a newly connected client.
const DefaultLogBufferSize = 500

// LogBuffer retains the most recent log frames published on the bus so
// the log SSE bridge can prepend them on connect. Logs are not
// persisted anywhere else; this ring is the only replay source.
type LogBuffer struct {
	client *bus.Client
	size   int

	mu     sync.Mutex
	frames []bus.Delivery
	next   int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewLogBuffer creates a buffer retaining up to size frames. Size zero
// or below falls back to DefaultLogBufferSize.
func NewLogBuffer(client *bus.Client, size int) *LogBuffer {
	if size <= 0 {
		size = DefaultLogBufferSize
	}
	return &LogBuffer{client: client, size: size}
}

// Start subscribes to the fleet's log subjects and begins retaining
// frames until Stop is called or ctx ends.
func (b *LogBuffer) Start(ctx context.Context) error {
	if b.cancel != nil {
		return fmt.Errorf("log buffer already started")
	}
	runCtx, cancel := context.WithCancel(ctx)

	deliveries, err := b.client.Subscribe(runCtx, bus.AllLogs)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe log buffer: %w", err)
	}

	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(deliveries)
	return nil
}

// Stop tears down the subscription and waits for the retention loop to
// exit.
func (b *LogBuffer) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.cancel = nil
}

func (b *LogBuffer) run(deliveries <-chan bus.Delivery) {
	defer close(b.done)
	for d := range deliveries {
		b.add(d)
	}
}

func (b *LogBuffer) add(d bus.Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) < b.size {
		b.frames = append(b.frames, d)
		return
	}
	b.frames[b.next] = d
	b.next = (b.next + 1) % b.size
}

// Recent returns the retained frames, oldest first.
func (b *LogBuffer) Recent() []bus.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]bus.Delivery, 0, len(b.frames))
	out = append(out, b.frames[b.next:]...)
	out = append(out, b.frames[:b.next]...)
	return out
}
