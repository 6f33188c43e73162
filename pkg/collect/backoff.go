package collect

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxBackoff caps the reconnect delay unless a module overrides it.
const DefaultMaxBackoff = 30 * time.Second

// NewBackoff returns the reconnect schedule shared by every collector:
// 1s initial delay, doubled per failure, capped at maxInterval, no
// jitter, never expiring on elapsed time. Reset() after a successful
// connect restores the 1s delay.
func NewBackoff(maxInterval time.Duration) *backoff.ExponentialBackOff {
	if maxInterval <= 0 {
		maxInterval = DefaultMaxBackoff
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = maxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
