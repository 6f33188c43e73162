package collect

// DefaultBreakerThreshold trips a collector after this many consecutive
// failed connects.
const DefaultBreakerThreshold = 10

// Breaker counts consecutive transport failures within one invocation.
// Once tripped it stays tripped; the invocation must stop retrying and
// return. Owned by a single invocation, so no locking.
type Breaker struct {
	threshold   int
	consecutive int
	tripped     bool
}

// NewBreaker creates a breaker. threshold <= 0 selects the default.
func NewBreaker(threshold int) *Breaker {
	if threshold <= 0 {
		threshold = DefaultBreakerThreshold
	}
	return &Breaker{threshold: threshold}
}

// Failure records a failed attempt and reports whether this failure
// tripped the breaker.
func (b *Breaker) Failure() bool {
	if b.tripped {
		return false
	}
	b.consecutive++
	if b.consecutive >= b.threshold {
		b.tripped = true
		return true
	}
	return false
}

// Success resets the consecutive failure count.
func (b *Breaker) Success() {
	b.consecutive = 0
}

// Tripped reports whether the breaker has tripped.
func (b *Breaker) Tripped() bool {
	return b.tripped
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	return b.consecutive
}
