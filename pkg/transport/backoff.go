package transport

import (
	"math/rand"
	"sync"
	"time"
)

// JitterFactor is the maximum jitter as a fraction of the base delay,
// matching the teacher stack's reconnection jitter ratio.
const JitterFactor = 0.25

// Backoff adds bounded random jitter to a base delay. Unlike a full
// exponential backoff calculator, §4.1 already fixes the per-class
// delay; Backoff only prevents many long-lived keep_connection
// clients from retrying in lockstep against the same unreachable lock.
type Backoff struct {
	mu     sync.Mutex
	jitter float64
	rng    *rand.Rand
}

// NewBackoff creates a jitter source with the default jitter factor.
func NewBackoff() *Backoff {
	return &Backoff{
		jitter: JitterFactor,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Jitter returns a random extra delay in [0, base*JitterFactor).
func (b *Backoff) Jitter(base time.Duration) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Duration(float64(base) * b.jitter * b.rng.Float64())
}
