package transport

import (
	"context"
	"sync"
)

// Barrier is a reusable synchronization point for a fixed number of
// parties. Each generation releases once every party has arrived;
// the barrier then resets for the next generation.
type Barrier struct {
	mu      sync.Mutex
	parties int
	arrived int
	release chan struct{}
}

// NewBarrier creates a barrier for the given number of parties.
func NewBarrier(parties int) *Barrier {
	return &Barrier{
		parties: parties,
		release: make(chan struct{}),
	}
}

// Wait blocks until all parties have called Wait for the current
// generation, or the context ends. A context error leaves the current
// generation incomplete; the caller is expected to abandon the run.
func (b *Barrier) Wait(ctx context.Context) error {
	b.mu.Lock()
	gen := b.release
	b.arrived++
	if b.arrived == b.parties {
		b.arrived = 0
		b.release = make(chan struct{})
		close(gen)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case <-gen:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
