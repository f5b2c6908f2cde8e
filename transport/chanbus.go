package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/covops/capturenet/protocol"

	"go.uber.org/atomic"
)

// ChanBus is an in-process Bus implementation backed by Go channels.
// One buffered channel exists per (receiver, tag) pair, created lazily;
// channel FIFO order gives the per-triple delivery guarantee directly.
//
// Participants are addressed 0..parties-1, with the coordinator at 0.
type ChanBus struct {
	parties  int
	capacity int
	barrier  *Barrier
	closed   *atomic.Bool

	mu     sync.Mutex
	queues map[queueKey]chan protocol.Message
}

type queueKey struct {
	to  ID
	tag protocol.Tag
}

// NewChanBus creates a bus for the given number of participants
// (sites plus coordinator).
func NewChanBus(parties int) *ChanBus {
	// The control queue sees one order, one announcement per step and a
	// terminate or abort per run; 4x the party count leaves headroom so
	// the coordinator never blocks on a site that has already exited.
	capacity := 4 * parties
	if capacity < 8 {
		capacity = 8
	}
	return &ChanBus{
		parties:  parties,
		capacity: capacity,
		barrier:  NewBarrier(parties),
		closed:   atomic.NewBool(false),
		queues:   make(map[queueKey]chan protocol.Message),
	}
}

// Parties returns the number of participants on the bus.
func (b *ChanBus) Parties() int { return b.parties }

func (b *ChanBus) queue(to ID, tag protocol.Tag) chan protocol.Message {
	key := queueKey{to: to, tag: tag}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[key]
	if !ok {
		q = make(chan protocol.Message, b.capacity)
		b.queues[key] = q
	}
	return q
}

// Send delivers msg to the participant addressed by to under tag.
func (b *ChanBus) Send(ctx context.Context, to ID, tag protocol.Tag, msg protocol.Message) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if to < 0 || int(to) >= b.parties {
		return fmt.Errorf("%w: %d", ErrUnknownParticipant, to)
	}

	select {
	case b.queue(to, tag) <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send to %d tag %v: %w", to, tag, ctx.Err())
	}
}

// Broadcast delivers msg to every participant except the sender under
// the control tag.
func (b *ChanBus) Broadcast(ctx context.Context, from ID, msg protocol.Message) error {
	for to := ID(0); int(to) < b.parties; to++ {
		if to == from {
			continue
		}
		if err := b.Send(ctx, to, protocol.ControlTag, msg); err != nil {
			return fmt.Errorf("broadcast: %w", err)
		}
	}
	return nil
}

// Receive blocks until a message tagged tag arrives for self, or the
// context ends.
func (b *ChanBus) Receive(ctx context.Context, self ID, tag protocol.Tag) (protocol.Message, error) {
	if self < 0 || int(self) >= b.parties {
		return nil, fmt.Errorf("%w: %d", ErrUnknownParticipant, self)
	}

	select {
	case msg := <-b.queue(self, tag):
		return msg, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("receive tag %v: %w", tag, ctx.Err())
	}
}

// Barrier blocks until every participant has arrived at the current
// synchronization point.
func (b *ChanBus) Barrier(ctx context.Context) error {
	return b.barrier.Wait(ctx)
}

// Close marks the bus as shut down. Pending receives are not woken;
// callers are expected to cancel their contexts alongside.
func (b *ChanBus) Close() {
	b.closed.Store(true)
}
