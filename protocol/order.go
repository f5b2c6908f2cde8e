package protocol

import (
	"fmt"
	"math/rand"
)

// CaptureOrder is the randomized sequence in which sites are captured.
// It is a permutation of 1..N, generated once by the coordinator and
// immutable after broadcast; CaptureOrder[step] names the site captured
// at that step.
type CaptureOrder []SiteID

// GenerateCaptureOrder produces a uniformly random permutation of 1..n
// using the supplied random engine.
func GenerateCaptureOrder(n int, rng *rand.Rand) (CaptureOrder, error) {
	if n < 1 {
		return nil, fmt.Errorf("capture order needs at least one site, got %d", n)
	}
	order := make(CaptureOrder, n)
	for i := range order {
		order[i] = SiteID(i + 1)
	}
	rng.Shuffle(n, func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order, nil
}

// Validate checks that the order is a permutation of 1..n.
func (o CaptureOrder) Validate(n int) error {
	if len(o) != n {
		return fmt.Errorf("order has %d entries, want %d", len(o), n)
	}
	seen := make(map[SiteID]bool, n)
	for step, id := range o {
		if id < 1 || int(id) > n {
			return fmt.Errorf("step %d names site %d, outside [1, %d]", step, id, n)
		}
		if seen[id] {
			return fmt.Errorf("site %d appears more than once", id)
		}
		seen[id] = true
	}
	return nil
}

// StepOf returns the step at which the given site is captured, or -1 if
// the site is not part of the order.
func (o CaptureOrder) StepOf(id SiteID) int {
	for step, s := range o {
		if s == id {
			return step
		}
	}
	return -1
}

// Clone returns an independent copy of the order.
func (o CaptureOrder) Clone() CaptureOrder {
	out := make(CaptureOrder, len(o))
	copy(out, o)
	return out
}
