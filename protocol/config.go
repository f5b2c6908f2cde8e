package protocol

import (
	"fmt"
	"time"
)

// Default fragment band, matching the historical simulation: fragments
// land in [1000, 2000).
const (
	DefaultFragmentBase = 1000
	DefaultFragmentSpan = 1000
)

// SimConfig contains protocol parameters shared by the coordinator and
// every site for one simulation run.
type SimConfig struct {
	// Sites is the number of capturable sites (N). The run needs exactly
	// Sites+1 participants: the sites plus one coordinator.
	Sites int

	// StepTimeout bounds every blocking receive and barrier wait on the
	// coordinator. A peer that does not respond within this window aborts
	// the whole run instead of deadlocking it.
	StepTimeout time.Duration

	// Seed seeds the capture-order shuffle. Zero selects wall-clock
	// entropy; a fixed value makes the order reproducible.
	Seed int64

	// FixedOrder overrides the random capture order when non-empty.
	// Must be a permutation of 1..Sites. Used by tests and demos.
	FixedOrder CaptureOrder

	// FragmentBase and FragmentSpan bound generated fragment values to
	// [FragmentBase, FragmentBase+FragmentSpan).
	FragmentBase int
	FragmentSpan int
}

// DefaultSimConfig returns a config suitable for a small demo run.
func DefaultSimConfig() *SimConfig {
	return &SimConfig{
		Sites:        8,
		StepTimeout:  5 * time.Second,
		FragmentBase: DefaultFragmentBase,
		FragmentSpan: DefaultFragmentSpan,
	}
}

// Validate checks the config for values the protocol cannot run with.
func (c *SimConfig) Validate() error {
	if c.Sites < 1 {
		return fmt.Errorf("sites must be >= 1, got %d", c.Sites)
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("step timeout must be positive, got %s", c.StepTimeout)
	}
	if c.FragmentSpan < 1 {
		return fmt.Errorf("fragment span must be >= 1, got %d", c.FragmentSpan)
	}
	if len(c.FixedOrder) > 0 {
		if err := c.FixedOrder.Validate(c.Sites); err != nil {
			return fmt.Errorf("fixed order: %w", err)
		}
	}
	return nil
}
