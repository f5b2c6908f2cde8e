package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/covops/capturenet/protocol"
	"github.com/covops/capturenet/transport"

	"github.com/google/uuid"
)

// StepHook observes the end of each capture step, after every
// participant has passed the step barrier. Used by tests and progress
// reporting; must not block.
type StepHook func(step int, site protocol.SiteID)

// Coordinator owns global sequencing for one run: it generates and
// broadcasts the capture order, drives the N capture steps, relays
// fragments between sites, terminates the run and validates the
// outcome. The captured set and the central fragment ledger are local
// state of the coordinator's single goroutine; sites never query them
// directly.
//
// All fragment relay is routed through the coordinator (hub and spoke).
// That is a deliberate centralization choice: it keeps step ordering
// trivial to reason about at the cost of making the coordinator a
// bottleneck for very large N.
type Coordinator struct {
	cfg  *protocol.SimConfig
	bus  transport.Bus
	log  *slog.Logger
	rng  *rand.Rand
	hook StepHook

	order    protocol.CaptureOrder
	captured []protocol.SiteID
	ledger   *protocol.FragmentSet
}

// NewCoordinator creates a coordinator for one run over the given bus.
func NewCoordinator(cfg *protocol.SimConfig, bus transport.Bus, log *slog.Logger, hook StepHook) *Coordinator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Coordinator{
		cfg:    cfg,
		bus:    bus,
		log:    log,
		rng:    rand.New(rand.NewSource(seed)),
		hook:   hook,
		ledger: protocol.NewFragmentSet(),
	}
}

// Run executes the whole protocol: order broadcast, N capture steps,
// termination and validation. Any failure aborts the run for every
// site before returning.
func (c *Coordinator) Run(ctx context.Context) (report *RunReport, err error) {
	defer func() {
		if err != nil {
			c.abort(err)
		}
	}()

	startedAt := time.Now()

	if err := c.prepareOrder(); err != nil {
		return nil, err
	}
	c.log.Info("capture order decided", "order", c.order)

	if err := c.bus.Broadcast(ctx, transport.CoordinatorID, protocol.CaptureOrderMsg{Order: c.order}); err != nil {
		return nil, fmt.Errorf("broadcast capture order: %w", err)
	}

	for step := range c.order {
		if err := c.runStep(ctx, step); err != nil {
			return nil, err
		}
	}

	if err := c.bus.Broadcast(ctx, transport.CoordinatorID, protocol.TerminateMsg{}); err != nil {
		return nil, fmt.Errorf("broadcast terminate: %w", err)
	}

	results, complete, err := c.validate(ctx)
	if err != nil {
		return nil, err
	}

	report = &RunReport{
		RunID:      uuid.NewString(),
		Sites:      c.cfg.Sites,
		Order:      c.order.Clone(),
		Results:    results,
		Complete:   complete,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	c.log.Info("simulation finished", "run_id", report.RunID, "complete", complete,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

func (c *Coordinator) prepareOrder() error {
	if len(c.cfg.FixedOrder) > 0 {
		if err := c.cfg.FixedOrder.Validate(c.cfg.Sites); err != nil {
			return fmt.Errorf("fixed capture order: %w", err)
		}
		c.order = c.cfg.FixedOrder.Clone()
		return nil
	}

	order, err := protocol.GenerateCaptureOrder(c.cfg.Sites, c.rng)
	if err != nil {
		return err
	}
	c.order = order
	return nil
}

// runStep captures one site: announce, collect its fragment, relay the
// fragment to every previously captured site, push the complement to
// the new site, then barrier so the step is fully settled everywhere
// before the next one starts.
func (c *Coordinator) runStep(ctx context.Context, step int) error {
	site := c.order[step]
	c.log.Info("capturing site", "step", step, "site", site)

	announce := protocol.CaptureStepMsg{Step: step, Site: site}
	if err := c.bus.Broadcast(ctx, transport.CoordinatorID, announce); err != nil {
		return fmt.Errorf("announce step %d: %w", step, err)
	}

	msg, err := c.receive(ctx, protocol.Tag{Kind: protocol.KindOffer, Step: step})
	if err != nil {
		return fmt.Errorf("collect fragment from site %d: %w", site, err)
	}
	offer, ok := msg.(protocol.FragmentOfferMsg)
	if !ok {
		return fmt.Errorf("%w: want fragment offer, got %T", ErrProtocol, msg)
	}
	if offer.Site != site || offer.Step != step {
		return fmt.Errorf("%w: offer from site %d for step %d, want site %d step %d",
			ErrProtocol, offer.Site, offer.Step, site, step)
	}
	c.log.Info("fragment collected", "step", step, "site", site, "fragment", offer.Fragment)

	relay := protocol.FragmentRelayMsg{Origin: site, Step: step, Fragment: offer.Fragment}
	for _, prev := range c.captured {
		tag := protocol.Tag{Kind: protocol.KindRelay, Step: step}
		if err := c.bus.Send(ctx, transport.SiteAddr(prev), tag, relay); err != nil {
			return fmt.Errorf("relay fragment to site %d: %w", prev, err)
		}
	}

	complement := protocol.ComplementMsg{Step: step, Fragments: c.ledger.Snapshot()}
	tag := protocol.Tag{Kind: protocol.KindComplement, Step: step}
	if err := c.bus.Send(ctx, transport.SiteAddr(site), tag, complement); err != nil {
		return fmt.Errorf("send complement to site %d: %w", site, err)
	}

	c.ledger.Merge(site, offer.Fragment)
	c.captured = append(c.captured, site)

	bctx, cancel := context.WithTimeout(ctx, c.cfg.StepTimeout)
	err = c.bus.Barrier(bctx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("step %d barrier: %w", step, ErrTimeout)
		}
		return fmt.Errorf("step %d barrier: %w", step, err)
	}

	if c.hook != nil {
		c.hook(step, site)
	}
	return nil
}

// validate collects one report per site and checks that every site ended
// up holding exactly one fragment per site, matching the central ledger.
func (c *Coordinator) validate(ctx context.Context) ([]SiteResult, bool, error) {
	bySite := make(map[protocol.SiteID]SiteResult, c.cfg.Sites)
	for i := 0; i < c.cfg.Sites; i++ {
		msg, err := c.receive(ctx, protocol.Tag{Kind: protocol.KindReport})
		if err != nil {
			return nil, false, fmt.Errorf("collect report %d of %d: %w", i+1, c.cfg.Sites, err)
		}
		rep, ok := msg.(protocol.FragmentReportMsg)
		if !ok {
			return nil, false, fmt.Errorf("%w: want fragment report, got %T", ErrProtocol, msg)
		}
		if _, dup := bySite[rep.Site]; dup {
			return nil, false, fmt.Errorf("%w: duplicate report from site %d", ErrProtocol, rep.Site)
		}
		bySite[rep.Site] = SiteResult{
			Site:      rep.Site,
			Count:     rep.Count,
			Fragments: rep.Fragments,
			Complete:  c.completeReport(rep),
		}
	}

	results := make([]SiteResult, 0, len(bySite))
	for _, res := range bySite {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Site < results[j].Site })

	complete := true
	for _, res := range results {
		if !res.Complete {
			complete = false
			c.log.Warn("incomplete cipher", "site", res.Site, "fragments", res.Count, "want", c.cfg.Sites)
		}
	}
	return results, complete, nil
}

// completeReport checks a report against the central ledger: right
// count, and the exact fragment recorded for every site.
func (c *Coordinator) completeReport(rep protocol.FragmentReportMsg) bool {
	if rep.Count != c.cfg.Sites || len(rep.Fragments) != c.cfg.Sites {
		return false
	}
	for id, f := range rep.Fragments {
		want, ok := c.ledger.Get(id)
		if !ok || want != f {
			return false
		}
	}
	return true
}

// receive wraps a blocking receive in the step timeout so an
// unresponsive peer surfaces as ErrTimeout instead of a deadlock.
func (c *Coordinator) receive(ctx context.Context, tag protocol.Tag) (protocol.Message, error) {
	rctx, cancel := context.WithTimeout(ctx, c.cfg.StepTimeout)
	defer cancel()

	msg, err := c.bus.Receive(rctx, transport.CoordinatorID, tag)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.cfg.StepTimeout)
		}
		return nil, err
	}
	return msg, nil
}

// abort broadcasts an abort announcement so no site stays blocked after
// a coordinator-detected failure. Best effort on a fresh deadline: the
// run context may already be dead.
func (c *Coordinator) abort(cause error) {
	c.log.Error("aborting run", "err", cause)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.bus.Broadcast(ctx, transport.CoordinatorID, protocol.AbortMsg{Reason: cause.Error()}); err != nil {
		c.log.Error("abort broadcast failed", "err", err)
	}
}
