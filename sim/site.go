package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/covops/capturenet/protocol"
	"github.com/covops/capturenet/transport"
)

// Site is one capturable participant. It owns exactly one fragment of
// its own, accumulates fragments relayed to it by the coordinator, and
// never fabricates or drops any. All of its state exchange goes through
// the bus; nothing reads or writes Site fields across goroutines except
// the snapshot accessors, which take the mutex.
type Site struct {
	id  protocol.SiteID
	bus transport.Bus
	log *slog.Logger

	mu         sync.Mutex
	fragments  *protocol.FragmentSet
	order      protocol.CaptureOrder
	capturedAt int
}

// NewSite creates a site holding its freshly generated own fragment.
func NewSite(id protocol.SiteID, bus transport.Bus, gen *protocol.Generator, log *slog.Logger) *Site {
	fragments := protocol.NewFragmentSet()
	fragments.Merge(id, gen.Generate(int(id)))

	return &Site{
		id:         id,
		bus:        bus,
		log:        log,
		fragments:  fragments,
		capturedAt: -1,
	}
}

// ID returns the site's identity.
func (s *Site) ID() protocol.SiteID { return s.id }

func (s *Site) addr() transport.ID { return transport.SiteAddr(s.id) }

// Run participates in one simulation: it receives the capture order,
// then dispatches coordinator announcements until terminated or aborted.
func (s *Site) Run(ctx context.Context) error {
	msg, err := s.bus.Receive(ctx, s.addr(), protocol.ControlTag)
	if err != nil {
		return fmt.Errorf("await capture order: %w", err)
	}
	orderMsg, ok := msg.(protocol.CaptureOrderMsg)
	if !ok {
		return fmt.Errorf("%w: want capture order, got %T", ErrProtocol, msg)
	}

	s.mu.Lock()
	s.order = orderMsg.Order.Clone()
	s.mu.Unlock()
	s.log.Debug("received capture order", "order", orderMsg.Order)

	next := 0
	for {
		msg, err := s.bus.Receive(ctx, s.addr(), protocol.ControlTag)
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case protocol.CaptureStepMsg:
			if m.Step != next {
				return fmt.Errorf("%w: step %d announced, expected %d", ErrProtocol, m.Step, next)
			}
			if err := s.handleStep(ctx, m); err != nil {
				return err
			}
			next++

		case protocol.TerminateMsg:
			return s.report(ctx)

		case protocol.AbortMsg:
			s.log.Warn("run aborted by coordinator", "reason", m.Reason)
			return fmt.Errorf("%w: %s", ErrAborted, m.Reason)

		default:
			return fmt.Errorf("%w: unexpected control message %T", ErrProtocol, msg)
		}
	}
}

// handleStep processes one capture announcement. The site reacts in one
// of three ways: it is the site captured this step, it was captured
// earlier and receives the new fragment, or its own capture is still
// ahead and nothing is addressed to it. Every path joins the step
// barrier.
func (s *Site) handleStep(ctx context.Context, m protocol.CaptureStepMsg) error {
	switch {
	case m.Site == s.id:
		if err := s.handleOwnCapture(ctx, m.Step); err != nil {
			return err
		}

	case s.isCaptured():
		msg, err := s.bus.Receive(ctx, s.addr(), protocol.Tag{Kind: protocol.KindRelay, Step: m.Step})
		if err != nil {
			return fmt.Errorf("await relay for step %d: %w", m.Step, err)
		}
		relay, ok := msg.(protocol.FragmentRelayMsg)
		if !ok {
			return fmt.Errorf("%w: want fragment relay, got %T", ErrProtocol, msg)
		}
		if relay.Step != m.Step || relay.Origin != m.Site {
			return fmt.Errorf("%w: relay from site %d step %d during step %d capture of site %d",
				ErrProtocol, relay.Origin, relay.Step, m.Step, m.Site)
		}
		s.merge(map[protocol.SiteID]protocol.Fragment{relay.Origin: relay.Fragment})

	default:
		// Not captured yet; the coordinator relays nothing to us.
	}

	return s.bus.Barrier(ctx)
}

// handleOwnCapture contributes the site's fragment and absorbs the
// union of everything the previously captured sites hold, bringing this
// site level with its peers in one exchange.
func (s *Site) handleOwnCapture(ctx context.Context, step int) error {
	s.log.Info("captured", "step", step)

	own, _ := s.ownFragment()
	offer := protocol.FragmentOfferMsg{Site: s.id, Step: step, Fragment: own}
	if err := s.bus.Send(ctx, transport.CoordinatorID, protocol.Tag{Kind: protocol.KindOffer, Step: step}, offer); err != nil {
		return fmt.Errorf("offer fragment: %w", err)
	}

	msg, err := s.bus.Receive(ctx, s.addr(), protocol.Tag{Kind: protocol.KindComplement, Step: step})
	if err != nil {
		return fmt.Errorf("await complement for step %d: %w", step, err)
	}
	comp, ok := msg.(protocol.ComplementMsg)
	if !ok {
		return fmt.Errorf("%w: want complement, got %T", ErrProtocol, msg)
	}
	if comp.Step != step {
		return fmt.Errorf("%w: complement for step %d during step %d", ErrProtocol, comp.Step, step)
	}

	s.merge(comp.Fragments)

	s.mu.Lock()
	s.capturedAt = step
	s.mu.Unlock()
	return nil
}

// report answers the terminate announcement with the site's final
// fragment inventory.
func (s *Site) report(ctx context.Context) error {
	snap := s.Fragments()
	s.log.Info("reporting cipher", "fragments", len(snap))

	msg := protocol.FragmentReportMsg{Site: s.id, Count: len(snap), Fragments: snap}
	if err := s.bus.Send(ctx, transport.CoordinatorID, protocol.Tag{Kind: protocol.KindReport}, msg); err != nil {
		return fmt.Errorf("report fragment count: %w", err)
	}
	return nil
}

func (s *Site) merge(parts map[protocol.SiteID]protocol.Fragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments.MergeAll(parts)
}

func (s *Site) ownFragment() (protocol.Fragment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragments.Get(s.id)
}

func (s *Site) isCaptured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturedAt >= 0
}

// CapturedAt returns the step this site was captured at, or -1.
func (s *Site) CapturedAt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturedAt
}

// FragmentCount returns the number of fragments currently held.
func (s *Site) FragmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragments.Len()
}

// Fragments returns a copy of the fragments currently held.
func (s *Site) Fragments() map[protocol.SiteID]protocol.Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragments.Snapshot()
}

// Order returns the capture order this site received, or nil before the
// broadcast arrived.
func (s *Site) Order() protocol.CaptureOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Clone()
}
