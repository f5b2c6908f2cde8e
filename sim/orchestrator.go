package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/covops/capturenet/protocol"
	"github.com/covops/capturenet/transport"

	"go.uber.org/atomic"
)

// OrchestratorConfig configures one simulation deployment.
type OrchestratorConfig struct {
	// Sim is the shared protocol configuration.
	Sim *protocol.SimConfig

	// Log receives structured run events. Defaults to slog.Default().
	Log *slog.Logger

	// StepHook, when set, observes the end of every capture step.
	StepHook StepHook
}

// Orchestrator deploys one coordinator plus N site goroutines over an
// in-process bus, runs the protocol to completion and returns the run
// report. An orchestrator is single-use.
type Orchestrator struct {
	cfg     *OrchestratorConfig
	log     *slog.Logger
	started *atomic.Bool

	mu    sync.Mutex
	sites []*Site
}

// NewOrchestrator validates the configuration and creates a deployment.
// The run needs exactly Sim.Sites+1 concurrent participants; anything
// else is a configuration error and fails fast here.
func NewOrchestrator(cfg *OrchestratorConfig) (*Orchestrator, error) {
	if cfg == nil || cfg.Sim == nil {
		return nil, errors.New("orchestrator: sim config is required")
	}
	if err := cfg.Sim.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator config: %w", err)
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		cfg:     cfg,
		log:     log,
		started: atomic.NewBool(false),
	}, nil
}

// Run deploys all participants and executes the protocol. It returns
// the coordinator's report; a nil report with an error means the run
// aborted before validation.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	if o.started.Swap(true) {
		return nil, errors.New("orchestrator: already run")
	}

	n := o.cfg.Sim.Sites
	bus := transport.NewChanBus(n + 1)
	gen := protocol.NewGenerator(o.cfg.Sim.FragmentBase, o.cfg.Sim.FragmentSpan)

	o.log.Info("deploying simulation", "sites", n, "participants", n+1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	siteErrs := make([]error, n)
	var wg sync.WaitGroup

	o.mu.Lock()
	for i := 1; i <= n; i++ {
		site := NewSite(protocol.SiteID(i), bus, gen, o.log.With("role", "site", "site", i))
		o.sites = append(o.sites, site)

		wg.Add(1)
		go func(idx int, s *Site) {
			defer wg.Done()
			siteErrs[idx] = s.Run(runCtx)
		}(i-1, site)
	}
	o.mu.Unlock()

	coord := NewCoordinator(o.cfg.Sim, bus, o.log.With("role", "coordinator"), o.cfg.StepHook)
	report, err := coord.Run(runCtx)

	// Unblock anything still waiting, then reap the site goroutines.
	cancel()
	wg.Wait()
	bus.Close()

	if err != nil {
		return nil, err
	}
	if joined := errors.Join(siteErrs...); joined != nil {
		return report, fmt.Errorf("site failures: %w", joined)
	}
	return report, nil
}

// Sites returns the deployed site processes for inspection. Only their
// mutex-guarded accessors are safe to call while a run is in flight.
func (o *Orchestrator) Sites() []*Site {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Site, len(o.sites))
	copy(out, o.sites)
	return out
}
