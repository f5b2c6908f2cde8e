package sim

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/covops/capturenet/protocol"
	"github.com/covops/capturenet/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSimConfig(n int) *protocol.SimConfig {
	cfg := protocol.DefaultSimConfig()
	cfg.Sites = n
	cfg.StepTimeout = 2 * time.Second
	return cfg
}

// stepRecorder snapshots every site's fragment count at the end of each
// capture step. The coordinator invokes the hook after the step
// barrier, so the counts are settled when it reads them.
type stepRecorder struct {
	mu    sync.Mutex
	orch  *Orchestrator
	steps []map[protocol.SiteID]int
}

func (r *stepRecorder) hook(step int, site protocol.SiteID) {
	counts := make(map[protocol.SiteID]int)
	for _, s := range r.orch.Sites() {
		counts[s.ID()] = s.FragmentCount()
	}
	r.mu.Lock()
	r.steps = append(r.steps, counts)
	r.mu.Unlock()
}

func (r *stepRecorder) snapshots() []map[protocol.SiteID]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[protocol.SiteID]int(nil), r.steps...)
}

func TestRunConvergesWithFixedOrder(t *testing.T) {
	cfg := testSimConfig(3)
	cfg.FixedOrder = protocol.CaptureOrder{2, 1, 3}

	rec := &stepRecorder{}
	orch, err := NewOrchestrator(&OrchestratorConfig{
		Sim:      cfg,
		Log:      testLogger(),
		StepHook: rec.hook,
	})
	require.NoError(t, err)
	rec.orch = orch

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Complete)
	require.Equal(t, protocol.CaptureOrder{2, 1, 3}, report.Order)
	require.Len(t, report.Results, 3)

	steps := rec.snapshots()
	require.Len(t, steps, 3)

	// After step 0 only site 2 has been captured; everyone still holds
	// just their own fragment.
	require.Equal(t, map[protocol.SiteID]int{1: 1, 2: 1, 3: 1}, steps[0])

	// After step 1 sites 1 and 2 have converged on {1,2}; site 3 is
	// untouched.
	require.Equal(t, map[protocol.SiteID]int{1: 2, 2: 2, 3: 1}, steps[1])

	// After step 2 everyone holds the complete cipher.
	require.Equal(t, map[protocol.SiteID]int{1: 3, 2: 3, 3: 3}, steps[2])

	for _, res := range report.Results {
		require.Equal(t, 3, res.Count)
		require.ElementsMatch(t, []protocol.SiteID{1, 2, 3}, keysOf(res.Fragments))
	}
}

func TestRunSingleSite(t *testing.T) {
	cfg := testSimConfig(1)

	orch, err := NewOrchestrator(&OrchestratorConfig{Sim: cfg, Log: testLogger()})
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Complete)
	require.Equal(t, protocol.CaptureOrder{1}, report.Order)
	require.Equal(t, 1, report.Results[0].Count)
}

func TestRunConvergesForRandomOrders(t *testing.T) {
	const n = 20

	for seed := int64(1); seed <= 5; seed++ {
		cfg := testSimConfig(n)
		cfg.Seed = seed

		rec := &stepRecorder{}
		orch, err := NewOrchestrator(&OrchestratorConfig{
			Sim:      cfg,
			Log:      testLogger(),
			StepHook: rec.hook,
		})
		require.NoError(t, err)
		rec.orch = orch

		report, err := orch.Run(context.Background())
		require.NoError(t, err, "seed %d", seed)
		require.True(t, report.Complete, "seed %d", seed)
		require.NoError(t, report.Order.Validate(n), "seed %d", seed)

		// Every site converged on the identical cipher.
		reference := report.Results[0].Fragments
		for _, res := range report.Results {
			require.Equal(t, n, res.Count, "seed %d site %d", seed, res.Site)
			require.Equal(t, reference, res.Fragments, "seed %d site %d", seed, res.Site)
		}

		// No site completes its cipher before the final step.
		for step, counts := range rec.snapshots() {
			for site, count := range counts {
				assert.LessOrEqual(t, count, step+1, "seed %d step %d site %d", seed, step, site)
				if step < n-1 {
					assert.Less(t, count, n, "seed %d: site %d complete before final step", seed, site)
				}
			}
		}
	}
}

func TestRunBroadcastsIdenticalOrder(t *testing.T) {
	cfg := testSimConfig(8)
	cfg.Seed = 7

	orch, err := NewOrchestrator(&OrchestratorConfig{Sim: cfg, Log: testLogger()})
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)

	for _, site := range orch.Sites() {
		require.Equal(t, report.Order, site.Order(), "site %d", site.ID())
	}
}

func TestOrchestratorIsSingleUse(t *testing.T) {
	orch, err := NewOrchestrator(&OrchestratorConfig{Sim: testSimConfig(2), Log: testLogger()})
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.Error(t, err)
}

func TestOrchestratorRejectsBadConfig(t *testing.T) {
	_, err := NewOrchestrator(nil)
	require.Error(t, err)

	cfg := testSimConfig(0)
	_, err = NewOrchestrator(&OrchestratorConfig{Sim: cfg, Log: testLogger()})
	require.Error(t, err)

	cfg = testSimConfig(3)
	cfg.FixedOrder = protocol.CaptureOrder{1, 1, 2}
	_, err = NewOrchestrator(&OrchestratorConfig{Sim: cfg, Log: testLogger()})
	require.Error(t, err)
}

// TestCoordinatorTimesOutOnSilentSite wires a run where one site is
// never started. The coordinator must report a timeout within the
// configured window instead of hanging every process forever.
func TestCoordinatorTimesOutOnSilentSite(t *testing.T) {
	const n = 3
	cfg := testSimConfig(n)
	cfg.StepTimeout = 100 * time.Millisecond
	cfg.FixedOrder = protocol.CaptureOrder{1, 2, 3}

	bus := transport.NewChanBus(n + 1)
	gen := protocol.NewGenerator(cfg.FragmentBase, cfg.FragmentSpan)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Site 1 is never started; it is captured first and stays silent.
	var wg sync.WaitGroup
	for i := 2; i <= n; i++ {
		site := NewSite(protocol.SiteID(i), bus, gen, testLogger())
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = site.Run(ctx)
		}()
	}

	coord := NewCoordinator(cfg, bus, testLogger(), nil)

	start := time.Now()
	_, err := coord.Run(ctx)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, elapsed, 2*time.Second, "timeout must fire promptly")

	// Tear down the surviving sites the way the orchestrator would.
	cancel()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("surviving sites did not unblock after cancellation")
	}
}

func TestSiteExitsOnAbort(t *testing.T) {
	bus := transport.NewChanBus(2)
	gen := protocol.NewGenerator(1000, 1000)
	site := NewSite(1, bus, gen, testLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- site.Run(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, bus.Send(ctx, 1, protocol.ControlTag, protocol.CaptureOrderMsg{Order: protocol.CaptureOrder{1}}))
	require.NoError(t, bus.Send(ctx, 1, protocol.ControlTag, protocol.AbortMsg{Reason: "test abort"}))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrAborted)
	case <-time.After(2 * time.Second):
		t.Fatal("site did not exit on abort")
	}
}

func TestSiteRejectsOutOfSequenceStep(t *testing.T) {
	bus := transport.NewChanBus(2)
	gen := protocol.NewGenerator(1000, 1000)
	site := NewSite(1, bus, gen, testLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- site.Run(context.Background()) }()

	ctx := context.Background()
	require.NoError(t, bus.Send(ctx, 1, protocol.ControlTag, protocol.CaptureOrderMsg{Order: protocol.CaptureOrder{1}}))
	require.NoError(t, bus.Send(ctx, 1, protocol.ControlTag, protocol.CaptureStepMsg{Step: 5, Site: 1}))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrProtocol)
	case <-time.After(2 * time.Second):
		t.Fatal("site did not reject the out-of-sequence step")
	}
}

func keysOf(m map[protocol.SiteID]protocol.Fragment) []protocol.SiteID {
	out := make([]protocol.SiteID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
