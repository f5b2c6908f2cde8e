// Command capture-sim runs the covert-operation capture simulation: N
// city sites are captured one at a time in a randomized order, each
// contributing one cipher fragment, and the run succeeds when every
// captured site ends up holding the complete cipher.
//
// # Configuration File
//
// Create a YAML file with simulator settings:
//
//	cities: 8
//	step_timeout: 5s
//	seed: 0               # 0 = wall-clock entropy
//	listen_addr: ":8080"  # empty disables the status server
//	json_logs: false
//	verbose: false
//
// # Usage
//
//	go run ./cmd/capture-sim --cities=12
//	go run ./cmd/capture-sim --config=sim.yaml --serve
//
// The process exits 0 when validation succeeds (every site holds all N
// fragments) and 1 when validation fails or the run aborts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/covops/capturenet/api/httpserver"
	"github.com/covops/capturenet/cmd/common"
	"github.com/covops/capturenet/sim"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		cities      = flag.Int("cities", 0, "Number of cities to capture")
		stepTimeout = flag.Duration("step-timeout", 0, "Per-step liveness timeout")
		seed        = flag.Int64("seed", 0, "Capture-order seed (0 = entropy)")
		addr        = flag.String("addr", "", "Status server listen address (empty disables)")
		serve       = flag.Bool("serve", false, "Keep serving status after the run until interrupted")
		jsonLogs    = flag.Bool("json-logs", false, "Log in JSON instead of text")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	applyFlagOverrides(cfg, *cities, *stepTimeout, *seed, *addr, *jsonLogs, *verbose)

	log := common.NewLogger(cfg.JSONLogs, cfg.Verbose)
	cfg.Cities = common.ClampCities(cfg.Cities, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	if err := run(ctx, cfg, *serve, log); err != nil {
		if ctx.Err() != nil {
			return
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	return common.DefaultConfig(), nil
}

func applyFlagOverrides(cfg *common.Config, cities int, stepTimeout time.Duration,
	seed int64, addr string, jsonLogs, verbose bool) {

	if cities != 0 {
		cfg.Cities = cities
	}
	if stepTimeout != 0 {
		cfg.StepTimeout = common.Duration(stepTimeout)
	}
	if seed != 0 {
		cfg.Seed = seed
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}
	if jsonLogs {
		cfg.JSONLogs = true
	}
	if verbose {
		cfg.Verbose = true
	}
}

func run(ctx context.Context, cfg *common.Config, serve bool, log *slog.Logger) error {
	status := httpserver.NewStatusHandler()

	var statusSrv *httpserver.Server
	if cfg.ListenAddr != "" {
		statusSrv = httpserver.New(&httpserver.HTTPServerConfig{
			ListenAddr:               cfg.ListenAddr,
			Log:                      log,
			GracefulShutdownDuration: 5 * time.Second,
			ReadTimeout:              15 * time.Second,
			WriteTimeout:             15 * time.Second,
		}, status)
		statusSrv.RunInBackground()
		defer statusSrv.Shutdown()
	}

	orch, err := sim.NewOrchestrator(&sim.OrchestratorConfig{
		Sim: cfg.SimConfig(),
		Log: log,
	})
	if err != nil {
		return err
	}

	status.SetRunning()
	report, runErr := orch.Run(ctx)
	status.Publish(report, runErr)

	if runErr != nil {
		return fmt.Errorf("simulation: %w", runErr)
	}

	printResults(report)

	if serve && statusSrv != nil {
		fmt.Printf("Serving run report on %s until interrupted\n", cfg.ListenAddr)
		<-ctx.Done()
	}

	if !report.Complete {
		return fmt.Errorf("validation failed: not every site holds the complete cipher")
	}
	return nil
}

func printResults(report *sim.RunReport) {
	fmt.Printf("\n=== Capture Simulation %s ===\n", report.RunID)
	fmt.Printf("Cities: %d, capture order: %v, duration: %s\n",
		report.Sites, report.Order, report.Duration().Round(time.Millisecond))

	results := append([]sim.SiteResult(nil), report.Results...)
	sort.Slice(results, func(i, j int) bool { return results[i].Site < results[j].Site })
	for _, res := range results {
		state := "complete"
		if !res.Complete {
			state = "INCOMPLETE"
		}
		fmt.Printf("  city %2d: %d/%d fragments (%s)\n", res.Site, res.Count, report.Sites, state)
	}

	if report.Complete {
		fmt.Println("All cities hold the complete cipher.")
	} else {
		fmt.Println("Validation FAILED: some cities are missing fragments.")
	}
}
