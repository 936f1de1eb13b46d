package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/internal/config"
	"github.com/joshuapare/blockalloc/internal/logger"
	"github.com/joshuapare/blockalloc/pkg/harness"
)

var stressWorkers int

func init() {
	cmd := newStressCmd()
	addScenarioFlags(cmd)
	cmd.Flags().IntVarP(&stressWorkers, "workers", "w", 0, "Number of concurrent workers")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run concurrent workloads against a synchronized stack",
		Long: `The stress command runs several independent workloads at once against a
single synchronized allocator stack. Each worker has its own tracking
allocator nested under the stack's tracker and its own random seed. When all
workers are done every arena is validated.

Example:
  allocctl stress -w 8 -n 100000
  allocctl stress --lock spin --fallback 16KiB`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd.Context(), args)
		},
	}
	return cmd
}

func runStress(ctx context.Context, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if stressWorkers > 0 {
		cfg.Harness.Workers = stressWorkers
	}
	cfg.Synchronized = true

	stack, err := cfg.Build(logger.L)
	if err != nil {
		return fmt.Errorf("failed to build allocator stack: %w", err)
	}
	defer stack.Close()

	printVerbose("Starting %d workers, %d requests each\n", cfg.Harness.Workers, cfg.Harness.Requests)

	start := time.Now()
	stats, err := stress(ctx, cfg, stack)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	r := runReport{
		Seed:      cfg.Harness.Seed,
		Elapsed:   elapsed,
		Allocator: reportTracker(stack.Tracker),
		Arenas:    reportArenas(stack),
	}
	r.Harness.Workers = cfg.Harness.Workers
	for _, st := range stats {
		r.Harness.add(reportHarness(st))
	}

	if jsonOut {
		if err := printJSON(r); err != nil {
			return err
		}
	} else {
		printReport(r)
	}
	return arenaError(r.Arenas)
}

// stress runs cfg.Harness.Workers harnesses concurrently, each through its
// own child tracker. A panic in a worker, such as detected header
// corruption, is returned as that worker's error.
func stress(ctx context.Context, cfg *config.Config, stack *config.Stack) ([]harness.Stats, error) {
	set, err := alloc.ParseMetricSet(cfg.Tracking.Metrics)
	if err != nil {
		return nil, err
	}
	stats := make([]harness.Stats, cfg.Harness.Workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := range cfg.Harness.Workers {
		tracker := alloc.NewChildTracking(fmt.Sprintf("worker-%d", i), stack.Tracker, set)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker %d: %v", i, r)
				}
			}()
			rng := rand.New(rand.NewPCG(cfg.Harness.Seed, uint64(i)))
			h := harness.New(tracker, cfg.Harness.MaxAllocations).
				WithLogger(logger.L.With("worker", i))
			defer func() { stats[i] = h.Stats() }()
			defer h.Reset()

			for n := range cfg.Harness.Requests {
				if n%1024 == 0 && ctx.Err() != nil {
					return ctx.Err()
				}
				h.GenerateRequest(rng, uintptr(cfg.Harness.MaxSize))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
