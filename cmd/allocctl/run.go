package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/blockalloc/internal/config"
	"github.com/joshuapare/blockalloc/internal/logger"
	"github.com/joshuapare/blockalloc/pkg/harness"
)

func init() {
	cmd := newRunCmd()
	addScenarioFlags(cmd)
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a randomized workload and report metrics",
		Long: `The run command builds the allocator stack described by the scenario,
drives it with a seeded stream of allocate, deallocate and reallocate
requests, frees everything that is still live, and reports tracking metrics
and arena statistics.

Example:
  allocctl run
  allocctl run --policy best-fit --arena-size 16KiB -n 50000
  allocctl run --config scenario.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(args)
		},
	}
	return cmd
}

func runRun(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stack, err := cfg.Build(logger.L)
	if err != nil {
		return fmt.Errorf("failed to build allocator stack: %w", err)
	}
	defer stack.Close()

	printVerbose("Running %d requests against %s\n", cfg.Harness.Requests, stack.Primary.Policy())

	r := runWorkload(cfg, stack, true)
	if jsonOut {
		return printJSON(r)
	}
	printReport(r)
	return arenaError(r.Arenas)
}

// runWorkload runs one harness over the stack. With reset set, live
// allocations are released at the end.
func runWorkload(cfg *config.Config, stack *config.Stack, reset bool) runReport {
	rng := rand.New(rand.NewPCG(cfg.Harness.Seed, 0))
	h := harness.New(stack.Allocator, cfg.Harness.MaxAllocations).WithLogger(logger.L)

	start := time.Now()
	for range cfg.Harness.Requests {
		h.GenerateRequest(rng, uintptr(cfg.Harness.MaxSize))
	}
	if reset {
		h.Reset()
	}
	elapsed := time.Since(start)

	return runReport{
		Seed:      cfg.Harness.Seed,
		Elapsed:   elapsed,
		Harness:   reportHarness(h.Stats()),
		Allocator: reportTracker(stack.Tracker),
		Arenas:    reportArenas(stack),
	}
}

func arenaError(arenas []arenaReport) error {
	for _, a := range arenas {
		if !a.Valid {
			return fmt.Errorf("arena %s failed validation: %s", a.Name, a.Error)
		}
	}
	return nil
}
