package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/joshuapare/blockalloc/alloc/allocprom"
	"github.com/joshuapare/blockalloc/alloc/block"
	"github.com/joshuapare/blockalloc/internal/logger"
)

var metricsNamespace string

func init() {
	cmd := newMetricsCmd()
	addScenarioFlags(cmd)
	cmd.Flags().StringVar(&metricsNamespace, "namespace", "blockalloc", "Metric name prefix")
	rootCmd.AddCommand(cmd)
}

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Run a workload and print Prometheus metrics",
		Long: `The metrics command runs the same workload as run but keeps the
allocations that are live at the end, then writes the tracking metrics and
arena statistics in the Prometheus text exposition format.

Example:
  allocctl metrics
  allocctl metrics --namespace myapp --fallback 8KiB`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetrics(args)
		},
	}
	return cmd
}

func runMetrics(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stack, err := cfg.Build(logger.L)
	if err != nil {
		return fmt.Errorf("failed to build allocator stack: %w", err)
	}
	defer stack.Close()

	runWorkload(cfg, stack, false)

	arenas := map[string]*block.Allocator{"primary": stack.Primary}
	if stack.Secondary != nil {
		arenas["secondary"] = stack.Secondary
	}
	constLabels := prometheus.Labels{"policy": stack.Primary.Policy().String()}

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(allocprom.NewTrackingCollector(metricsNamespace, stack.Tracker, constLabels)); err != nil {
		return fmt.Errorf("failed to register tracking collector: %w", err)
	}
	if err := reg.Register(allocprom.NewArenaCollector(metricsNamespace, arenas, constLabels)); err != nil {
		return fmt.Errorf("failed to register arena collector: %w", err)
	}

	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(os.Stdout, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
