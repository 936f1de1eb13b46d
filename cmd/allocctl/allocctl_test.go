package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/blockalloc/internal/config"
)

func smallScenario() {
	arenaSize = "8KiB"
	requests = 2000
	maxSize = "256"
	maxAllocations = 32
}

func TestLoadConfig_Overrides(t *testing.T) {
	resetFlags()
	arenaSize = "16KiB"
	policyName = "best-fit"
	dualThreshold = "1KiB"
	fallbackSize = "4KiB"
	lockKind = config.LockSpin
	seed = 42
	requests = 7
	maxSize = "100"
	maxAllocations = 3
	poison = true

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.Size(16<<10), cfg.Arena.Size)
	assert.Equal(t, "best-fit", cfg.Arena.Policy)
	assert.Equal(t, config.Size(1<<10), cfg.Arena.Threshold)
	assert.True(t, cfg.Arena.Poison)
	require.NotNil(t, cfg.Fallback)
	assert.Equal(t, config.Size(4<<10), cfg.Fallback.Size)
	assert.Equal(t, "best-fit", cfg.Fallback.Policy)
	assert.Equal(t, config.LockSpin, cfg.Lock)
	assert.Equal(t, uint64(42), cfg.Harness.Seed)
	assert.Equal(t, 7, cfg.Harness.Requests)
	assert.Equal(t, config.Size(100), cfg.Harness.MaxSize)
	assert.Equal(t, 3, cfg.Harness.MaxAllocations)
}

func TestLoadConfig_File(t *testing.T) {
	resetFlags()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("arena:\n  size: 4KiB\n  policy: worst-fit\n"), 0o600))
	configPath = path
	policyName = "last-fit"

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.Size(4<<10), cfg.Arena.Size)
	assert.Equal(t, "last-fit", cfg.Arena.Policy)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		set  func()
	}{
		{"bad size", func() { arenaSize = "lots" }},
		{"bad policy", func() { policyName = "random-fit" }},
		{"bad lock", func() { lockKind = "futex" }},
		{"missing file", func() { configPath = filepath.Join(t.TempDir(), "nope.yaml") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			tt.set()
			_, err := loadConfig()
			require.Error(t, err)
		})
	}
}

func TestRunCommand(t *testing.T) {
	for _, policy := range []string{"first-fit", "last-fit", "best-fit", "worst-fit", "dual-first-fit"} {
		t.Run(policy, func(t *testing.T) {
			resetFlags()
			smallScenario()
			policyName = policy
			jsonOut = true

			output, err := captureOutput(t, func() error { return runRun(nil) })
			require.NoError(t, err)

			var r runReport
			decodeJSON(t, output, &r)
			assert.Equal(t, uint64(2000), r.Harness.Requests)
			assert.Equal(t, "arena", r.Allocator.Name)
			assert.Equal(t, uint64(0), r.Allocator.Metrics["allocated_bytes"])
			assert.Equal(t, r.Allocator.Metrics["num_allocations"], r.Allocator.Metrics["num_deallocations"])
			require.Len(t, r.Arenas, 1)
			assert.True(t, r.Arenas[0].Valid)
			assert.Equal(t, 1, r.Arenas[0].FreeBlocks)
			assert.Equal(t, 0, r.Arenas[0].UsedBlocks)
		})
	}
}

func TestRunCommand_Text(t *testing.T) {
	resetFlags()
	smallScenario()
	fallbackSize = "2KiB"

	output, err := captureOutput(t, func() error { return runRun(nil) })
	require.NoError(t, err)
	for _, want := range []string{"Workload:", "Metrics:", "num_allocations:", "Arena primary:", "Arena secondary:", "valid"} {
		assert.Contains(t, output, want)
	}
}

func TestRunCommand_Quiet(t *testing.T) {
	resetFlags()
	smallScenario()
	quiet = true

	output, err := captureOutput(t, func() error { return runRun(nil) })
	require.NoError(t, err)
	assert.Empty(t, output)
}

func TestStressCommand(t *testing.T) {
	resetFlags()
	smallScenario()
	arenaSize = "32KiB"
	stressWorkers = 4
	lockKind = config.LockSpin
	jsonOut = true

	output, err := captureOutput(t, func() error { return runStress(context.Background(), nil) })
	require.NoError(t, err)

	var r runReport
	decodeJSON(t, output, &r)
	assert.Equal(t, 4, r.Harness.Workers)
	assert.Equal(t, uint64(4*2000), r.Harness.Requests)
	require.Len(t, r.Allocator.Children, 4)
	for _, child := range r.Allocator.Children {
		assert.Equal(t, uint64(0), child.Metrics["allocated_bytes"])
	}
	assert.Equal(t, r.Allocator.Metrics["num_allocations"], r.Allocator.Metrics["num_deallocations"])
	assert.True(t, r.Arenas[0].Valid)
}

func TestLayoutCommand(t *testing.T) {
	resetFlags()
	smallScenario()
	requests = 100
	jsonOut = true

	output, err := captureOutput(t, func() error { return runLayout(nil) })
	require.NoError(t, err)

	var r layoutReport
	decodeJSON(t, output, &r)
	require.NotEmpty(t, r.Blocks)
	assert.True(t, r.Blocks[len(r.Blocks)-1].Last)
	var total uintptr
	used := 0
	for i, b := range r.Blocks {
		assert.Equal(t, total, b.Offset, "block %d", i)
		total += b.OuterSize
		if b.Used {
			used++
		}
	}
	assert.Equal(t, r.Arena.Capacity, total)
	assert.Equal(t, r.Arena.UsedBlocks, used)
}

func TestLayoutCommand_Text(t *testing.T) {
	resetFlags()
	smallScenario()
	requests = 100

	output, err := captureOutput(t, func() error { return runLayout(nil) })
	require.NoError(t, err)
	assert.Contains(t, output, "Block map")

	layoutList = true
	output, err = captureOutput(t, func() error { return runLayout(nil) })
	require.NoError(t, err)
	assert.Contains(t, output, "offset")
	assert.Contains(t, output, "0x0")
}

func TestMetricsCommand(t *testing.T) {
	resetFlags()
	smallScenario()
	fallbackSize = "2KiB"
	metricsNamespace = "test"

	output, err := captureOutput(t, func() error { return runMetrics(nil) })
	require.NoError(t, err)
	for _, want := range []string{
		"# TYPE test_allocations_total counter",
		`test_allocated_bytes{allocator="arena",policy="first-fit"}`,
		`test_arena_capacity_bytes{arena="secondary",policy="first-fit"}`,
		"test_arena_fragmentation_ratio",
	} {
		assert.Contains(t, output, want)
	}
}

func TestPoliciesCommand(t *testing.T) {
	resetFlags()
	jsonOut = true

	output, err := captureOutput(t, func() error { return runPolicies(nil) })
	require.NoError(t, err)

	var out []policyInfo
	decodeJSON(t, output, &out)
	require.Len(t, out, 5)
	for _, p := range out {
		assert.NotEmpty(t, p.Description, p.Name)
	}
}
