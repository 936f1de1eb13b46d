package main

import (
	"time"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/alloc/block"
	"github.com/joshuapare/blockalloc/internal/config"
	"github.com/joshuapare/blockalloc/pkg/harness"
)

type trackerReport struct {
	Name     string            `json:"name"`
	Metrics  map[string]uint64 `json:"metrics"`
	Children []trackerReport   `json:"children,omitempty"`
}

type arenaReport struct {
	Name          string  `json:"name"`
	Policy        string  `json:"policy"`
	Capacity      uintptr `json:"capacity"`
	UsedBytes     uintptr `json:"used_bytes"`
	FreeBytes     uintptr `json:"free_bytes"`
	Overhead      uintptr `json:"overhead"`
	UsedBlocks    int     `json:"used_blocks"`
	FreeBlocks    int     `json:"free_blocks"`
	LargestFree   uintptr `json:"largest_free"`
	Fragmentation float64 `json:"fragmentation"`
	Valid         bool    `json:"valid"`
	Error         string  `json:"error,omitempty"`
}

type harnessReport struct {
	Workers       int     `json:"workers,omitempty"`
	Requests      uint64  `json:"requests"`
	Allocations   uint64  `json:"allocations"`
	Deallocations uint64  `json:"deallocations"`
	Reallocations uint64  `json:"reallocations"`
	Failures      uint64  `json:"failures"`
	Ignored       uint64  `json:"ignored"`
	PeakLive      int     `json:"peak_live"`
	PeakLiveBytes uintptr `json:"peak_live_bytes"`
}

type runReport struct {
	Seed      uint64        `json:"seed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Harness   harnessReport `json:"harness"`
	Allocator trackerReport `json:"allocator"`
	Arenas    []arenaReport `json:"arenas"`
}

func reportTracker(t *alloc.TrackingAllocator) trackerReport {
	m := t.Metrics()
	r := trackerReport{Name: t.Name(), Metrics: make(map[string]uint64)}
	for metric := alloc.AllocatedBytes; metric <= alloc.NumFailures; metric <<= 1 {
		if m.Enabled.Has(metric) {
			r.Metrics[metric.String()] = m.Value(metric)
		}
	}
	for _, child := range t.Children() {
		r.Children = append(r.Children, reportTracker(child))
	}
	return r
}

func reportArenas(s *config.Stack) []arenaReport {
	names := []string{"primary", "secondary"}
	var out []arenaReport
	for i, a := range s.Arenas() {
		out = append(out, reportArena(names[i], a))
	}
	return out
}

func reportArena(name string, a *block.Allocator) arenaReport {
	st := a.Stats()
	r := arenaReport{
		Name:          name,
		Policy:        a.Policy().String(),
		Capacity:      st.Capacity,
		UsedBytes:     st.UsedBytes,
		FreeBytes:     st.FreeBytes,
		Overhead:      st.Overhead,
		UsedBlocks:    st.UsedBlocks,
		FreeBlocks:    st.FreeBlocks,
		LargestFree:   st.LargestFree,
		Fragmentation: st.Fragmentation(),
		Valid:         true,
	}
	if err := a.Validate(); err != nil {
		r.Valid = false
		r.Error = err.Error()
	}
	return r
}

func reportHarness(st harness.Stats) harnessReport {
	return harnessReport{
		Requests:      st.Requests,
		Allocations:   st.Allocations,
		Deallocations: st.Deallocations,
		Reallocations: st.Reallocations,
		Failures:      st.Failures,
		Ignored:       st.Ignored,
		PeakLive:      st.PeakLive,
		PeakLiveBytes: st.PeakLiveBytes,
	}
}

func (h *harnessReport) add(o harnessReport) {
	h.Requests += o.Requests
	h.Allocations += o.Allocations
	h.Deallocations += o.Deallocations
	h.Reallocations += o.Reallocations
	h.Failures += o.Failures
	h.Ignored += o.Ignored
	h.PeakLive = max(h.PeakLive, o.PeakLive)
	h.PeakLiveBytes = max(h.PeakLiveBytes, o.PeakLiveBytes)
}

func printReport(r runReport) {
	printHeading("Workload:")
	printInfo("  seed:            %d\n", r.Seed)
	if r.Harness.Workers > 0 {
		printInfo("  workers:         %d\n", r.Harness.Workers)
	}
	printInfo("  requests:        %s\n", count(r.Harness.Requests))
	printInfo("  allocations:     %s\n", count(r.Harness.Allocations))
	printInfo("  deallocations:   %s\n", count(r.Harness.Deallocations))
	printInfo("  reallocations:   %s\n", count(r.Harness.Reallocations))
	printInfo("  failures:        %s\n", count(r.Harness.Failures))
	printInfo("  peak live:       %s (%s)\n", count(r.Harness.PeakLive), size(r.Harness.PeakLiveBytes))
	printInfo("  elapsed:         %s\n", r.Elapsed.Round(time.Microsecond))

	printHeading("Metrics:")
	printTracker(r.Allocator, "  ")

	printArenas(r.Arenas)
}

func printTracker(t trackerReport, indent string) {
	printInfo("%s%s\n", indent, bold.Sprint(t.Name))
	for metric := alloc.AllocatedBytes; metric <= alloc.NumFailures; metric <<= 1 {
		v, ok := t.Metrics[metric.String()]
		if !ok {
			continue
		}
		value := count(v)
		if metric <= alloc.CumulativeAllocatedBytes {
			value = size(v)
		}
		printInfo("%s  %-28s %s\n", indent, metric.String()+":", value)
	}
	for _, child := range t.Children {
		printTracker(child, indent+"  ")
	}
}

func printArenas(arenas []arenaReport) {
	for _, a := range arenas {
		printHeading("Arena " + a.Name + ":")
		printInfo("  policy:          %s\n", a.Policy)
		printInfo("  capacity:        %s\n", size(a.Capacity))
		printInfo("  used:            %s in %s blocks\n", size(a.UsedBytes), count(a.UsedBlocks))
		printInfo("  free:            %s in %s blocks\n", size(a.FreeBytes), count(a.FreeBlocks))
		printInfo("  overhead:        %s\n", size(a.Overhead))
		printInfo("  largest free:    %s\n", size(a.LargestFree))
		printInfo("  fragmentation:   %.1f%%\n", a.Fragmentation*100)
		if a.Valid {
			printInfo("  status:          %s\n", green.Sprint("valid"))
		} else {
			printInfo("  status:          %s (%s)\n", red.Sprint("corrupted"), a.Error)
		}
	}
}
