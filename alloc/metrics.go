package alloc

import (
	"fmt"
	"log/slog"
	"strings"
)

// MetricSet selects which usage metrics a TrackingAllocator maintains.
type MetricSet uint16

const (
	// AllocatedBytes is the number of bytes currently allocated.
	AllocatedBytes MetricSet = 1 << iota
	// PeakAllocatedBytes is the high-water mark of AllocatedBytes.
	PeakAllocatedBytes
	// CumulativeAllocatedBytes is the total number of bytes ever allocated.
	CumulativeAllocatedBytes
	// NumAllocations counts successful Allocate calls.
	NumAllocations
	// NumDeallocations counts Deallocate calls.
	NumDeallocations
	// NumResizes counts successful Resize calls.
	NumResizes
	// NumReallocations counts successful Reallocate calls.
	NumReallocations
	// NumFailures counts failed Allocate, Resize and Reallocate calls.
	NumFailures
)

const (
	NoMetrics    MetricSet = 0
	BasicMetrics           = AllocatedBytes | PeakAllocatedBytes | NumAllocations
	AllMetrics             = AllocatedBytes | PeakAllocatedBytes | CumulativeAllocatedBytes |
		NumAllocations | NumDeallocations | NumResizes | NumReallocations | NumFailures
)

var metricNames = []struct {
	m    MetricSet
	name string
}{
	{AllocatedBytes, "allocated_bytes"},
	{PeakAllocatedBytes, "peak_allocated_bytes"},
	{CumulativeAllocatedBytes, "cumulative_allocated_bytes"},
	{NumAllocations, "num_allocations"},
	{NumDeallocations, "num_deallocations"},
	{NumResizes, "num_resizes"},
	{NumReallocations, "num_reallocations"},
	{NumFailures, "num_failures"},
}

// Has reports whether every metric in x is enabled in m.
func (m MetricSet) Has(x MetricSet) bool { return m&x == x }

// Names returns the snake_case names of the enabled metrics in declaration order.
func (m MetricSet) Names() []string {
	var out []string
	for _, mn := range metricNames {
		if m.Has(mn.m) {
			out = append(out, mn.name)
		}
	}
	return out
}

// String implements fmt.Stringer.
func (m MetricSet) String() string {
	if m == NoMetrics {
		return "none"
	}
	return strings.Join(m.Names(), "|")
}

// ParseMetricSet builds a MetricSet from metric names. The names "all",
// "basic" and "none" select the predefined sets.
func ParseMetricSet(names []string) (MetricSet, error) {
	var set MetricSet
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "all":
			set |= AllMetrics
			continue
		case "basic":
			set |= BasicMetrics
			continue
		case "none", "":
			continue
		}
		found := false
		for _, mn := range metricNames {
			if mn.name == name {
				set |= mn.m
				found = true
				break
			}
		}
		if !found {
			return NoMetrics, fmt.Errorf("alloc: unknown metric %q", raw)
		}
	}
	return set, nil
}

// Metrics is a read-only snapshot of a TrackingAllocator's counters.
// Counters that are not enabled read as zero.
type Metrics struct {
	Name                     string
	Enabled                  MetricSet
	AllocatedBytes           uint64
	PeakAllocatedBytes       uint64
	CumulativeAllocatedBytes uint64
	NumAllocations           uint64
	NumDeallocations         uint64
	NumResizes               uint64
	NumReallocations         uint64
	NumFailures              uint64
}

// Value returns the counter for a single metric.
func (m Metrics) Value(metric MetricSet) uint64 {
	switch metric {
	case AllocatedBytes:
		return m.AllocatedBytes
	case PeakAllocatedBytes:
		return m.PeakAllocatedBytes
	case CumulativeAllocatedBytes:
		return m.CumulativeAllocatedBytes
	case NumAllocations:
		return m.NumAllocations
	case NumDeallocations:
		return m.NumDeallocations
	case NumResizes:
		return m.NumResizes
	case NumReallocations:
		return m.NumReallocations
	case NumFailures:
		return m.NumFailures
	}
	return 0
}

// LogValue implements slog.LogValuer, emitting only the enabled metrics.
func (m Metrics) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(metricNames))
	for _, mn := range metricNames {
		if m.Enabled.Has(mn.m) {
			attrs = append(attrs, slog.Uint64(mn.name, m.Value(mn.m)))
		}
	}
	return slog.GroupValue(attrs...)
}
