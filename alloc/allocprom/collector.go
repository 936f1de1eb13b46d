// Package allocprom exports allocator metrics to Prometheus.
package allocprom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/alloc/block"
)

type metricDesc struct {
	metric    alloc.MetricSet
	desc      *prometheus.Desc
	valueType prometheus.ValueType
}

// TrackingCollector reports the metrics of a TrackingAllocator and all of its
// children. Each tracker becomes one "allocator" label value, its path from
// the root joined by "/". Only enabled metrics are reported.
type TrackingCollector struct {
	root  *alloc.TrackingAllocator
	descs []metricDesc
}

var _ prometheus.Collector = (*TrackingCollector)(nil)

// NewTrackingCollector returns a collector for root and its descendants.
func NewTrackingCollector(namespace string, root *alloc.TrackingAllocator, constLabels prometheus.Labels) *TrackingCollector {
	newDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"allocator"}, constLabels)
	}
	return &TrackingCollector{
		root: root,
		descs: []metricDesc{
			{alloc.AllocatedBytes, newDesc("allocated_bytes", "Bytes currently allocated."), prometheus.GaugeValue},
			{alloc.PeakAllocatedBytes, newDesc("peak_allocated_bytes", "High-water mark of allocated bytes."), prometheus.GaugeValue},
			{alloc.CumulativeAllocatedBytes, newDesc("allocated_bytes_total", "Bytes ever allocated."), prometheus.CounterValue},
			{alloc.NumAllocations, newDesc("allocations_total", "Successful allocations."), prometheus.CounterValue},
			{alloc.NumDeallocations, newDesc("deallocations_total", "Deallocations."), prometheus.CounterValue},
			{alloc.NumResizes, newDesc("resizes_total", "Successful in-place resizes."), prometheus.CounterValue},
			{alloc.NumReallocations, newDesc("reallocations_total", "Successful reallocations."), prometheus.CounterValue},
			{alloc.NumFailures, newDesc("failures_total", "Failed allocations, resizes and reallocations."), prometheus.CounterValue},
		},
	}
}

// Describe implements prometheus.Collector.
func (c *TrackingCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d.desc
	}
}

// Collect implements prometheus.Collector.
func (c *TrackingCollector) Collect(ch chan<- prometheus.Metric) {
	c.collect(ch, c.root, c.root.Name())
}

func (c *TrackingCollector) collect(ch chan<- prometheus.Metric, t *alloc.TrackingAllocator, path string) {
	m := t.Metrics()
	for _, d := range c.descs {
		if m.Enabled.Has(d.metric) {
			ch <- prometheus.MustNewConstMetric(d.desc, d.valueType, float64(m.Value(d.metric)), path)
		}
	}
	for _, child := range t.Children() {
		c.collect(ch, child, path+"/"+child.Name())
	}
}

// ArenaCollector reports block statistics for named arenas. Collect walks
// the block lists, so it must not run while the arenas are being modified.
type ArenaCollector struct {
	arenas        map[string]*block.Allocator
	capacity      *prometheus.Desc
	bytes         *prometheus.Desc
	blocks        *prometheus.Desc
	largestFree   *prometheus.Desc
	fragmentation *prometheus.Desc
}

var _ prometheus.Collector = (*ArenaCollector)(nil)

// NewArenaCollector returns a collector for arenas keyed by name.
func NewArenaCollector(namespace string, arenas map[string]*block.Allocator, constLabels prometheus.Labels) *ArenaCollector {
	fq := func(name string) string { return prometheus.BuildFQName(namespace, "arena", name) }
	return &ArenaCollector{
		arenas:        arenas,
		capacity:      prometheus.NewDesc(fq("capacity_bytes"), "Arena bytes covered by blocks.", []string{"arena"}, constLabels),
		bytes:         prometheus.NewDesc(fq("bytes"), "Usable and header bytes by state.", []string{"arena", "state"}, constLabels),
		blocks:        prometheus.NewDesc(fq("blocks"), "Blocks by state.", []string{"arena", "state"}, constLabels),
		largestFree:   prometheus.NewDesc(fq("largest_free_bytes"), "Usable size of the largest free block.", []string{"arena"}, constLabels),
		fragmentation: prometheus.NewDesc(fq("fragmentation_ratio"), "Share of free bytes outside the largest free block.", []string{"arena"}, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *ArenaCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.bytes
	ch <- c.blocks
	ch <- c.largestFree
	ch <- c.fragmentation
}

// Collect implements prometheus.Collector.
func (c *ArenaCollector) Collect(ch chan<- prometheus.Metric) {
	for name, a := range c.arenas {
		s := a.Stats()
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity), name)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.UsedBytes), name, "used")
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.FreeBytes), name, "free")
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.Overhead), name, "overhead")
		ch <- prometheus.MustNewConstMetric(c.blocks, prometheus.GaugeValue, float64(s.UsedBlocks), name, "used")
		ch <- prometheus.MustNewConstMetric(c.blocks, prometheus.GaugeValue, float64(s.FreeBlocks), name, "free")
		ch <- prometheus.MustNewConstMetric(c.largestFree, prometheus.GaugeValue, float64(s.LargestFree), name)
		ch <- prometheus.MustNewConstMetric(c.fragmentation, prometheus.GaugeValue, s.Fragmentation(), name)
	}
}
