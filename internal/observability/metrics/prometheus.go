package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Snapshot is the point-in-time state exposed on /metrics.
type Snapshot struct {
	ActiveOperations int
	QueuedOperations int
	InFlightTargets  int
	RateGateEntries  int
}

// SnapshotFunc is called on every scrape.
type SnapshotFunc func() Snapshot

// Collector exports orchestrator gauges computed at scrape time.
type Collector struct {
	snapshot SnapshotFunc

	activeOperations *prometheus.Desc
	queuedOperations *prometheus.Desc
	inFlightTargets  *prometheus.Desc
	rateGateEntries  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(snapshot SnapshotFunc) *Collector {
	return &Collector{
		snapshot: snapshot,
		activeOperations: prometheus.NewDesc(
			"bulk_operations_active", "Operations currently in progress.", nil, nil),
		queuedOperations: prometheus.NewDesc(
			"bulk_operations_queued", "Admitted operations waiting for a dispatcher slot.", nil, nil),
		inFlightTargets: prometheus.NewDesc(
			"bulk_operation_targets_in_flight", "Targets currently being applied.", nil, nil),
		rateGateEntries: prometheus.NewDesc(
			"rate_gate_entries", "Live rate limiter window entries held in memory.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeOperations
	ch <- c.queuedOperations
	ch <- c.inFlightTargets
	ch <- c.rateGateEntries
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	ch <- prometheus.MustNewConstMetric(c.activeOperations, prometheus.GaugeValue, float64(s.ActiveOperations))
	ch <- prometheus.MustNewConstMetric(c.queuedOperations, prometheus.GaugeValue, float64(s.QueuedOperations))
	ch <- prometheus.MustNewConstMetric(c.inFlightTargets, prometheus.GaugeValue, float64(s.InFlightTargets))
	ch <- prometheus.MustNewConstMetric(c.rateGateEntries, prometheus.GaugeValue, float64(s.RateGateEntries))
}

// NewRegistry returns a registry holding the collector plus Go runtime and
// process collectors.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
