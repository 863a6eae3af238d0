package scanner

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the run counters as Prometheus collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pulsesTotal     prometheus.Counter
	startsTotal     prometheus.Counter
	droppedTotal    prometheus.Counter
	flushesTotal    prometheus.Counter
	orphanedTotal   prometheus.Counter
	invalidTotal    *prometheus.CounterVec
	recordsTotal    *prometheus.CounterVec
	incompleteTotal *prometheus.CounterVec
}

func newScannerCounter(name string, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scanner",
		Name:      name,
		Help:      help,
	})
}

func newScannerCounterVec(name string, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scanner",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics builds the collectors on their own registry, so several runs in
// one process do not collide.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry:        prometheus.NewRegistry(),
		pulsesTotal:     newScannerCounter("pulses_total", "Total number of raw pulses ingested"),
		startsTotal:     newScannerCounter("start_pulses_total", "Total number of start pulses"),
		droppedTotal:    newScannerCounter("dropped_pulses_total", "Pulses dropped for an unknown channel or detector type"),
		flushesTotal:    newScannerCounter("flushes_total", "Number of coincidence windows flushed"),
		orphanedTotal:   newScannerCounter("orphaned_pairs_total", "Pulses discarded because their window had no start"),
		invalidTotal:    newScannerCounterVec("invalid_pulses_total", "Pulses that failed analysis", []string{"reason"}),
		recordsTotal:    newScannerCounterVec("records_total", "Records produced per processor", []string{"processor"}),
		incompleteTotal: newScannerCounterVec("incomplete_groups_total", "Incomplete detector groups per processor", []string{"processor"}),
	}
	collectors := []prometheus.Collector{
		m.pulsesTotal,
		m.startsTotal,
		m.droppedTotal,
		m.flushesTotal,
		m.orphanedTotal,
		m.invalidTotal,
		m.recordsTotal,
		m.incompleteTotal,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("error registering metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) pulse() {
	if m != nil {
		m.pulsesTotal.Inc()
	}
}

func (m *Metrics) start() {
	if m != nil {
		m.startsTotal.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.droppedTotal.Inc()
	}
}

func (m *Metrics) invalid(kind AnalysisErrorKind) {
	if m != nil {
		m.invalidTotal.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) flush() {
	if m != nil {
		m.flushesTotal.Inc()
	}
}

func (m *Metrics) orphaned(n int) {
	if m != nil {
		m.orphanedTotal.Add(float64(n))
	}
}

// processor adds the change of a processor's counters since the last call.
func (m *Metrics) processor(name string, before ProcessorCounters, after ProcessorCounters) {
	if m == nil {
		return
	}
	if delta := after.Good - before.Good; delta > 0 {
		m.recordsTotal.WithLabelValues(name).Add(float64(delta))
	}
	if delta := after.Incomplete - before.Incomplete; delta > 0 {
		m.incompleteTotal.WithLabelValues(name).Add(float64(delta))
	}
}

// WriteMetricsFile dumps the registry in the Prometheus text format, for the
// node exporter textfile collector.
func (m *Metrics) WriteMetricsFile(filename string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(filename, m.registry); err != nil {
		return fmt.Errorf("error writing metrics to %s: %w", filename, err)
	}
	return nil
}
