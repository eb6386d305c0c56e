// Package metrics exposes collection counters in Prometheus format.
//
// A CLI run has no scrape endpoint, so the registry is written once at the
// end of a run to a node_exporter textfile when one is configured.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the progress and outcome of a collection run
type Metrics struct {
	registry *prometheus.Registry

	EntitiesTotal    prometheus.Gauge
	EntitiesDone     prometheus.Counter
	SamplesCollected prometheus.Counter
	EntitiesSkipped  *prometheus.CounterVec
	FetchRetries     prometheus.Counter
	FetchDuration    prometheus.Histogram
	SnapshotWrites   prometheus.Counter
	ChiSquared       prometheus.Gauge
	Conforms         prometheus.Gauge
}

// New creates a Metrics instance registered on its own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EntitiesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "igbenford_entities_total",
			Help: "Number of entities listed for the run",
		}),
		EntitiesDone: factory.NewCounter(prometheus.CounterOpts{
			Name: "igbenford_entities_processed_total",
			Help: "Entities processed, successful or not",
		}),
		SamplesCollected: factory.NewCounter(prometheus.CounterOpts{
			Name: "igbenford_samples_collected_total",
			Help: "Entities whose metric was collected",
		}),
		EntitiesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "igbenford_entities_skipped_total",
			Help: "Entities skipped after a failure, by failure kind",
		}, []string{"kind"}),
		FetchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "igbenford_fetch_retries_total",
			Help: "Fetch attempts that failed and were retried",
		}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "igbenford_fetch_duration_seconds",
			Help:    "Duration of a metric fetch including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SnapshotWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "igbenford_snapshot_writes_total",
			Help: "Snapshots persisted",
		}),
		ChiSquared: factory.NewGauge(prometheus.GaugeOpts{
			Name: "igbenford_chi_squared",
			Help: "Chi-squared statistic of the last analysis",
		}),
		Conforms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "igbenford_conforms",
			Help: "1 if the last analysis conformed to Benford's Law, 0 otherwise",
		}),
	}
}

// SetEntitiesTotal records the size of the entity list
func (m *Metrics) SetEntitiesTotal(n int) {
	m.EntitiesTotal.Set(float64(n))
}

// IncrementCollected records a successful entity
func (m *Metrics) IncrementCollected() {
	m.EntitiesDone.Inc()
	m.SamplesCollected.Inc()
}

// IncrementSkipped records a skipped entity
func (m *Metrics) IncrementSkipped(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	m.EntitiesDone.Inc()
	m.EntitiesSkipped.WithLabelValues(kind).Inc()
}

// IncrementRetries records one retried attempt
func (m *Metrics) IncrementRetries() {
	m.FetchRetries.Inc()
}

// IncrementSnapshotWrites records one persisted snapshot
func (m *Metrics) IncrementSnapshotWrites() {
	m.SnapshotWrites.Inc()
}

// ObserveFetch records the duration of a fetch.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveFetch(start time.Time) {
	m.FetchDuration.Observe(time.Since(start).Seconds())
}

// SetAnalysis records the outcome of the Benford test
func (m *Metrics) SetAnalysis(chiSquared float64, conforms bool) {
	m.ChiSquared.Set(chiSquared)
	if conforms {
		m.Conforms.Set(1)
	} else {
		m.Conforms.Set(0)
	}
}

// Gatherer exposes the underlying registry
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes all metrics to path in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
