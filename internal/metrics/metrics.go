// Package metrics holds the Prometheus collectors of the ingestion pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	unitsTotal   *prometheus.CounterVec
	rowsInserted *prometheus.CounterVec
	rowsDropped  *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	runsActive   prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		unitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "energy_ingest_units_total",
			Help: "Ingestion units completed, by provider, kind and outcome.",
		}, []string{"provider", "kind", "outcome"}),
		rowsInserted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "energy_ingest_rows_inserted_total",
			Help: "Rows newly inserted into destination relations.",
		}, []string{"kind"}),
		rowsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "energy_ingest_rows_dropped_total",
			Help: "Source rows dropped during normalization, by reason.",
		}, []string{"kind", "reason"}),
		unitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "energy_ingest_unit_duration_seconds",
			Help:    "Wall time of one ingestion unit.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"provider", "kind"}),
		runsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "energy_ingest_runs_active",
			Help: "Ingestion runs currently executing.",
		}),
	}
}

// ObserveUnit records the outcome and duration of one unit.
func (m *Metrics) ObserveUnit(provider, kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.unitsTotal.WithLabelValues(provider, kind, outcome).Inc()
	m.unitDuration.WithLabelValues(provider, kind).Observe(d.Seconds())
}

// AddInserted counts rows written for a kind.
func (m *Metrics) AddInserted(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsInserted.WithLabelValues(kind).Add(float64(n))
}

// AddDropped counts rows dropped for a kind, per reason.
func (m *Metrics) AddDropped(kind string, byReason map[string]int) {
	if m == nil {
		return
	}
	for reason, n := range byReason {
		if n > 0 {
			m.rowsDropped.WithLabelValues(kind, reason).Add(float64(n))
		}
	}
}

// RunStarted and RunFinished track concurrent runs.
func (m *Metrics) RunStarted() {
	if m != nil {
		m.runsActive.Inc()
	}
}

func (m *Metrics) RunFinished() {
	if m != nil {
		m.runsActive.Dec()
	}
}
