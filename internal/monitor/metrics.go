// Package monitor records pipeline performance: Prometheus metrics per
// stage and source, and process resource snapshots at stage boundaries.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Prometheus metrics of the survey pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	stageDuration     *prometheus.HistogramVec
	observationsTotal *prometheus.CounterVec
	candidatesTotal   *prometheus.CounterVec
	itemFailuresTotal *prometheus.CounterVec
	runsTotal         *prometheus.CounterVec
	processRSSBytes   prometheus.Gauge
}

// NewMetrics creates the pipeline metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitesurvey_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
			},
			[]string{"stage"},
		),
		observationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesurvey_observations_total",
				Help: "Observations emitted by each detector",
			},
			[]string{"source"},
		),
		candidatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesurvey_candidates_total",
				Help: "Site candidates produced, by phase (fused, validated)",
			},
			[]string{"phase"},
		),
		itemFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesurvey_item_failures_total",
				Help: "Input files or documents skipped, by source and error category",
			},
			[]string{"source", "category"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesurvey_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"status"},
		),
		processRSSBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitesurvey_process_resident_bytes",
			Help: "Resident set size at the last stage boundary",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.stageDuration.Describe(ch)
	m.observationsTotal.Describe(ch)
	m.candidatesTotal.Describe(ch)
	m.itemFailuresTotal.Describe(ch)
	m.runsTotal.Describe(ch)
	m.processRSSBytes.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.stageDuration.Collect(ch)
	m.observationsTotal.Collect(ch)
	m.candidatesTotal.Collect(ch)
	m.itemFailuresTotal.Collect(ch)
	m.runsTotal.Collect(ch)
	m.processRSSBytes.Collect(ch)
}

// ObserveStage records the duration of a stage in seconds.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// AddObservations counts observations from source.
func (m *Metrics) AddObservations(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.observationsTotal.WithLabelValues(source).Add(float64(n))
}

// AddCandidates counts candidates in phase.
func (m *Metrics) AddCandidates(phase string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.candidatesTotal.WithLabelValues(phase).Add(float64(n))
}

// RecordFailure counts one skipped item.
func (m *Metrics) RecordFailure(source, category string) {
	if m == nil {
		return
	}
	m.itemFailuresTotal.WithLabelValues(source, category).Inc()
}

// RecordRun counts one finished run.
func (m *Metrics) RecordRun(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

// SetResident records the latest resident set size.
func (m *Metrics) SetResident(bytes uint64) {
	if m == nil {
		return
	}
	m.processRSSBytes.Set(float64(bytes))
}
