// Package metrics counts harvest outcomes and exports them in the
// Prometheus text format for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Lookup outcomes
const (
	OutcomeOK               = "ok"
	OutcomeEmpty            = "empty"
	OutcomeNetworkError     = "network_error"
	OutcomeDecodeError      = "decode_error"
	OutcomeProxyUnavailable = "proxy_unavailable"
	OutcomeRobotsDisallowed = "robots_disallowed"
)

// Metrics holds the harvest metrics on a private registry
type Metrics struct {
	registry *prometheus.Registry

	LookupsTotal     *prometheus.CounterVec
	LookupDuration   *prometheus.HistogramVec
	KeywordsTotal    *prometheus.CounterVec
	RotationsTotal   *prometheus.CounterVec
	LedgerAppended   *prometheus.CounterVec
	LastRunTimestamp *prometheus.GaugeVec
}

// New creates and registers all metrics under namespace
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookups_total",
				Help:      "Suggestion lookups by engine and outcome",
			},
			[]string{"engine", "outcome"},
		),
		LookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lookup_duration_seconds",
				Help:      "Suggestion lookup latency",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"engine"},
		),
		KeywordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "keywords_total",
				Help:      "Suggested keywords written to raw dumps",
			},
			[]string{"engine", "seed_length"},
		),
		RotationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_rotations_total",
				Help:      "Proxy identity rotations by outcome",
			},
			[]string{"outcome"},
		),
		LedgerAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_appended_total",
				Help:      "Keywords appended to the ledger",
			},
			[]string{"marketplace", "locale"},
		),
		LastRunTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last completed command",
			},
			[]string{"command"},
		),
	}

	m.registry.MustRegister(
		m.LookupsTotal,
		m.LookupDuration,
		m.KeywordsTotal,
		m.RotationsTotal,
		m.LedgerAppended,
		m.LastRunTimestamp,
	)
	return m
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveLookup records one lookup
func (m *Metrics) ObserveLookup(engine, outcome string, d time.Duration) {
	m.LookupsTotal.WithLabelValues(engine, outcome).Inc()
	if d > 0 {
		m.LookupDuration.WithLabelValues(engine).Observe(d.Seconds())
	}
}

// ObserveRotation records one rotation attempt
func (m *Metrics) ObserveRotation(err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeProxyUnavailable
	}
	m.RotationsTotal.WithLabelValues(outcome).Inc()
}

// AddKeywords counts keywords written for an engine and seed length
func (m *Metrics) AddKeywords(engine string, seedLength, n int) {
	m.KeywordsTotal.WithLabelValues(engine, fmt.Sprint(seedLength)).Add(float64(n))
}

// MarkRun stamps the completion time of command
func (m *Metrics) MarkRun(command string, t time.Time) {
	m.LastRunTimestamp.WithLabelValues(command).Set(float64(t.Unix()))
}

// WriteTextfile writes all metrics to path atomically
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
