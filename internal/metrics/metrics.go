// Package metrics exposes validation results as Prometheus metrics.
//
// Metrics:
//   - madness_validation_judgments_total{judgment} - results per judgment
//   - madness_validation_needs_attention - results needing review in the last run
//   - madness_asset_confidence{asset_id,asset_type} - confidence after the run
//   - madness_session_checks_total{compliance} - inline session judgments
//   - madness_last_run_timestamp_seconds - completion time of the last run
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/madness-retro/madness/internal/session"
	"github.com/madness-retro/madness/internal/validate"
)

// Metrics holds one run's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Judgments      *prometheus.CounterVec
	NeedsAttention prometheus.Gauge
	Confidence     *prometheus.GaugeVec
	SessionChecks  *prometheus.CounterVec
	LastRun        prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Judgments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "madness_validation_judgments_total",
				Help: "Validation results by judgment",
			},
			[]string{"judgment"},
		),
		NeedsAttention: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "madness_validation_needs_attention",
			Help: "Results flagged for review in the last validation run",
		}),
		Confidence: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "madness_asset_confidence",
				Help: "Asset confidence after the last validation run",
			},
			[]string{"asset_id", "asset_type"},
		),
		SessionChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "madness_session_checks_total",
				Help: "Inline session check results by compliance",
			},
			[]string{"compliance"},
		),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "madness_last_run_timestamp_seconds",
			Help: "Unix time the last run completed",
		}),
	}
	m.registry.MustRegister(m.Judgments, m.NeedsAttention, m.Confidence, m.SessionChecks, m.LastRun)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveReport records a batch validation report.
func (m *Metrics) ObserveReport(r *validate.Report, at time.Time) {
	for _, res := range r.Results {
		m.Judgments.WithLabelValues(string(res.Judgment)).Inc()
		m.Confidence.WithLabelValues(res.AssetID, string(res.AssetType)).Set(res.NewConfidence)
	}
	m.NeedsAttention.Set(float64(r.Summary.NeedsAttention))
	m.LastRun.Set(float64(at.Unix()))
}

// ObserveSession records an inline session check.
func (m *Metrics) ObserveSession(r *session.Result, at time.Time) {
	for _, t := range r.TriggeredAssets {
		m.SessionChecks.WithLabelValues(string(t.Compliance)).Inc()
	}
	m.LastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
