// Package metrics exposes Prometheus counters for runs, steps and trigger
// fires.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ormasoftchile/rpaflow/pkg/engine"
	"github.com/ormasoftchile/rpaflow/pkg/trigger"
)

const namespace = "rpaflow"

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	RunsActive   prometheus.Gauge
	StepsTotal   *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	FiresTotal   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWith(reg, reg)
}

// NewWith registers the collectors on reg and serves g.
func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: g,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Script runs by final status.",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of script runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		RunsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Runs currently executing.",
		}),
		StepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Steps handled by action type and status.",
		}, []string{"action_type", "status"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of executed steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action_type"}),
		FiresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_fires_total",
			Help:      "Run requests produced by triggers, by source.",
		}, []string{"source"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RunStarted marks a run as active.
func (m *Metrics) RunStarted() { m.RunsActive.Inc() }

// RunFinished records the outcome of a run.
func (m *Metrics) RunFinished(res *engine.RunResult) {
	m.RunsActive.Dec()
	m.RunsTotal.WithLabelValues(res.Status).Inc()
	m.RunDuration.Observe(res.Duration.Seconds())
}

// Fired counts a trigger fire.
func (m *Metrics) Fired(f trigger.Fire) {
	m.FiresTotal.WithLabelValues(string(f.Source)).Inc()
}

// Listener returns an engine listener that records per-step metrics.
func (m *Metrics) Listener() engine.Listener {
	return engine.ListenerFuncs{
		OnStepFinished: func(o engine.StepOutcome) {
			kind := string(o.Kind)
			m.StepsTotal.WithLabelValues(kind, string(o.Status)).Inc()
			if o.Duration > 0 {
				m.StepDuration.WithLabelValues(kind).Observe(o.Duration.Seconds())
			}
		},
	}
}
