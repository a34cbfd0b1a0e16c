// Package metrics exposes shiftmon's own Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector shiftmon updates.
type Metrics struct {
	registry *prometheus.Registry

	Cycles        prometheus.Counter
	FetchErrors   prometheus.Counter
	Flushes       prometheus.Counter
	Escalations   *prometheus.CounterVec
	ActionErrors  *prometheus.CounterVec
	BadTriggers   prometheus.Gauge
	BatchSize     prometheus.Gauge
	RunNumber     prometheus.Gauge
	TriggerRate   *prometheus.GaugeVec
	ExpectedRate  *prometheus.GaugeVec
	StaleOverride prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "shiftmon_cycles_total",
			Help: "Poll cycles executed.",
		}),
		FetchErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "shiftmon_fetch_errors_total",
			Help: "Poll cycles degraded by a source failure.",
		}),
		Flushes: f.NewCounter(prometheus.CounterOpts{
			Name: "shiftmon_flushes_total",
			Help: "Notification batches flushed through the alert tree.",
		}),
		Escalations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftmon_escalations_total",
			Help: "Triggers that reached the escalation threshold.",
		}, []string{"category"}),
		ActionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shiftmon_action_errors_total",
			Help: "Failed notification deliveries.",
		}, []string{"alert"}),
		BadTriggers: f.NewGauge(prometheus.GaugeOpts{
			Name: "shiftmon_bad_triggers",
			Help: "Triggers currently classified bad.",
		}),
		BatchSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "shiftmon_batch_size",
			Help: "Escalated triggers waiting for the next flush.",
		}),
		RunNumber: f.NewGauge(prometheus.GaugeOpts{
			Name: "shiftmon_run_number",
			Help: "Run currently monitored.",
		}),
		TriggerRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shiftmon_trigger_rate_hz",
			Help: "Last observed rate per trigger.",
		}, []string{"trigger"}),
		ExpectedRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shiftmon_trigger_expected_rate_hz",
			Help: "Last predicted rate per trigger.",
		}, []string{"trigger"}),
		StaleOverride: f.NewGauge(prometheus.GaugeOpts{
			Name: "shiftmon_thresholds_stale",
			Help: "1 while the threshold override document is stale.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format. A nil
// receiver serves 404.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
