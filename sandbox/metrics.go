package sandbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the "result" label.
const (
	resultOK          = "ok"
	resultThrown      = "thrown"
	resultInterrupted = "interrupted"
	resultInvalidated = "invalidated"
)

// Metrics holds the engine's Prometheus collectors
type Metrics struct {
	ContextsCreated  prometheus.Counter
	ContextsDisposed prometheus.Counter
	ContextsActive   prometheus.Gauge
	ScriptsCompiled  *prometheus.CounterVec
	Runs             *prometheus.CounterVec
	RunDuration      prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ContextsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "contextbox_contexts_created_total",
			Help: "Total number of execution contexts created",
		}),
		ContextsDisposed: factory.NewCounter(prometheus.CounterOpts{
			Name: "contextbox_contexts_disposed_total",
			Help: "Total number of execution contexts invalidated after their sandbox was collected",
		}),
		ContextsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "contextbox_contexts_active",
			Help: "Number of execution contexts currently alive",
		}),
		ScriptsCompiled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextbox_scripts_compiled_total",
				Help: "Total number of compile attempts",
			},
			[]string{"result"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextbox_runs_total",
				Help: "Total number of script runs",
			},
			[]string{"result"},
		),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contextbox_run_duration_seconds",
			Help:    "Script run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
