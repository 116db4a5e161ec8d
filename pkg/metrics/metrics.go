package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for crontimer components.
type Registry struct {
	// Polling loop
	LoopTicks        *prometheus.CounterVec
	LoopTickDuration *prometheus.HistogramVec
	LoopOverruns     *prometheus.CounterVec
	LoopRunning      *prometheus.GaugeVec

	// Events and dispatch
	EventsDue        *prometheus.CounterVec
	EventsRegistered *prometheus.GaugeVec
	Dispatched       *prometheus.CounterVec
	DispatchFailures *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Sinks
	SinkPublished *prometheus.CounterVec
	SinkErrors    *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return newRegistry(reg, DefaultNamespace)
}

func newRegistry(reg prometheus.Registerer, namespace string) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		LoopTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loop",
				Name:      "ticks_total",
				Help:      "Total number of polling loop ticks",
			},
			[]string{"timer_name"},
		),

		LoopTickDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "loop",
				Name:      "tick_duration_seconds",
				Help:      "Time spent scanning the registry and dispatching per tick",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"timer_name"},
		),

		LoopOverruns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loop",
				Name:      "overruns_total",
				Help:      "Ticks that took longer than the configured resolution",
			},
			[]string{"timer_name"},
		),

		LoopRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "loop",
				Name:      "running",
				Help:      "1 while the polling loop is running",
			},
			[]string{"timer_name"},
		),

		EventsDue: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "due_total",
				Help:      "Total number of events found due by the polling loop",
			},
			[]string{"timer_name"},
		),

		EventsRegistered: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "registered",
				Help:      "Number of events currently registered",
			},
			[]string{"timer_name"},
		),

		Dispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "total",
				Help:      "Total number of notifications delivered to handlers",
			},
			[]string{"timer_name", "policy"},
		),

		DispatchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "failures_total",
				Help:      "Total number of handler errors and panics",
			},
			[]string{"timer_name", "policy"},
		),

		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Time spent in notification handlers",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"timer_name", "policy"},
		),

		SinkPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sink",
				Name:      "published_total",
				Help:      "Total number of notifications published to a sink",
			},
			[]string{"stream"},
		),

		SinkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sink",
				Name:      "errors_total",
				Help:      "Total number of failed sink publishes",
			},
			[]string{"stream"},
		),
	}
}
