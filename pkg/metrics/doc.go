// Package metrics provides Prometheus instrumentation for crontimer components.
//
// # Overview
//
// The metrics package instruments:
//   - The polling loop (ticks, tick duration, overruns, running loops)
//   - Due events and dispatched notifications, split by dispatch policy
//   - Handler failures and handler duration
//   - The size of each timer's event registry
//   - Redis stream sinks (entries published, publish errors)
//
// # Quick Start
//
// Pass a registry to the timer configuration:
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	timer, err := crontimer.NewWithConfig[string](crontimer.Config{
//		Name:    "billing",
//		Metrics: reg,
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Available Metrics
//
//   - crontimer_loop_ticks_total
//   - crontimer_loop_tick_duration_seconds
//   - crontimer_loop_overruns_total: ticks whose scan and dispatch took longer
//     than the resolution. Occurrences may be seen twice or skipped around these.
//   - crontimer_loop_running
//   - crontimer_events_due_total
//   - crontimer_events_registered
//   - crontimer_dispatch_total{policy}
//   - crontimer_dispatch_failures_total{policy}
//   - crontimer_dispatch_duration_seconds{policy}
//   - crontimer_sink_published_total{stream}
//   - crontimer_sink_errors_total{stream}
//
// Every timer metric carries a timer_name label.
package metrics
