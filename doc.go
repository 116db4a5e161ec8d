// Package crontimer is a cron-driven event timer for Go applications.
//
// Scheduling (pkg/scheduling):
//   - crontimer: Timer that raises notifications for payloads on cron schedules
//   - expression: Five and six field cron expressions, combinable with ", "
//
// Sinks (pkg/sink):
//   - redisstream: Publish notifications to a Redis stream
//
// Supporting packages:
//   - metrics: Prometheus collectors for timers and sinks
//   - common: Errors, validation, clock and context helpers
//
// The crontimerd command (cmd/crontimerd) runs a timer from a YAML file.
//
// Example usage:
//
//	import "github.com/vnykmshr/crontimer/pkg/scheduling/crontimer"
//
//	timer := crontimer.New[string]()
//	defer func() { <-timer.Dispose() }()
//
//	timer.Subscribe(func(ctx context.Context, n crontimer.Notification[string]) error {
//		log.Printf("%s is due", n.Data)
//		return nil
//	})
//	timer.AddEvent(ctx, "0 */15 * * * *", "refresh-cache")
//	timer.Start()
package crontimer
