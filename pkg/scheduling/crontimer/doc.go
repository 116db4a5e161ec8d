// Package crontimer raises notifications for opaque payloads on cron schedules.
//
// A Timer owns an ordered registry of ScheduledEvents, each binding a cron
// expression to a payload of type T. A background polling loop wakes every
// Resolution, finds the events that have become due and hands their payloads to
// the subscribed handlers. The timer never looks at the payload.
//
// Basic Usage:
//
//	timer := crontimer.New[string]()
//	defer func() { <-timer.Dispose() }()
//
//	timer.Subscribe(func(ctx context.Context, n crontimer.Notification[string]) error {
//		fmt.Println("due:", n.Data)
//		return nil
//	})
//
//	if _, err := timer.AddEvent(ctx, "*/2 * * * * *", "sync-inventory"); err != nil {
//		return err
//	}
//	if err := timer.Start(); err != nil {
//		return err
//	}
//
// Expressions:
//
// Expressions have five fields (minute precision) or six fields (a leading
// seconds field). Several schedules can be combined with ", ". See the
// expression package for the grammar. Invalid expressions are rejected when the
// event is created, so an invalid event is never registered.
//
// Due Occurrences:
//
// On every tick the loop takes now, computes baseline = now - Resolution and
// treats an event as due when its next occurrence after the baseline is not
// later than now. Looking back one resolution catches occurrences that fell
// between two ticks, provided Resolution is not coarser than the finest field in
// use. If a tick (scan plus inline dispatch) takes longer than Resolution the
// same occurrence may be seen twice, or one may be skipped; such ticks are
// logged as overruns and counted in metrics. Missed occurrences are never
// replayed.
//
// Dispatch Policies:
//
//	Concurrent (default): every notification runs on its own goroutine. The loop
//	does not wait, and no ordering holds between notifications of one tick.
//
//	Inline: notifications run one at a time on the loop goroutine, in registry
//	order. A slow handler holds up the loop, including later ticks.
//
// Handler errors and panics are caught at the dispatch boundary in both modes.
// They are reported to Config.OnError, logged through the configured zerolog
// logger and counted in metrics; the loop and the event are unaffected.
//
// Concurrency:
//
// AddEvent, RemoveEvents and ScheduledEvent.SetExpression are safe to call from
// any goroutine, including from inside a handler. The registry is guarded by a
// single context-aware lock: mutations and scans are totally ordered, and a scan
// never sees a half-applied mutation. Dispatch happens after the lock is released.
//
// Lifecycle:
//
// Start on a running timer and Stop on an idle timer are no-ops. Stop returns a
// channel that closes when the loop and its in-flight concurrent notifications
// have finished. Dispose stops the timer permanently.
package crontimer
