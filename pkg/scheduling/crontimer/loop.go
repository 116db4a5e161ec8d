package crontimer

import (
	"context"
	"runtime/debug"
	"time"

	ctxutil "github.com/vnykmshr/crontimer/pkg/common/context"
)

// loop polls the registry until ctx is canceled. Each tick looks back one
// resolution: an event is due when its next occurrence after now-resolution
// is not later than now. If a tick takes longer than the resolution an
// occurrence can be seen on two ticks, or skipped; this is logged as an
// overrun and otherwise left alone.
func (t *Timer[T]) loop(ctx context.Context, r *run) {
	defer func() {
		r.inflight.Wait()
		t.logger.Info().Msg("timer stopped")
		close(r.done)
	}()

	handlerCtx := ctxutil.Detached(ctx)
	for {
		if ctxutil.IsCanceled(ctx) {
			return
		}

		resolution := t.Resolution()
		start := t.clock.Now()
		t.tick(ctx, handlerCtx, r, start, resolution)

		if elapsed := t.clock.Now().Sub(start); elapsed > resolution {
			if t.metrics != nil {
				t.metrics.LoopOverruns.WithLabelValues(t.name).Inc()
			}
			t.logger.Warn().
				Dur("elapsed", elapsed).
				Dur("resolution", resolution).
				Msg("tick took longer than the resolution; occurrences may repeat or be skipped")
		}

		timer := t.clock.NewTimer(t.Resolution())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}
	}
}

// tick scans the registry under its guard, then dispatches outside it.
func (t *Timer[T]) tick(ctx, handlerCtx context.Context, r *run, now time.Time, resolution time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			t.logger.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("tick panicked")
		}
	}()

	began := time.Now()
	due, size, err := t.registry.scan(ctx, now, now.Add(-resolution))
	if err != nil {
		// Only a canceled context fails the acquire; the loop exits next.
		return
	}

	if t.metrics != nil {
		t.metrics.LoopTicks.WithLabelValues(t.name).Inc()
		t.metrics.EventsRegistered.WithLabelValues(t.name).Set(float64(size))
		t.metrics.EventsDue.WithLabelValues(t.name).Add(float64(len(due)))
		defer func() {
			t.metrics.LoopTickDuration.WithLabelValues(t.name).Observe(time.Since(began).Seconds())
		}()
	}

	if len(due) > 0 {
		t.logger.Debug().
			Int("due", len(due)).
			Int("registered", size).
			Time("tick", now).
			Msg("dispatching due events")
	}

	t.dispatch(handlerCtx, r, now, due, t.Policy())
}
