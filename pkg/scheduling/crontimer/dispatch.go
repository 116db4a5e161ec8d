package crontimer

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	cterrors "github.com/vnykmshr/crontimer/pkg/common/errors"
)

// Notification is delivered to handlers when an event becomes due.
type Notification[T any] struct {
	// Timer is the timer that raised the notification. Handlers may call its
	// AddEvent and RemoveEvents methods.
	Timer *Timer[T]

	EventID    string
	Expression string
	Data       T

	// Due is the occurrence that made the event due; Tick is the loop time
	// at which it was detected.
	Due  time.Time
	Tick time.Time
}

// Handler consumes notifications. A returned error or a panic is reported
// through Config.OnError and the timer's logger; it never stops the loop or
// unregisters the event.
type Handler[T any] func(ctx context.Context, n Notification[T]) error

// Result describes one completed handler invocation.
type Result[T any] struct {
	Notification Notification[T]
	Policy       DispatchPolicy

	// Err is nil on success, otherwise a *errors.HandlerError.
	Err      error
	Duration time.Duration
}

type subscription[T any] struct {
	id      uint64
	handler Handler[T]
}

type subscribers[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	list   []subscription[T]
}

func (s *subscribers[T]) add(h Handler[T]) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.list = append(s.list, subscription[T]{id: s.nextID, handler: h})
	return s.nextID
}

func (s *subscribers[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.list {
		if sub.id == id {
			s.list = append(s.list[:i:i], s.list[i+1:]...)
			return
		}
	}
}

func (s *subscribers[T]) snapshot() []Handler[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Handler[T], len(s.list))
	for i, sub := range s.list {
		out[i] = sub.handler
	}
	return out
}

func (s *subscribers[T]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}

// dispatch delivers every due event to every handler. The registry guard is
// not held here, so handlers may mutate the registry.
func (t *Timer[T]) dispatch(ctx context.Context, r *run, tick time.Time, due []dueEvent[T], policy DispatchPolicy) {
	handlers := t.subs.snapshot()
	if len(handlers) == 0 {
		return
	}

	for _, d := range due {
		n := Notification[T]{
			Timer:      t,
			EventID:    d.event.ID(),
			Expression: d.expression,
			Data:       d.event.Data(),
			Due:        d.at,
			Tick:       tick,
		}
		for _, h := range handlers {
			if policy == Inline {
				t.invoke(ctx, h, n, policy)
				continue
			}
			r.inflight.Add(1)
			go func(h Handler[T]) {
				defer r.inflight.Done()
				t.invoke(ctx, h, n, policy)
			}(h)
		}
	}
}

// invoke runs one handler and reports its outcome. Panics are recovered here
// so neither the loop nor other notifications are affected.
func (t *Timer[T]) invoke(ctx context.Context, h Handler[T], n Notification[T], policy DispatchPolicy) {
	start := time.Now()
	var err error

	defer func() {
		if rec := recover(); rec != nil {
			err = &cterrors.HandlerError{
				EventID: n.EventID,
				Err:     fmt.Errorf("panic: %v", rec),
				Panic:   rec,
				Stack:   debug.Stack(),
			}
		}
		t.report(Result[T]{
			Notification: n,
			Policy:       policy,
			Err:          err,
			Duration:     time.Since(start),
		})
	}()

	if herr := h(ctx, n); herr != nil {
		err = &cterrors.HandlerError{EventID: n.EventID, Err: herr}
	}
}

// report records a handler outcome in metrics, hooks and logs.
func (t *Timer[T]) report(res Result[T]) {
	policy := res.Policy.String()
	if t.metrics != nil {
		t.metrics.Dispatched.WithLabelValues(t.name, policy).Inc()
		t.metrics.DispatchDuration.WithLabelValues(t.name, policy).Observe(res.Duration.Seconds())
		if res.Err != nil {
			t.metrics.DispatchFailures.WithLabelValues(t.name, policy).Inc()
		}
	}

	if t.onResult != nil {
		t.callHook("OnResult", func() { t.onResult(res) })
	}
	if res.Err == nil {
		return
	}
	if t.onError != nil {
		t.callHook("OnError", func() { t.onError(res) })
	}
	if t.errLimiter.Allow() {
		t.logger.Error().
			Err(res.Err).
			Str("event_id", res.Notification.EventID).
			Str("expression", res.Notification.Expression).
			Str("policy", policy).
			Dur("duration", res.Duration).
			Msg("notification handler failed")
	}
}

func (t *Timer[T]) callHook(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			t.logger.Error().
				Interface("panic", rec).
				Str("hook", name).
				Msg("result hook panicked")
		}
	}()
	fn()
}
