package crontimer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	cterrors "github.com/vnykmshr/crontimer/pkg/common/errors"
)

// registry is the ordered set of scheduled events. Every read and write goes
// through guard, a weight-1 semaphore, so waiting callers can give up when
// their context ends instead of blocking.
type registry[T any] struct {
	guard     *semaphore.Weighted
	events    []*ScheduledEvent[T]
	maxEvents int
}

// dueEvent is an event found due during a scan.
type dueEvent[T any] struct {
	event      *ScheduledEvent[T]
	expression string
	at         time.Time
}

func newRegistry[T any](maxEvents int) *registry[T] {
	return &registry[T]{
		guard:     semaphore.NewWeighted(1),
		maxEvents: maxEvents,
	}
}

func (r *registry[T]) acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := r.guard.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire event registry: %w", err)
	}
	return nil
}

func (r *registry[T]) release() {
	r.guard.Release(1)
}

// add appends e and returns the new registry size.
func (r *registry[T]) add(ctx context.Context, e *ScheduledEvent[T]) (int, error) {
	if err := r.acquire(ctx); err != nil {
		return 0, err
	}
	defer r.release()

	if r.maxEvents > 0 && len(r.events) >= r.maxEvents {
		return len(r.events), fmt.Errorf("cannot add event: maximum number of events (%d) reached: %w",
			r.maxEvents, cterrors.ErrCapacityExceeded)
	}
	r.events = append(r.events, e)
	return len(r.events), nil
}

// remove deletes every event whose payload satisfies match, keeping the
// order of the rest. It returns the number removed and the remaining size.
func (r *registry[T]) remove(ctx context.Context, match func(T) bool) (int, int, error) {
	if err := r.acquire(ctx); err != nil {
		return 0, 0, err
	}
	defer r.release()

	// Build into a fresh slice so a panicking match leaves the registry intact.
	kept := make([]*ScheduledEvent[T], 0, len(r.events))
	for _, e := range r.events {
		if !match(e.Data()) {
			kept = append(kept, e)
		}
	}
	removed := len(r.events) - len(kept)
	r.events = kept
	return removed, len(r.events), nil
}

// snapshot returns a copy of the registered events in order.
func (r *registry[T]) snapshot(ctx context.Context) ([]*ScheduledEvent[T], error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	out := make([]*ScheduledEvent[T], len(r.events))
	copy(out, r.events)
	return out, nil
}

// scan returns, in registry order, every event whose next occurrence after
// baseline is not later than now.
func (r *registry[T]) scan(ctx context.Context, now, baseline time.Time) ([]dueEvent[T], int, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, 0, err
	}
	defer r.release()

	var due []dueEvent[T]
	for _, e := range r.events {
		sched := e.Schedule()
		next := sched.Next(baseline)
		if next.IsZero() || now.Before(next) {
			continue
		}
		due = append(due, dueEvent[T]{event: e, expression: sched.String(), at: next})
	}
	return due, len(r.events), nil
}
