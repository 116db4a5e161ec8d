package crontimer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vnykmshr/crontimer/pkg/common/clock"
	cterrors "github.com/vnykmshr/crontimer/pkg/common/errors"
	"github.com/vnykmshr/crontimer/pkg/common/validation"
	"github.com/vnykmshr/crontimer/pkg/metrics"
	"github.com/vnykmshr/crontimer/pkg/scheduling/expression"
)

const module = "crontimer"

// DefaultResolution is the poll interval used when none is configured.
const DefaultResolution = time.Second

// Config holds timer configuration. The zero value is usable.
type Config[T any] struct {
	// Name labels logs and metrics (default: "crontimer").
	Name string

	// Resolution is the polling interval (default: 1s). It should not be
	// coarser than the finest field used by registered expressions.
	Resolution time.Duration

	// Policy selects concurrent (default) or inline dispatch.
	Policy DispatchPolicy

	// Parser parses event expressions (default: expression.Default).
	Parser *expression.Parser

	// Clock is the time source (default: clock.Real).
	Clock clock.Clock

	// Logger receives lifecycle, overrun and handler failure logs.
	// The zero value discards everything.
	Logger zerolog.Logger

	// ErrorLogRate and ErrorLogBurst throttle handler failure logs
	// (default: one per second, burst of 10). OnError is never throttled.
	ErrorLogRate  rate.Limit
	ErrorLogBurst int

	// MaxEvents caps the registry size (0 = unlimited).
	MaxEvents int

	// Metrics enables Prometheus collection when non-nil.
	Metrics *metrics.Registry

	// OnResult is called after every handler invocation.
	OnResult func(Result[T])

	// OnError is called for every failed or panicking handler invocation.
	OnError func(Result[T])
}

// Timer raises notifications for registered events whenever their cron
// schedule becomes due.
type Timer[T any] struct {
	name       string
	parser     *expression.Parser
	clock      clock.Clock
	logger     zerolog.Logger
	errLimiter *rate.Limiter
	metrics    *metrics.Registry
	onResult   func(Result[T])
	onError    func(Result[T])

	resolution atomic.Int64
	policy     atomic.Int32

	registry *registry[T]
	subs     subscribers[T]

	mu       sync.Mutex
	state    State
	disposed bool
	current  *run
}

// run is one Start..Stop cycle of the polling loop.
type run struct {
	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup
}

// New creates a timer with default configuration.
func New[T any]() *Timer[T] {
	t, err := NewWithConfig(Config[T]{})
	if err != nil {
		panic(err) // unreachable: the zero config is valid
	}
	return t
}

// NewWithResolution creates a timer polling at the given resolution.
func NewWithResolution[T any](resolution time.Duration) (*Timer[T], error) {
	if err := validation.ValidatePositiveDuration(module, "resolution", resolution); err != nil {
		return nil, err
	}
	return NewWithConfig(Config[T]{Resolution: resolution})
}

// NewWithConfig creates a timer with custom configuration.
func NewWithConfig[T any](cfg Config[T]) (*Timer[T], error) {
	if cfg.Resolution < 0 {
		return nil, validation.ValidatePositiveDuration(module, "resolution", cfg.Resolution)
	}
	if err := validation.ValidateNonNegative(module, "max_events", cfg.MaxEvents); err != nil {
		return nil, err
	}
	if cfg.Policy != Concurrent && cfg.Policy != Inline {
		return nil, cterrors.NewValidationError(module, "policy", cfg.Policy, "unknown dispatch policy")
	}

	name := cfg.Name
	if name == "" {
		name = module
	}
	resolution := cfg.Resolution
	if resolution == 0 {
		resolution = DefaultResolution
	}
	parser := cfg.Parser
	if parser == nil {
		parser = expression.Default
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	limit := cfg.ErrorLogRate
	if limit == 0 {
		limit = rate.Every(time.Second)
	}
	burst := cfg.ErrorLogBurst
	if burst <= 0 {
		burst = 10
	}

	t := &Timer[T]{
		name:       name,
		parser:     parser,
		clock:      clk,
		logger:     cfg.Logger.With().Str("timer", name).Logger(),
		errLimiter: rate.NewLimiter(limit, burst),
		metrics:    cfg.Metrics,
		onResult:   cfg.OnResult,
		onError:    cfg.OnError,
		registry:   newRegistry[T](cfg.MaxEvents),
	}
	t.resolution.Store(int64(resolution))
	t.policy.Store(int32(cfg.Policy))
	return t, nil
}

// Name returns the timer name.
func (t *Timer[T]) Name() string { return t.name }

// Resolution returns the polling interval.
func (t *Timer[T]) Resolution() time.Duration {
	return time.Duration(t.resolution.Load())
}

// SetResolution changes the polling interval. It takes effect after the
// current sleep.
func (t *Timer[T]) SetResolution(d time.Duration) error {
	if err := validation.ValidatePositiveDuration(module, "resolution", d); err != nil {
		return err
	}
	t.resolution.Store(int64(d))
	return nil
}

// Policy returns the dispatch policy.
func (t *Timer[T]) Policy() DispatchPolicy {
	return DispatchPolicy(t.policy.Load())
}

// SetPolicy changes the dispatch policy. It takes effect on the next tick.
// Unknown policies are ignored.
func (t *Timer[T]) SetPolicy(p DispatchPolicy) {
	if p != Concurrent && p != Inline {
		return
	}
	t.policy.Store(int32(p))
}

// State returns the lifecycle state.
func (t *Timer[T]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsRunning reports whether the polling loop is active.
func (t *Timer[T]) IsRunning() bool {
	return t.State() == Running
}

// Subscribe registers h for every notification. The returned function
// removes the subscription; handlers already dispatched still run.
func (t *Timer[T]) Subscribe(h Handler[T]) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}
	id := t.subs.add(h)
	var once sync.Once
	return func() {
		once.Do(func() { t.subs.remove(id) })
	}
}

// Subscribers returns the number of registered handlers.
func (t *Timer[T]) Subscribers() int {
	return t.subs.len()
}

// Start launches the polling loop. Starting a running timer does nothing.
// A disposed timer returns errors.ErrClosed.
func (t *Timer[T]) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed {
		return fmt.Errorf("cannot start %s: %w", t.name, cterrors.ErrClosed)
	}
	if t.state == Running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, done: make(chan struct{})}
	t.current = r
	t.state = Running

	if t.metrics != nil {
		t.metrics.LoopRunning.WithLabelValues(t.name).Set(1)
	}
	t.logger.Info().
		Dur("resolution", t.Resolution()).
		Str("policy", t.Policy().String()).
		Msg("timer started")

	go t.loop(ctx, r)
	return nil
}

// Stop signals the polling loop to exit. The returned channel closes once
// the loop has finished its current tick and every concurrent notification
// it started has returned. Stopping an idle timer returns a closed channel.
//
// Do not wait on the channel from inside a handler.
func (t *Timer[T]) Stop() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Running {
		done := make(chan struct{})
		close(done)
		return done
	}

	r := t.current
	t.current = nil
	t.state = Stopped
	r.cancel()

	if t.metrics != nil {
		t.metrics.LoopRunning.WithLabelValues(t.name).Set(0)
	}
	t.logger.Info().Msg("timer stopping")
	return r.done
}

// Dispose stops the timer and releases its loop for good. Later calls to
// Start return errors.ErrClosed; the registry remains usable. The returned
// channel behaves like the one from Stop.
func (t *Timer[T]) Dispose() <-chan struct{} {
	done := t.Stop()

	t.mu.Lock()
	t.disposed = true
	t.mu.Unlock()
	return done
}

// AddEvent parses expr and registers a new event carrying data. Nothing is
// registered if expr is invalid.
func (t *Timer[T]) AddEvent(ctx context.Context, expr string, data T) (*ScheduledEvent[T], error) {
	e, err := NewScheduledEventWithParser(t.parser, expr, data)
	if err != nil {
		return nil, err
	}
	if err := t.Add(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Add registers an already constructed event.
func (t *Timer[T]) Add(ctx context.Context, e *ScheduledEvent[T]) error {
	if e == nil {
		return cterrors.NewValidationError(module, "event", nil, "cannot be nil")
	}
	size, err := t.registry.add(ctx, e)
	if err != nil {
		return err
	}
	t.setRegistered(size)
	t.logger.Debug().
		Str("event_id", e.ID()).
		Str("expression", e.Expression()).
		Msg("event added")
	return nil
}

// RemoveEvents removes every event whose payload satisfies match and returns
// how many were removed.
func (t *Timer[T]) RemoveEvents(ctx context.Context, match func(T) bool) (int, error) {
	if match == nil {
		return 0, cterrors.NewValidationError(module, "predicate", nil, "cannot be nil")
	}
	removed, size, err := t.registry.remove(ctx, match)
	if err != nil {
		return 0, err
	}
	t.setRegistered(size)
	if removed > 0 {
		t.logger.Debug().Int("removed", removed).Msg("events removed")
	}
	return removed, nil
}

// Events returns the registered events in registry order.
func (t *Timer[T]) Events(ctx context.Context) ([]*ScheduledEvent[T], error) {
	return t.registry.snapshot(ctx)
}

// Len returns the number of registered events.
func (t *Timer[T]) Len() int {
	events, err := t.registry.snapshot(context.Background())
	if err != nil {
		return 0
	}
	return len(events)
}

func (t *Timer[T]) setRegistered(n int) {
	if t.metrics != nil {
		t.metrics.EventsRegistered.WithLabelValues(t.name).Set(float64(n))
	}
}
