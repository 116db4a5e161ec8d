package crontimer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/crontimer/internal/testutil"
	"github.com/vnykmshr/crontimer/pkg/scheduling/expression"
)

var (
	testStart = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	utcParser = expression.NewParser(nil, time.UTC)
)

// recorder collects notifications in delivery order.
type recorder struct {
	mu  sync.Mutex
	got []Notification[string]
}

func (r *recorder) handle(_ context.Context, n Notification[string]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.got))
	for i, n := range r.got {
		out[i] = n.Data
	}
	return out
}

func (r *recorder) notifications() []Notification[string] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification[string], len(r.got))
	copy(out, r.got)
	return out
}

func (r *recorder) count(data string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.got {
		if got.Data == data {
			n++
		}
	}
	return n
}

// newMockTimer returns a timer driven by a mock clock at testStart. The
// timer is disposed when the test ends.
func newMockTimer(t *testing.T, cfg Config[string]) (*Timer[string], *testutil.MockClock) {
	t.Helper()
	clk := testutil.NewMockClock(testStart)
	cfg.Clock = clk
	if cfg.Parser == nil {
		cfg.Parser = utcParser
	}
	timer, err := NewWithConfig(cfg)
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { <-timer.Dispose() })
	return timer, clk
}

// startAndSettle starts the timer and waits for the first tick to finish.
func startAndSettle(t *testing.T, timer *Timer[string], clk *testutil.MockClock) {
	t.Helper()
	testutil.AssertNoError(t, timer.Start())
	clk.WaitForTimers(t, 1)
}

// step advances the clock one second and waits for the resulting tick.
func step(t *testing.T, clk *testutil.MockClock, ticks int) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		clk.Advance(time.Second)
		clk.WaitForTimers(t, 1)
	}
}

func mustAdd(t *testing.T, timer *Timer[string], expr, data string) *ScheduledEvent[string] {
	t.Helper()
	e, err := timer.AddEvent(context.Background(), expr, data)
	testutil.AssertNoError(t, err)
	return e
}
