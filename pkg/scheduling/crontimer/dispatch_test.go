package crontimer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vnykmshr/crontimer/internal/testutil"
	cterrors "github.com/vnykmshr/crontimer/pkg/common/errors"
)

// syncBuffer guards a bytes.Buffer for use as a concurrent log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDispatch_ConcurrentSlowHandler(t *testing.T) {
	timer, clk := newMockTimer(t, Config[string]{Policy: Concurrent})

	release := make(chan struct{})
	var fast, slowStarted int32
	timer.Subscribe(func(_ context.Context, n Notification[string]) error {
		if n.Data == "slow" {
			atomic.AddInt32(&slowStarted, 1)
			<-release
			return nil
		}
		atomic.AddInt32(&fast, 1)
		return nil
	})
	mustAdd(t, timer, "* * * * * *", "slow")
	mustAdd(t, timer, "* * * * * *", "fast")

	// The loop keeps ticking while the slow handlers are blocked.
	startAndSettle(t, timer, clk)
	step(t, clk, 2)
	testutil.WaitForInt32(t, &fast, 3, testutil.TestTimeout)
	testutil.WaitForInt32(t, &slowStarted, 3, testutil.TestTimeout)

	stopped := timer.Stop()
	select {
	case <-stopped:
		t.Fatal("Stop completed while handlers were still running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(testutil.TestTimeout):
		t.Fatal("Stop did not complete after handlers returned")
	}
}

func TestDispatch_HandlerContextSurvivesStop(t *testing.T) {
	timer, clk := newMockTimer(t, Config[string]{Policy: Concurrent})

	entered := make(chan struct{})
	release := make(chan struct{})
	ctxErr := make(chan error, 1)
	timer.Subscribe(func(ctx context.Context, _ Notification[string]) error {
		close(entered)
		<-release
		ctxErr <- ctx.Err()
		return nil
	})
	mustAdd(t, timer, "0 0 10 * * *", "once")

	startAndSettle(t, timer, clk)
	<-entered
	stopped := timer.Stop()
	close(release)
	<-stopped

	if err := <-ctxErr; err != nil {
		t.Errorf("handler context canceled by Stop: %v", err)
	}
}

func TestDispatch_ErrorAndPanicIsolation(t *testing.T) {
	var (
		mu      sync.Mutex
		results []Result[string]
		failed  []Result[string]
	)
	timer, clk := newMockTimer(t, Config[string]{
		Policy: Inline,
		OnResult: func(r Result[string]) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
		OnError: func(r Result[string]) {
			mu.Lock()
			failed = append(failed, r)
			mu.Unlock()
		},
	})

	rec := &recorder{}
	timer.Subscribe(func(_ context.Context, n Notification[string]) error {
		switch n.Data {
		case "panics":
			panic("kaboom")
		case "fails":
			return errors.New("upstream unavailable")
		}
		return nil
	})
	timer.Subscribe(rec.handle)

	mustAdd(t, timer, "* * * * * *", "panics")
	mustAdd(t, timer, "* * * * * *", "fails")
	mustAdd(t, timer, "* * * * * *", "ok")

	startAndSettle(t, timer, clk)
	step(t, clk, 1)
	<-timer.Stop()

	// The second subscriber saw every event on both ticks.
	testutil.AssertEqual(t, len(rec.values()), 6)
	testutil.AssertEqual(t, timer.Len(), 3)

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertEqual(t, len(results), 12)
	testutil.AssertEqual(t, len(failed), 4)

	for _, r := range failed {
		var herr *cterrors.HandlerError
		if !errors.As(r.Err, &herr) {
			t.Fatalf("error %v is not a HandlerError", r.Err)
		}
		if herr.EventID != r.Notification.EventID {
			t.Errorf("HandlerError.EventID = %q, want %q", herr.EventID, r.Notification.EventID)
		}
		switch r.Notification.Data {
		case "panics":
			if herr.Panic != "kaboom" || len(herr.Stack) == 0 {
				t.Errorf("panic not captured: %+v", herr)
			}
		case "fails":
			if herr.Panic != nil || !strings.Contains(herr.Error(), "upstream unavailable") {
				t.Errorf("unexpected handler error: %v", herr)
			}
		default:
			t.Errorf("unexpected failure for %q", r.Notification.Data)
		}
		if r.Policy != Inline {
			t.Errorf("Policy = %v, want inline", r.Policy)
		}
	}
}

func TestDispatch_HookPanicIsContained(t *testing.T) {
	timer, clk := newMockTimer(t, Config[string]{
		Policy:   Inline,
		OnResult: func(Result[string]) { panic("hook") },
	})
	rec := &recorder{}
	timer.Subscribe(rec.handle)
	mustAdd(t, timer, "* * * * * *", "A")

	startAndSettle(t, timer, clk)
	step(t, clk, 2)
	<-timer.Stop()

	testutil.AssertEqual(t, rec.count("A"), 3)
}

func TestDispatch_ErrorLogThrottled(t *testing.T) {
	out := &syncBuffer{}
	timer, clk := newMockTimer(t, Config[string]{
		Policy:        Inline,
		Logger:        zerolog.New(out),
		ErrorLogRate:  rate.Every(time.Hour),
		ErrorLogBurst: 1,
	})

	var failures int32
	timer.Subscribe(func(context.Context, Notification[string]) error {
		atomic.AddInt32(&failures, 1)
		return errors.New("nope")
	})
	mustAdd(t, timer, "* * * * * *", "A")
	mustAdd(t, timer, "* * * * * *", "B")

	startAndSettle(t, timer, clk)
	step(t, clk, 2)
	<-timer.Stop()

	testutil.AssertEqual(t, atomic.LoadInt32(&failures), int32(6))
	testutil.AssertEqual(t, strings.Count(out.String(), "notification handler failed"), 1)
	if !strings.Contains(out.String(), "timer started") {
		t.Errorf("lifecycle not logged: %s", out.String())
	}
}

func TestDispatch_ReentrantRegistryChanges(t *testing.T) {
	timer, clk := newMockTimer(t, Config[string]{Policy: Inline})

	rec := &recorder{}
	timer.Subscribe(func(ctx context.Context, n Notification[string]) error {
		switch n.Data {
		case "spawner":
			if _, err := n.Timer.AddEvent(ctx, "* * * * * *", "child"); err != nil {
				return err
			}
			_, err := n.Timer.RemoveEvents(ctx, func(s string) bool { return s == "spawner" })
			return err
		}
		return nil
	})
	timer.Subscribe(rec.handle)
	mustAdd(t, timer, "* * * * * *", "spawner")

	startAndSettle(t, timer, clk)
	step(t, clk, 2)
	<-timer.Stop()

	testutil.AssertEqual(t, rec.count("spawner"), 1)
	testutil.AssertEqual(t, rec.count("child"), 2)

	events, err := timer.Events(context.Background())
	testutil.AssertNoError(t, err)
	if len(events) != 1 || events[0].Data() != "child" {
		t.Errorf("registry after handler changes = %v", events)
	}
}

func TestDispatch_Unsubscribe(t *testing.T) {
	timer, clk := newMockTimer(t, Config[string]{Policy: Inline})

	kept, dropped := &recorder{}, &recorder{}
	timer.Subscribe(kept.handle)
	unsubscribe := timer.Subscribe(dropped.handle)
	mustAdd(t, timer, "* * * * * *", "A")

	startAndSettle(t, timer, clk)
	unsubscribe()
	step(t, clk, 2)
	<-timer.Stop()

	testutil.AssertEqual(t, kept.count("A"), 3)
	testutil.AssertEqual(t, dropped.count("A"), 1)
}

func TestDispatch_ExpressionChangeTakesEffect(t *testing.T) {
	timer, clk := newMockTimer(t, Config[string]{Policy: Inline})
	rec := &recorder{}
	timer.Subscribe(rec.handle)
	e := mustAdd(t, timer, "* * * * * *", "A")

	startAndSettle(t, timer, clk)
	testutil.AssertNoError(t, e.SetExpression("0 0 0 1 1 *"))
	step(t, clk, 3)
	<-timer.Stop()

	testutil.AssertEqual(t, rec.count("A"), 1)
	if got := rec.notifications()[0].Expression; got != "* * * * * *" {
		t.Errorf("Expression = %q", got)
	}
}
