package redisstream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/crontimer/internal/testutil"
	cterrors "github.com/vnykmshr/crontimer/pkg/common/errors"
	"github.com/vnykmshr/crontimer/pkg/metrics"
	"github.com/vnykmshr/crontimer/pkg/scheduling/crontimer"
)

type fakeStream struct {
	mu   sync.Mutex
	adds []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return redis.NewStringResult("", errors.New("xadd called without a deadline"))
	}
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	f.adds = append(f.adds, a)
	return redis.NewStringResult("1700000000000-0", nil)
}

type fakeGroups struct {
	err error
}

func (f fakeGroups) XGroupCreateMkStream(context.Context, string, string, string) *redis.StatusCmd {
	return redis.NewStatusResult("OK", f.err)
}

var (
	due  = time.Date(2024, 1, 1, 10, 0, 2, 0, time.UTC)
	tick = due.Add(300 * time.Millisecond)
)

func notification(data int) crontimer.Notification[int] {
	return crontimer.Notification[int]{
		EventID:    "evt-1",
		Expression: "*/2 * * * * *",
		Data:       data,
		Due:        due,
		Tick:       tick,
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config[int]
	}{
		{"missing client", Config[int]{Stream: "s"}},
		{"missing stream", Config[int]{Client: &fakeStream{}, Stream: "  "}},
		{"negative max len", Config[int]{Client: &fakeStream{}, Stream: "s", MaxLen: -1}},
		{"negative timeout", Config[int]{Client: &fakeStream{}, Stream: "s", Timeout: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !cterrors.IsValidationError(err) {
				t.Errorf("error = %v, want validation error", err)
			}
		})
	}
}

func TestPublisher_Publish(t *testing.T) {
	client := &fakeStream{}
	pub, err := New(Config[int]{Client: client, Stream: "jobs"})
	testutil.AssertNoError(t, err)

	id, err := pub.Publish(context.Background(), notification(42))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, id, "1700000000000-0")

	if len(client.adds) != 1 {
		t.Fatalf("got %d XADD calls, want 1", len(client.adds))
	}
	args := client.adds[0]
	testutil.AssertEqual(t, args.Stream, "jobs")
	testutil.AssertEqual(t, args.MaxLen, int64(0))

	want := map[string]any{
		"timer":      "",
		"event_id":   "evt-1",
		"expression": "*/2 * * * * *",
		"due":        "2024-01-01T10:00:02Z",
		"tick":       "2024-01-01T10:00:02.3Z",
		"payload":    "42",
	}
	if diff := cmp.Diff(want, args.Values); diff != "" {
		t.Errorf("entry fields mismatch (-want +got):\n%s", diff)
	}
}

func TestPublisher_MaxLenAndEncoder(t *testing.T) {
	client := &fakeStream{}
	pub, err := New(Config[int]{
		Client: client,
		Stream: "jobs",
		MaxLen: 100,
		Encoder: func(v int) (string, error) {
			if v < 0 {
				return "", errors.New("negative payload")
			}
			return strings.Repeat("x", v), nil
		},
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, pub.Handle(context.Background(), notification(3)))
	args := client.adds[0]
	testutil.AssertEqual(t, args.MaxLen, int64(100))
	testutil.AssertEqual(t, args.Approx, true)
	testutil.AssertEqual(t, args.Values.(map[string]any)["payload"], any("xxx"))

	if err := pub.Handle(context.Background(), notification(-1)); err == nil {
		t.Error("expected encoder error")
	}
	testutil.AssertEqual(t, len(client.adds), 1)
}

func TestPublisher_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)
	client := &fakeStream{}
	pub, err := New(Config[int]{Client: client, Stream: "jobs", Metrics: m})
	testutil.AssertNoError(t, err)

	ctx := context.Background()
	testutil.AssertNoError(t, pub.Handle(ctx, notification(1)))
	testutil.AssertNoError(t, pub.Handle(ctx, notification(2)))

	client.err = errors.New("connection refused")
	err = pub.Handle(ctx, notification(3))
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error = %v, want wrapped redis error", err)
	}

	testutil.AssertEqual(t, promtestutil.ToFloat64(m.SinkPublished.WithLabelValues("jobs")), float64(2))
	testutil.AssertEqual(t, promtestutil.ToFloat64(m.SinkErrors.WithLabelValues("jobs")), float64(1))
}

func TestPublisher_AsTimerHandler(t *testing.T) {
	client := &fakeStream{}
	pub, err := New(Config[string]{Client: client, Stream: "jobs"})
	testutil.AssertNoError(t, err)

	timer, err := crontimer.NewWithConfig(crontimer.Config[string]{Name: "nightly", Policy: crontimer.Inline})
	testutil.AssertNoError(t, err)
	timer.Subscribe(pub.Handle)
	_, err = timer.AddEvent(context.Background(), "* * * * * *", "backup")
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, timer.Start())
	testutil.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.adds) > 0
	}, testutil.TestTimeout, 10*time.Millisecond)
	<-timer.Dispose()

	client.mu.Lock()
	defer client.mu.Unlock()
	values := client.adds[0].Values.(map[string]any)
	testutil.AssertEqual(t, values["timer"], any("nightly"))
	testutil.AssertEqual(t, values["payload"], any("backup"))
}

func TestEnsureGroup(t *testing.T) {
	ctx := context.Background()

	testutil.AssertNoError(t, EnsureGroup(ctx, fakeGroups{}, "jobs", "workers"))
	testutil.AssertNoError(t, EnsureGroup(ctx, fakeGroups{
		err: errors.New("BUSYGROUP Consumer Group name already exists"),
	}, "jobs", "workers"))

	if err := EnsureGroup(ctx, fakeGroups{err: errors.New("NOAUTH")}, "jobs", "workers"); err == nil {
		t.Error("expected error")
	}
}
