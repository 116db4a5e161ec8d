package redisstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	cterrors "github.com/vnykmshr/crontimer/pkg/common/errors"
	"github.com/vnykmshr/crontimer/pkg/common/validation"
	"github.com/vnykmshr/crontimer/pkg/metrics"
	"github.com/vnykmshr/crontimer/pkg/scheduling/crontimer"
)

const module = "redisstream"

// DefaultTimeout bounds a single XADD when Config.Timeout is zero.
const DefaultTimeout = 500 * time.Millisecond

// StreamAdder is the subset of a Redis client the publisher needs.
// *redis.Client, *redis.ClusterClient and redis.UniversalClient satisfy it.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// GroupCreator creates consumer groups.
type GroupCreator interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
}

// Encoder turns a payload into the value stored in the payload field.
type Encoder[T any] func(T) (string, error)

// Config holds publisher configuration.
type Config[T any] struct {
	// Client is required.
	Client StreamAdder

	// Stream is the stream key. Required.
	Stream string

	// MaxLen trims the stream to roughly this many entries (0 = no trimming).
	MaxLen int64

	// Timeout bounds each XADD (default: 500ms).
	Timeout time.Duration

	// Encoder encodes payloads (default: fmt.Sprint).
	Encoder Encoder[T]

	Metrics *metrics.Registry
	Logger  zerolog.Logger
}

// Publisher writes notifications to a Redis stream.
type Publisher[T any] struct {
	client  StreamAdder
	stream  string
	maxLen  int64
	timeout time.Duration
	encode  Encoder[T]
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// New creates a publisher.
func New[T any](cfg Config[T]) (*Publisher[T], error) {
	if cfg.Client == nil {
		return nil, cterrors.NewValidationError(module, "client", nil, "is required")
	}
	if err := validation.ValidateNotBlank(module, "stream", cfg.Stream); err != nil {
		return nil, err
	}
	if cfg.MaxLen < 0 {
		return nil, cterrors.NewValidationError(module, "max_len", cfg.MaxLen, "cannot be negative").
			WithHint("use 0 to disable trimming")
	}
	if cfg.Timeout < 0 {
		return nil, validation.ValidatePositiveDuration(module, "timeout", cfg.Timeout)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	encode := cfg.Encoder
	if encode == nil {
		encode = func(v T) (string, error) { return fmt.Sprint(v), nil }
	}

	return &Publisher[T]{
		client:  cfg.Client,
		stream:  cfg.Stream,
		maxLen:  cfg.MaxLen,
		timeout: timeout,
		encode:  encode,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With().Str("stream", cfg.Stream).Logger(),
	}, nil
}

// Stream returns the stream key.
func (p *Publisher[T]) Stream() string { return p.stream }

// Publish appends n to the stream and returns the entry ID.
func (p *Publisher[T]) Publish(ctx context.Context, n crontimer.Notification[T]) (string, error) {
	payload, err := p.encode(n.Data)
	if err != nil {
		p.failed()
		return "", fmt.Errorf("encode payload of event %s: %w", n.EventID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"timer":      timerName(n),
			"event_id":   n.EventID,
			"expression": n.Expression,
			"due":        n.Due.UTC().Format(time.RFC3339Nano),
			"tick":       n.Tick.UTC().Format(time.RFC3339Nano),
			"payload":    payload,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		p.failed()
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}

	if p.metrics != nil {
		p.metrics.SinkPublished.WithLabelValues(p.stream).Inc()
	}
	p.logger.Debug().
		Str("entry_id", id).
		Str("event_id", n.EventID).
		Msg("notification published")
	return id, nil
}

// Handle publishes n. It has the signature of crontimer.Handler.
func (p *Publisher[T]) Handle(ctx context.Context, n crontimer.Notification[T]) error {
	_, err := p.Publish(ctx, n)
	return err
}

func (p *Publisher[T]) failed() {
	if p.metrics != nil {
		p.metrics.SinkErrors.WithLabelValues(p.stream).Inc()
	}
}

func timerName[T any](n crontimer.Notification[T]) string {
	if n.Timer == nil {
		return ""
	}
	return n.Timer.Name()
}

// EnsureGroup creates group on stream, creating the stream if needed. An
// existing group is not an error.
func EnsureGroup(ctx context.Context, client GroupCreator, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err == nil || strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("create consumer group %s on %s: %w", group, stream, err)
}
