// Command crontimerd runs a crontimer.Timer from a configuration file and
// reports every due event to its log and, optionally, a Redis stream.
//
// Usage:
//
//	crontimerd --config crontimer.yaml [--env-file .env] [--log-level debug]
//
// Settings are read from the YAML file, then .env files, then the process
// environment; flags given explicitly win over all of them. Metrics are served
// at metrics.addr + metrics.path. The process runs until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/vnykmshr/crontimer/internal/config"
	"github.com/vnykmshr/crontimer/pkg/metrics"
	"github.com/vnykmshr/crontimer/pkg/scheduling/crontimer"
	"github.com/vnykmshr/crontimer/pkg/sink/redisstream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "crontimerd: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath  string
	envFiles    []string
	logLevel    string
	metricsAddr string
	validate    bool
}

func parseFlags(args []string, out io.Writer) (*flags, *pflag.FlagSet, error) {
	var f flags
	fs := pflag.NewFlagSet("crontimerd", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&f.configPath, "config", "c", "", "path to the YAML configuration file")
	fs.StringSliceVar(&f.envFiles, "env-file", []string{".env"}, "dotenv files to read (missing files are skipped)")
	fs.StringVar(&f.logLevel, "log-level", "", "override log.level")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "override metrics.addr (empty string from config disables the server)")
	fs.BoolVar(&f.validate, "validate", false, "validate the configuration and exit")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return &f, fs, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	f, fs, err := parseFlags(args, out)
	if err != nil {
		return err
	}

	cfg, err := config.Load(ctx, config.Options{Path: f.configPath, EnvFiles: f.envFiles})
	if err != nil {
		return err
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fs.Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if f.validate {
		fmt.Fprintf(out, "configuration ok: %d events\n", len(cfg.Events))
		return nil
	}

	logger := newLogger(cfg.Log, out)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewRegistry(reg)

	timer, err := newTimer(ctx, cfg, logger, m)
	if err != nil {
		return err
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		if err := attachPublisher(ctx, timer, rdb, cfg.Redis, logger, m); err != nil {
			return err
		}
	}

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		srv = serveMetrics(cfg.Metrics, reg, logger)
	}

	if err := timer.Start(); err != nil {
		return err
	}
	logger.Info().
		Int("events", timer.Len()).
		Str("policy", timer.Policy().String()).
		Msg("crontimerd running")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown")
		}
	}

	select {
	case <-timer.Dispose():
	case <-shutdownCtx.Done():
		return fmt.Errorf("timer did not stop within %v", shutdownTimeout)
	}
	return nil
}

func newLogger(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = out
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// newTimer builds the timer, registers every configured event and subscribes
// the logging handler.
func newTimer(ctx context.Context, cfg *config.Config, logger zerolog.Logger, m *metrics.Registry) (*crontimer.Timer[string], error) {
	parser, err := cfg.Parser()
	if err != nil {
		return nil, err
	}

	timer, err := crontimer.NewWithConfig(crontimer.Config[string]{
		Name:       cfg.Timer.Name,
		Resolution: cfg.Timer.Resolution,
		Policy:     cfg.DispatchPolicy(),
		Parser:     parser,
		Logger:     logger,
		MaxEvents:  cfg.Timer.MaxEvents,
		Metrics:    m,
	})
	if err != nil {
		return nil, err
	}

	for _, e := range cfg.Events {
		if _, err := timer.AddEvent(ctx, e.Expression, e.Name); err != nil {
			return nil, fmt.Errorf("register event %q: %w", e.Name, err)
		}
	}

	timer.Subscribe(logHandler(logger))
	return timer, nil
}

func logHandler(logger zerolog.Logger) crontimer.Handler[string] {
	return func(_ context.Context, n crontimer.Notification[string]) error {
		logger.Info().
			Str("event", n.Data).
			Str("event_id", n.EventID).
			Str("expression", n.Expression).
			Time("due", n.Due).
			Msg("event due")
		return nil
	}
}

type redisClient interface {
	redisstream.StreamAdder
	redisstream.GroupCreator
}

func attachPublisher(ctx context.Context, timer *crontimer.Timer[string], rdb redisClient, cfg config.RedisConfig, logger zerolog.Logger, m *metrics.Registry) error {
	if cfg.Group != "" {
		if err := redisstream.EnsureGroup(ctx, rdb, cfg.Stream, cfg.Group); err != nil {
			return err
		}
	}

	pub, err := redisstream.New(redisstream.Config[string]{
		Client:  rdb,
		Stream:  cfg.Stream,
		MaxLen:  cfg.MaxLen,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	timer.Subscribe(pub.Handle)
	logger.Info().Str("stream", pub.Stream()).Msg("publishing notifications to redis")
	return nil
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", cfg.Addr).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", cfg.Addr).Str("path", cfg.Path).Msg("serving metrics")
	return srv
}
