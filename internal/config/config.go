// Package config loads crontimerd settings from a YAML file, optional .env
// files and the environment, in increasing order of precedence.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	cterrors "github.com/vnykmshr/crontimer/pkg/common/errors"
	"github.com/vnykmshr/crontimer/pkg/common/validation"
	"github.com/vnykmshr/crontimer/pkg/scheduling/crontimer"
	"github.com/vnykmshr/crontimer/pkg/scheduling/expression"
)

const module = "config"

// Config is the daemon configuration.
type Config struct {
	Timer   TimerConfig   `yaml:"timer"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Redis   RedisConfig   `yaml:"redis"`

	// Events maps an event name to its cron expression. Only the YAML file
	// sets events.
	Events []EventConfig `yaml:"events"`
}

type TimerConfig struct {
	Name       string        `yaml:"name" env:"CRONTIMER_NAME, overwrite"`
	Resolution time.Duration `yaml:"resolution" env:"CRONTIMER_RESOLUTION, overwrite"`
	Policy     string        `yaml:"policy" env:"CRONTIMER_POLICY, overwrite"`
	Evaluator  string        `yaml:"evaluator" env:"CRONTIMER_EVALUATOR, overwrite"`
	Location   string        `yaml:"location" env:"CRONTIMER_LOCATION, overwrite"`
	MaxEvents  int           `yaml:"max_events" env:"CRONTIMER_MAX_EVENTS, overwrite"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"CRONTIMER_LOG_LEVEL, overwrite"`
	Format string `yaml:"format" env:"CRONTIMER_LOG_FORMAT, overwrite"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"CRONTIMER_METRICS_ADDR, overwrite"`
	Path string `yaml:"path" env:"CRONTIMER_METRICS_PATH, overwrite"`
}

// RedisConfig enables the stream publisher when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR, overwrite"`
	Password string `yaml:"password" env:"REDIS_PASSWORD, overwrite"`
	DB       int    `yaml:"db" env:"REDIS_DB, overwrite"`
	Stream   string `yaml:"stream" env:"CRONTIMER_REDIS_STREAM, overwrite"`
	MaxLen   int64  `yaml:"max_len" env:"CRONTIMER_REDIS_MAXLEN, overwrite"`
	Group    string `yaml:"group" env:"CRONTIMER_REDIS_GROUP, overwrite"`
}

type EventConfig struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Timer: TimerConfig{
			Name:       "crontimerd",
			Resolution: time.Second,
			Policy:     crontimer.Concurrent.String(),
			Evaluator:  "robfig",
			Location:   "Local",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
		Redis: RedisConfig{
			Stream: "crontimer:notifications",
			MaxLen: 10000,
		},
	}
}

// Options controls where Load reads from.
type Options struct {
	// Path is the YAML file. Empty means defaults only.
	Path string

	// EnvFiles are .env files read with godotenv. Missing files are skipped.
	// Their values apply only where the process environment has none.
	EnvFiles []string

	// Lookuper replaces the process environment, mainly for tests.
	Lookuper envconfig.Lookuper
}

// Load builds the configuration from defaults, the YAML file, env files and
// the environment, then validates it.
func Load(ctx context.Context, opts Options) (*Config, error) {
	cfg := Default()

	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", opts.Path, err)
		}
	}

	dotenv, err := readEnvFiles(opts.EnvFiles)
	if err != nil {
		return nil, err
	}

	lookuper := opts.Lookuper
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	if len(dotenv) > 0 {
		lookuper = envconfig.MultiLookuper(lookuper, envconfig.MapLookuper(dotenv))
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func readEnvFiles(paths []string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, path := range paths {
		values, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", path, err)
		}
		// Earlier files win, matching godotenv.Load.
		for k, v := range values {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

// Validate checks every field and the events' expressions.
func (c *Config) Validate() error {
	if err := validation.ValidateNotBlank(module, "timer.name", c.Timer.Name); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration(module, "timer.resolution", c.Timer.Resolution); err != nil {
		return err
	}
	if _, err := crontimer.ParseDispatchPolicy(c.Timer.Policy); err != nil {
		return err
	}
	if err := validation.ValidateOneOf(module, "timer.evaluator", c.Timer.Evaluator, "robfig", "cronexpr"); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative(module, "timer.max_events", c.Timer.MaxEvents); err != nil {
		return err
	}
	if err := validation.ValidateOneOf(module, "log.format", c.Log.Format, "console", "json"); err != nil {
		return err
	}
	if err := validation.ValidateOneOf(module, "log.level", strings.ToLower(c.Log.Level),
		"trace", "debug", "info", "warn", "error", "disabled"); err != nil {
		return err
	}
	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return cterrors.NewValidationError(module, "metrics.path", c.Metrics.Path, "must start with /")
	}
	if c.Redis.Addr != "" {
		if err := validation.ValidateNotBlank(module, "redis.stream", c.Redis.Stream); err != nil {
			return err
		}
		if c.Redis.MaxLen < 0 {
			return cterrors.NewValidationError(module, "redis.max_len", c.Redis.MaxLen, "cannot be negative")
		}
	}

	parser, err := c.Parser()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Events))
	for i, e := range c.Events {
		field := fmt.Sprintf("events[%d].name", i)
		if err := validation.ValidateNotBlank(module, field, e.Name); err != nil {
			return err
		}
		if seen[e.Name] {
			return cterrors.NewValidationError(module, field, e.Name, "duplicate event name")
		}
		seen[e.Name] = true
		if _, err := parser.Parse(e.Expression); err != nil {
			return fmt.Errorf("event %q: %w", e.Name, err)
		}
	}
	return nil
}

// Parser returns the expression parser selected by the timer settings.
func (c *Config) Parser() (*expression.Parser, error) {
	loc, err := time.LoadLocation(c.Timer.Location)
	if err != nil {
		return nil, cterrors.NewValidationError(module, "timer.location", c.Timer.Location, err.Error()).
			WithHint("use an IANA zone such as UTC or Europe/Berlin")
	}

	var evaluator expression.Evaluator = expression.RobfigEvaluator{}
	if c.Timer.Evaluator == "cronexpr" {
		evaluator = expression.CronexprEvaluator{}
	}
	return expression.NewParser(evaluator, loc), nil
}

// DispatchPolicy returns the parsed timer policy.
func (c *Config) DispatchPolicy() crontimer.DispatchPolicy {
	p, err := crontimer.ParseDispatchPolicy(c.Timer.Policy)
	if err != nil {
		return crontimer.Concurrent
	}
	return p
}
