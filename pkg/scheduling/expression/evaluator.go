package expression

import (
	"fmt"
	"time"

	"github.com/hashicorp/cronexpr"
	"github.com/robfig/cron/v3"
)

// Mode is the field layout of an expression group.
type Mode int

const (
	// ModeMinutes is the classic five-field layout.
	ModeMinutes Mode = iota
	// ModeSeconds prepends a seconds field.
	ModeSeconds
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeMinutes:
		return "minutes"
	case ModeSeconds:
		return "seconds"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// FieldCount returns the number of fields a group in this mode has.
func (m Mode) FieldCount() int {
	if m == ModeSeconds {
		return 6
	}
	return 5
}

func modeForFieldCount(n int) (Mode, bool) {
	switch n {
	case 5:
		return ModeMinutes, true
	case 6:
		return ModeSeconds, true
	default:
		return 0, false
	}
}

// Schedule computes occurrences of a parsed expression.
type Schedule interface {
	// Next returns the earliest occurrence strictly after baseline,
	// or the zero time if there is none.
	Next(baseline time.Time) time.Time
}

// Evaluator parses a single group of cron fields.
type Evaluator interface {
	Parse(fields string, mode Mode) (Schedule, error)
}

var (
	robfigMinutes = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	robfigSeconds = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// RobfigEvaluator evaluates fields with github.com/robfig/cron/v3.
type RobfigEvaluator struct{}

// Parse implements Evaluator.
func (RobfigEvaluator) Parse(fields string, mode Mode) (Schedule, error) {
	p := robfigMinutes
	if mode == ModeSeconds {
		p = robfigSeconds
	}
	return p.Parse(fields)
}

// CronexprEvaluator evaluates fields with github.com/hashicorp/cronexpr.
type CronexprEvaluator struct{}

// Parse implements Evaluator.
func (CronexprEvaluator) Parse(fields string, mode Mode) (Schedule, error) {
	// cronexpr reads six fields as minute..year, so seconds mode is passed
	// as the seven-field form with a wildcard year.
	if mode == ModeSeconds {
		fields += " *"
	}
	expr, err := cronexpr.Parse(fields)
	if err != nil {
		return nil, err
	}
	return expr, nil
}

// inLocation evaluates a schedule in a fixed time zone.
type inLocation struct {
	schedule Schedule
	location *time.Location
}

func (s inLocation) Next(baseline time.Time) time.Time {
	return s.schedule.Next(baseline.In(s.location))
}
