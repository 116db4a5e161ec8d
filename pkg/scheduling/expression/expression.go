package expression

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	cterrors "github.com/vnykmshr/crontimer/pkg/common/errors"
)

const module = "expression"

// groupSeparator matches a comma with whitespace on at least one side.
var groupSeparator = regexp.MustCompile(`\s*,\s+|\s+,\s*`)

// Expression is a validated, parsed cron expression. It is immutable and safe
// for concurrent use.
type Expression struct {
	source    string
	mode      Mode
	groups    []string
	schedules []Schedule
}

// String returns the expression as it was given.
func (e *Expression) String() string { return e.source }

// Mode returns the field layout shared by every group.
func (e *Expression) Mode() Mode { return e.mode }

// Groups returns the normalized groups of the expression.
func (e *Expression) Groups() []string {
	out := make([]string, len(e.groups))
	copy(out, e.groups)
	return out
}

// Next returns the earliest occurrence of any group strictly after baseline.
func (e *Expression) Next(baseline time.Time) time.Time {
	var next time.Time
	for _, s := range e.schedules {
		t := s.Next(baseline)
		if t.IsZero() {
			continue
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}

// Parser turns expression strings into Expressions using an Evaluator.
type Parser struct {
	evaluator Evaluator
	location  *time.Location
}

// NewParser creates a parser. A nil evaluator selects RobfigEvaluator and a nil
// location selects time.Local.
func NewParser(evaluator Evaluator, location *time.Location) *Parser {
	if evaluator == nil {
		evaluator = RobfigEvaluator{}
	}
	if location == nil {
		location = time.Local
	}
	return &Parser{evaluator: evaluator, location: location}
}

// Default is the parser used by the package-level functions.
var Default = NewParser(nil, nil)

// Location returns the time zone occurrences are computed in.
func (p *Parser) Location() *time.Location { return p.location }

// Parse validates and parses expr.
func (p *Parser) Parse(expr string) (*Expression, error) {
	groups, mode, err := split(expr)
	if err != nil {
		return nil, err
	}

	schedules := make([]Schedule, 0, len(groups))
	for _, g := range groups {
		s, err := p.evaluator.Parse(g, mode)
		if err != nil {
			return nil, &cterrors.ParseError{Expression: expr, Group: g, Err: err}
		}
		schedules = append(schedules, inLocation{schedule: s, location: p.location})
	}

	return &Expression{
		source:    expr,
		mode:      mode,
		groups:    groups,
		schedules: schedules,
	}, nil
}

// split checks the group and field structure of expr and returns its groups
// with internal whitespace collapsed.
func split(expr string) ([]string, Mode, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, 0, cterrors.NewExpressionError(module, expr, "cannot be empty").
			WithHint("provide a cron expression such as \"* * * * *\"")
	}

	raw := groupSeparator.Split(trimmed, -1)
	groups := make([]string, 0, len(raw))
	fieldCount := -1
	for i, r := range raw {
		fields := strings.Fields(r)
		if len(fields) == 0 {
			return nil, 0, cterrors.NewExpressionError(module, expr, fmt.Sprintf("group %d is empty", i+1))
		}
		if fieldCount == -1 {
			fieldCount = len(fields)
		} else if len(fields) != fieldCount {
			return nil, 0, cterrors.NewExpressionError(module, expr,
				fmt.Sprintf("inconsistent field count: group 1 has %d fields, group %d has %d", fieldCount, i+1, len(fields))).
				WithHint("every comma-separated group must use the same layout")
		}
		groups = append(groups, strings.Join(fields, " "))
	}

	mode, ok := modeForFieldCount(fieldCount)
	if !ok {
		return nil, 0, cterrors.NewExpressionError(module, expr, fmt.Sprintf("unsupported field count %d", fieldCount)).
			WithHint("use 5 fields (minute hour dom month dow) or 6 fields (second minute hour dom month dow)")
	}
	return groups, mode, nil
}

// Parse parses expr with the Default parser.
func Parse(expr string) (*Expression, error) {
	return Default.Parse(expr)
}

// Validate reports whether expr would be accepted by the Default parser.
func Validate(expr string) error {
	_, err := Default.Parse(expr)
	return err
}

// NextN returns the next n occurrences of expr after the given time, using the
// Default parser.
func NextN(expr string, after time.Time, n int) ([]time.Time, error) {
	return Default.NextN(expr, after, n)
}

// NextN returns the next n occurrences of expr after the given time. Fewer are
// returned when the expression stops firing.
func (p *Parser) NextN(expr string, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, cterrors.NewValidationError(module, "count", n, "must be positive")
	}
	e, err := p.Parse(expr)
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, n)
	cur := after
	for len(out) < n {
		cur = e.Next(cur)
		if cur.IsZero() {
			break
		}
		out = append(out, cur)
	}
	return out, nil
}
