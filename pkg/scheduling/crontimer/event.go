package crontimer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vnykmshr/crontimer/pkg/scheduling/expression"
)

// ScheduledEvent binds a cron expression to an opaque payload.
//
// An event always holds a valid schedule for its current expression. The
// payload is owned by the caller and never inspected by the timer.
type ScheduledEvent[T any] struct {
	id      string
	data    T
	created time.Time
	parser  *expression.Parser

	mu   sync.RWMutex
	expr *expression.Expression
}

// NewScheduledEvent parses expr with the default parser and returns an event
// carrying data. No event is returned if expr is invalid.
func NewScheduledEvent[T any](expr string, data T) (*ScheduledEvent[T], error) {
	return NewScheduledEventWithParser(nil, expr, data)
}

// NewScheduledEventWithParser is like NewScheduledEvent but parses with p.
// A nil parser selects expression.Default.
func NewScheduledEventWithParser[T any](p *expression.Parser, expr string, data T) (*ScheduledEvent[T], error) {
	if p == nil {
		p = expression.Default
	}
	parsed, err := p.Parse(expr)
	if err != nil {
		return nil, err
	}
	return &ScheduledEvent[T]{
		id:      uuid.NewString(),
		data:    data,
		created: time.Now(),
		parser:  p,
		expr:    parsed,
	}, nil
}

// ID returns the identifier assigned at construction.
func (e *ScheduledEvent[T]) ID() string { return e.id }

// Data returns the payload.
func (e *ScheduledEvent[T]) Data() T { return e.data }

// Created returns the construction time.
func (e *ScheduledEvent[T]) Created() time.Time { return e.created }

// Expression returns the current cron expression.
func (e *ScheduledEvent[T]) Expression() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.expr.String()
}

// Schedule returns the parsed form of the current expression.
func (e *ScheduledEvent[T]) Schedule() *expression.Expression {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.expr
}

// SetExpression replaces the expression and its schedule together. On error
// the event keeps its previous expression.
func (e *ScheduledEvent[T]) SetExpression(expr string) error {
	parsed, err := e.parser.Parse(expr)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.expr = parsed
	e.mu.Unlock()
	return nil
}

// Next returns the earliest occurrence strictly after baseline, or the zero
// time if the expression never fires again.
func (e *ScheduledEvent[T]) Next(baseline time.Time) time.Time {
	return e.Schedule().Next(baseline)
}
