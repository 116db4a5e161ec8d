package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the crontimer library

var (
	// ErrClosed indicates that an operation was attempted on a disposed resource
	ErrClosed = errors.New("resource is closed")

	// ErrCapacityExceeded indicates that a capacity limit was exceeded
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidExpression indicates a cron expression that failed validation or parsing
	ErrInvalidExpression = errors.New("invalid cron expression")

	// ErrHandlerFailed indicates that a notification handler returned an error or panicked
	ErrHandlerFailed = errors.New("notification handler failed")
)

// ValidationError describes a rejected input value.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string

	// sentinel is the error returned by Unwrap. Defaults to ErrInvalidConfiguration.
	sentinel error
}

// NewValidationError creates a ValidationError that wraps ErrInvalidConfiguration.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// NewExpressionError creates a ValidationError for a malformed cron expression.
// It wraps ErrInvalidExpression.
func NewExpressionError(module string, value string, reason string) *ValidationError {
	return &ValidationError{
		Module:   module,
		Field:    "expression",
		Value:    value,
		Reason:   reason,
		sentinel: ErrInvalidExpression,
	}
}

// WithHint attaches a remediation hint and returns the receiver.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap returns the sentinel the error is classified under.
func (e *ValidationError) Unwrap() error {
	if e.sentinel != nil {
		return e.sentinel
	}
	return ErrInvalidConfiguration
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// ParseError is returned when the cron evaluator rejects one group of an expression.
type ParseError struct {
	Expression string
	Group      string
	Err        error
}

func (e *ParseError) Error() string {
	if e.Group != "" && e.Group != e.Expression {
		return fmt.Sprintf("invalid cron expression %q: group %q: %v", e.Expression, e.Group, e.Err)
	}
	return fmt.Sprintf("invalid cron expression %q: %v", e.Expression, e.Err)
}

// Unwrap exposes both the evaluator error and ErrInvalidExpression to errors.Is.
func (e *ParseError) Unwrap() []error {
	return []error{ErrInvalidExpression, e.Err}
}

// HandlerError wraps a failure raised by a notification handler, including
// recovered panics.
type HandlerError struct {
	EventID string
	Err     error
	Panic   interface{}
	Stack   []byte
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler for event %s panicked: %v", e.EventID, e.Panic)
	}
	return fmt.Sprintf("handler for event %s: %v", e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrHandlerFailed}
	}
	return []error{ErrHandlerFailed, e.Err}
}

// IsExpressionError reports whether err was caused by an invalid cron expression.
func IsExpressionError(err error) bool {
	return errors.Is(err, ErrInvalidExpression)
}
