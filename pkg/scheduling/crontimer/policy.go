package crontimer

import (
	"fmt"
	"strings"

	cterrors "github.com/vnykmshr/crontimer/pkg/common/errors"
)

// DispatchPolicy governs how due notifications are delivered.
type DispatchPolicy int32

const (
	// Concurrent starts every notification on its own goroutine. The loop
	// never waits for handlers and no ordering is guaranteed.
	Concurrent DispatchPolicy = iota

	// Inline runs notifications one after another on the loop goroutine, in
	// registry order. A slow handler delays every later notification and tick.
	Inline
)

// String returns the policy name.
func (p DispatchPolicy) String() string {
	switch p {
	case Concurrent:
		return "concurrent"
	case Inline:
		return "inline"
	default:
		return fmt.Sprintf("DispatchPolicy(%d)", int32(p))
	}
}

// ParseDispatchPolicy parses "concurrent" or "inline" (case-insensitive).
func ParseDispatchPolicy(s string) (DispatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "concurrent":
		return Concurrent, nil
	case "inline", "sequential":
		return Inline, nil
	default:
		return 0, cterrors.NewValidationError(module, "policy", s, "unknown dispatch policy").
			WithHint("use concurrent or inline")
	}
}

// State is the lifecycle state of a Timer.
type State int32

const (
	// NotStarted is the state of a timer that has never been started.
	NotStarted State = iota
	// Running means the polling loop is active.
	Running
	// Stopped means the loop was stopped or the timer disposed.
	Stopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
