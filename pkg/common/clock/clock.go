// Package clock abstracts the time source used by the polling loop so tests
// can drive it deterministically.
package clock

import "time"

// Clock provides the current time and interruptible sleeps.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer represents a single event timer, similar to time.Timer.
type Timer interface {
	// C returns the channel on which the timer fires.
	C() <-chan time.Time
	// Stop prevents the Timer from firing. Returns false if the timer had
	// already fired or been stopped.
	Stop() bool
}

// Real implements Clock using the standard time package.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// NewTimer wraps time.NewTimer.
func (Real) NewTimer(d time.Duration) Timer {
	return realTimer{timer: time.NewTimer(d)}
}

type realTimer struct {
	timer *time.Timer
}

func (r realTimer) C() <-chan time.Time { return r.timer.C }

func (r realTimer) Stop() bool { return r.timer.Stop() }
