package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/crontimer/pkg/common/clock"
)

// MockClock implements clock.Clock with controllable time.
// Timers fire only when Advance or Set moves the clock past their deadline.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

var _ clock.Clock = (*MockClock)(nil)

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// NewTimer creates a timer that fires once the clock reaches now+d.
func (m *MockClock) NewTimer(d time.Duration) clock.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &mockTimer{
		clock:    m,
		deadline: m.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	if d <= 0 {
		t.ch <- m.now
		return t
	}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	m.fireExpired()
}

// Set sets the mock clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
	m.fireExpired()
}

// Pending returns the number of timers that have not fired or been stopped.
func (m *MockClock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// WaitForTimers blocks until at least n timers are pending.
func (m *MockClock) WaitForTimers(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(TestTimeout)
	for m.Pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d timers pending after %v, want %d", m.Pending(), TestTimeout, n)
		}
		time.Sleep(time.Millisecond)
	}
}

// fireExpired must be called with mu held.
func (m *MockClock) fireExpired() {
	remaining := m.timers[:0]
	for _, t := range m.timers {
		if !t.deadline.After(m.now) {
			t.ch <- m.now
			continue
		}
		remaining = append(remaining, t)
	}
	for i := len(remaining); i < len(m.timers); i++ {
		m.timers[i] = nil
	}
	m.timers = remaining
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	ch       chan time.Time
}

func (t *mockTimer) C() <-chan time.Time { return t.ch }

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	for i, pending := range t.clock.timers {
		if pending == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}
