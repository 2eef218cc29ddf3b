// Package idle implements inactivity-based session expiry: a single
// timer reset by interaction signals, firing a forced sign-out exactly
// once if the window ever elapses uninterrupted.
package idle

import (
	"sync"
	"time"

	"gestaorh.org/internal/obs"
)

const defaultWindow = 5 * time.Minute

// Monitor watches for interaction signals and invokes a callback after
// a fixed period without any. Reset is last-writer-wins: the most
// recent signal always defers the timeout.
type Monitor struct {
	window time.Duration

	mu    sync.Mutex
	timer *time.Timer
	armed bool
	gen   uint64
}

// Option configures Monitor behavior.
type Option func(*Monitor)

// WithWindow overrides the idle window.
func WithWindow(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.window = d
		}
	}
}

// NewMonitor constructs a disarmed Monitor.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{window: defaultWindow}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Arm starts the idle timer. If the window elapses with no Touch,
// onTimeout runs exactly once and the monitor disarms itself. Arming an
// armed monitor restarts the window with the new callback.
func (m *Monitor) Arm(onTimeout func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.gen++
	gen := m.gen
	m.armed = true
	m.timer = time.AfterFunc(m.window, func() {
		m.fire(gen, onTimeout)
	})
}

// Touch records an interaction signal, deferring the pending timeout.
// A Touch on a disarmed monitor is a no-op.
func (m *Monitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.armed || m.timer == nil {
		return
	}
	m.timer.Reset(m.window)
}

// Disarm cancels the pending timer and stops observing. Safe to call
// repeatedly and from any sign-out path; a disarmed monitor never fires.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.gen++
}

// Armed reports whether the monitor currently has a pending timer.
func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

func (m *Monitor) fire(gen uint64, onTimeout func()) {
	m.mu.Lock()
	if !m.armed || gen != m.gen {
		// A Disarm or re-Arm won the race against the expiring timer.
		m.mu.Unlock()
		return
	}
	m.stopLocked()
	m.mu.Unlock()

	obs.CountIdleSignOut()
	onTimeout()
}

func (m *Monitor) stopLocked() {
	m.armed = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
