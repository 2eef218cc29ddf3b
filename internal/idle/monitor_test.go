package idle

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestFiresOnceAfterWindow(t *testing.T) {
	var fired atomic.Int32
	m := NewMonitor(WithWindow(30 * time.Millisecond))
	m.Arm(func() { fired.Add(1) })

	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })
	if m.Armed() {
		t.Fatal("monitor must disarm itself after firing")
	}

	// No further fires after self-disarm.
	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("fired %d times, want exactly 1", fired.Load())
	}
}

func TestTouchDefersTimeout(t *testing.T) {
	var fired atomic.Int32
	m := NewMonitor(WithWindow(80 * time.Millisecond))
	m.Arm(func() { fired.Add(1) })

	// Keep touching inside the window; the timeout must keep deferring.
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		m.Touch()
		if fired.Load() != 0 {
			t.Fatal("fired despite activity")
		}
	}

	waitFor(t, time.Second, func() bool { return fired.Load() == 1 })
}

func TestDisarmCancelsPendingTimeout(t *testing.T) {
	var fired atomic.Int32
	m := NewMonitor(WithWindow(30 * time.Millisecond))
	m.Arm(func() { fired.Add(1) })
	m.Disarm()

	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("fired after disarm")
	}
	if m.Armed() {
		t.Fatal("monitor still armed")
	}

	// Disarm is idempotent.
	m.Disarm()
}

func TestRearmRestartsWindow(t *testing.T) {
	var first, second atomic.Int32
	m := NewMonitor(WithWindow(30 * time.Millisecond))
	m.Arm(func() { first.Add(1) })
	m.Arm(func() { second.Add(1) })

	waitFor(t, time.Second, func() bool { return second.Load() == 1 })
	if first.Load() != 0 {
		t.Fatal("stale callback fired after re-arm")
	}
}

func TestTouchOnDisarmedMonitorIsNoop(t *testing.T) {
	m := NewMonitor(WithWindow(20 * time.Millisecond))
	m.Touch()
	if m.Armed() {
		t.Fatal("touch must not arm the monitor")
	}
}
