package tryvial

import (
	"context"
	"time"
)

// Clock abstracts time operations so that retry delays and timeout races can
// be tested deterministically. Production code uses [RealClock]; tests may
// substitute a fake implementation to control the passage of time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
	// NewTimer creates a new [Timer] that will fire after duration d.
	NewTimer(d time.Duration) Timer
}

// Timer abstracts [time.Timer] so that fake clocks can provide controllable
// timers.
type Timer interface {
	// C returns the channel on which the timer's firing time is delivered.
	C() <-chan time.Time
	// Stop prevents the timer from firing and reports whether it was stopped
	// before it fired.
	Stop() bool
}

// RealClock is a zero-value [Clock] backed by the real [time] package.
// It is safe for concurrent use because it holds no mutable state.
type RealClock struct{}

// Now returns the current wall-clock time via [time.Now].
func (RealClock) Now() time.Time { return time.Now() }

// Since returns the time elapsed since t via [time.Since].
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// NewTimer creates a real [Timer] that fires after d via [time.NewTimer].
func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{inner: time.NewTimer(d)}
}

// realTimer wraps [time.Timer] to satisfy the [Timer] interface.
type realTimer struct {
	inner *time.Timer
}

func (t *realTimer) C() <-chan time.Time { return t.inner.C }
func (t *realTimer) Stop() bool          { return t.inner.Stop() }

// ---------------------------------------------------------------------------
// Suspension capability
// ---------------------------------------------------------------------------

// suspender is what separates the two execution modes. The engine is written
// once against it: the async mode suspends on a Clock, the sync mode never
// suspends.
type suspender interface {
	// sleep waits d, or returns ctx.Err() if ctx ends first.
	sleep(ctx context.Context, d time.Duration) error
	// clock returns the timer source for timeout races, or nil when the
	// mode cannot race an attempt against a timer.
	clock() Clock
}

// clockSuspender suspends on timers from c.
type clockSuspender struct {
	c Clock
}

func (s clockSuspender) clock() Clock { return s.c }

func (s clockSuspender) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := s.c.NewTimer(d)
	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err() //nolint:wrapcheck // preserving context error identity
	}
}

// noSuspend is the blocking mode: retries run back-to-back and attempts are
// never raced.
type noSuspend struct{}

func (noSuspend) clock() Clock                              { return nil }
func (noSuspend) sleep(context.Context, time.Duration) error { return nil }
