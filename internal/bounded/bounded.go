// Package bounded wraps asynchronous calls with a hard timeout and a
// fallback value. It is the liveness primitive of the session lifecycle
// subsystem: no identity read may block the caller past its bound.
package bounded

import (
	"context"
	"time"
)

// Result carries the outcome of a bounded call.
type Result[T any] struct {
	Value    T
	Err      error
	TimedOut bool
}

// Call races op against a timer of d and returns whichever settles
// first. When the timer wins the op keeps running in the background and
// its eventual result is discarded; the caller must treat the call as
// terminated. No retries are performed here — retry policy belongs to
// the caller.
func Call[T any](ctx context.Context, d time.Duration, fallback T, op func(context.Context) (T, error)) Result[T] {
	type outcome struct {
		value T
		err   error
	}

	// Buffered so the losing op can finish without a reader.
	done := make(chan outcome, 1)
	go func() {
		v, err := op(ctx)
		done <- outcome{value: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case out := <-done:
		return Result[T]{Value: out.value, Err: out.err}
	case <-timer.C:
		return Result[T]{Value: fallback, TimedOut: true}
	case <-ctx.Done():
		return Result[T]{Value: fallback, Err: ctx.Err(), TimedOut: true}
	}
}
