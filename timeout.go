package tryvial

import (
	"context"
	"time"
)

// Pattern: Timeout — races an attempt against a timer. The losing attempt is
// detached, not aborted: its context is cancelled as a signal, and whatever it
// eventually returns lands in a buffered channel nobody reads.

// withTimeout returns a middleware racing each call of next against a timer of
// d from clock. When the timer wins, onTimeout runs and the call fails with
// [ErrTimeout]. Cancellation of the parent context ends the race with
// ctx.Err().
func withTimeout[T any](clock Clock, d time.Duration, onTimeout func(ctx context.Context)) Middleware[T] {
	return func(next func(context.Context) (T, error)) func(context.Context) (T, error) {
		return func(ctx context.Context) (T, error) {
			var zero T

			if err := ctx.Err(); err != nil {
				return zero, err //nolint:wrapcheck // preserving context error identity
			}

			attemptCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			type result struct {
				val T
				err error
			}

			ch := make(chan result, 1)

			go func() {
				v, err := next(attemptCtx)
				ch <- result{val: v, err: err}
			}()

			timer := clock.NewTimer(d)
			defer timer.Stop()

			select {
			case r := <-ch:
				return r.val, r.err
			case <-timer.C():
				onTimeout(ctx)

				return zero, ErrTimeout
			case <-ctx.Done():
				return zero, ctx.Err() //nolint:wrapcheck // preserving context error identity
			}
		}
	}
}
