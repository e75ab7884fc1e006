package tryvial

import (
	"context"
	"time"
)

// Pattern: Retry with Backoff — masks transient failures with a configurable
// delay strategy; respects Permanent error classification to stop early.

// execution is the state of one invocation. It is created fresh for every
// call and never shared.
type execution[T any] struct {
	cfg     *settings[T]
	emit    emitter[T]
	susp    suspender
	start   time.Time
	lastErr error

	attempts  int
	fallbacks int
}

func newExecution[T any](cfg *settings[T], susp suspender) *execution[T] {
	return &execution[T]{
		cfg:  cfg,
		susp: susp,
		emit: emitter[T]{
			hooks:     cfg.hooks,
			observers: cfg.observers,
			logger:    cfg.logger,
			policy:    cfg.name,
		},
		start: cfg.clock.Now(),
	}
}

// run executes the whole state machine: primary attempts, then fallback
// resolution. It never panics and never returns an error.
func (x *execution[T]) run(ctx context.Context, fn func(context.Context) (T, error)) (T, bool) {
	val, err := x.runPrimary(ctx, fn)
	if err == nil {
		x.succeed(ctx, val, false)
		return val, true
	}

	x.lastErr = err
	x.fail(ctx, err, false)

	return x.resolveFallback(ctx)
}

// runPrimary calls fn until it succeeds or the retry budget is spent, and
// returns the last failure.
func (x *execution[T]) runPrimary(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	attempt := x.attemptFunc(fn)
	retriesLeft := x.cfg.retries

	for {
		if err := ctx.Err(); err != nil {
			return zero, err //nolint:wrapcheck // preserving context error identity
		}

		x.attempts++

		val, err := attempt(ctx)
		if err == nil {
			return val, nil
		}

		retriesLeft--

		if !x.cfg.retry || retriesLeft < 0 || !x.cfg.retryable(err) {
			return zero, err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr //nolint:wrapcheck // preserving context error identity
		}

		n := x.cfg.retries - retriesLeft

		var delay time.Duration
		if x.susp.clock() != nil {
			delay = x.cfg.delay(n - 1)
		}

		x.emit.emitRetry(ctx, n, err, delay)

		if sleepErr := x.susp.sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

// attemptFunc wraps fn for a single primary attempt: panic capture always,
// the timeout race only when enabled and the mode can suspend.
func (x *execution[T]) attemptFunc(fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	clock := x.susp.clock()
	if !x.cfg.timeout || clock == nil {
		return Chain[T](recoverPanics[T])(fn)
	}

	onTimeout := func(ctx context.Context) {
		x.emit.emitTimeout(ctx, x.attempts)
	}

	return Chain[T](
		withTimeout[T](clock, x.cfg.timeoutAfter, onTimeout),
		recoverPanics[T],
	)(fn)
}

func (x *execution[T]) succeed(ctx context.Context, val T, fromFallback bool) {
	x.emit.emitSuccess(ctx, val)
	x.finish(ctx, nil, fromFallback)
}

// fail reports err. A fallback failure is terminal; a primary failure is
// followed by fallback resolution.
func (x *execution[T]) fail(ctx context.Context, err error, fallback bool) {
	x.emit.emitError(ctx, err, fallback)

	if fallback {
		x.finish(ctx, err, false)
	}
}

func (x *execution[T]) finish(ctx context.Context, err error, fromFallback bool) {
	x.emit.emitOutcome(ctx, Outcome{
		Err:          err,
		Attempts:     x.attempts,
		Fallbacks:    x.fallbacks,
		Duration:     x.cfg.clock.Since(x.start),
		Succeeded:    err == nil,
		FromFallback: fromFallback,
	})
}
