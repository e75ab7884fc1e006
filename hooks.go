package tryvial

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// Hooks holds the optional lifecycle callbacks of one execution. All fields
// are nil by default; callers set only the hooks they care about. A hook is
// called synchronously on the goroutine running the execution.
//
// Pattern: Observer — decouples event emission from consumers (logging,
// metrics, alerting) without the engine knowing about them.
type Hooks[T any] struct {
	// OnRetry is called before the delay that precedes a retry. attempt is
	// 1-based and counts retries, not calls.
	OnRetry func(attempt int, err error)
	// OnSuccess receives the value returned to the caller, whether it came
	// from the operation or a fallback.
	OnSuccess func(result T)
	// OnError receives the primary failure once the retry budget is spent,
	// and the fallback failure when a fallback also fails. After a failed
	// fallback chain it receives a *FallbackError. When nil, failures are
	// logged instead.
	OnError func(err error)
	// OnTimeout is called when an attempt loses its race against the timeout.
	OnTimeout func()
}

// Outcome summarises a finished execution for an [Observer].
type Outcome struct {
	// Err is the last reported failure; nil when Succeeded.
	Err error
	// Attempts counts calls to the primary operation.
	Attempts int
	// Fallbacks counts calls to fallback functions.
	Fallbacks int
	// Duration is the wall time of the whole execution.
	Duration time.Duration
	// Succeeded reports whether a value was returned.
	Succeeded bool
	// FromFallback reports whether the value came from a fallback.
	FromFallback bool
}

// Observer receives the engine's lifecycle events together with the
// execution context. It is independent of [Hooks]: both fire when both are
// configured, and several observers may be registered on one policy.
// Implementations must be safe for concurrent use when the
// policy is shared.
type Observer interface {
	// ObserveRetry is called alongside OnRetry with the computed delay.
	ObserveRetry(ctx context.Context, attempt int, err error, delay time.Duration)
	// ObserveTimeout is called alongside OnTimeout; attempt is 1-based.
	ObserveTimeout(ctx context.Context, attempt int)
	// ObserveOutcome is called exactly once when the execution returns.
	ObserveOutcome(ctx context.Context, o Outcome)
}

// Fixed messages of the default error sink.
const (
	errorMessage         = "tryvial: error occurred"
	fallbackErrorMessage = "tryvial: fallback error occurred"
	hookPanicMessage     = "tryvial: hook panicked"
)

// emitter dispatches one execution's events to hooks, observers and the
// log sink. A panic in a hook or observer is recovered and logged as a
// *PanicError; it never changes the execution's result.
type emitter[T any] struct {
	hooks     Hooks[T]
	observers []Observer
	logger    *slog.Logger
	policy    string
}

func (e *emitter[T]) emitRetry(ctx context.Context, attempt int, err error, delay time.Duration) {
	if e.hooks.OnRetry != nil {
		e.guard(ctx, "OnRetry", func() { e.hooks.OnRetry(attempt, err) })
	}

	for _, o := range e.observers {
		e.guard(ctx, "ObserveRetry", func() { o.ObserveRetry(ctx, attempt, err, delay) })
	}
}

func (e *emitter[T]) emitSuccess(ctx context.Context, result T) {
	if e.hooks.OnSuccess != nil {
		e.guard(ctx, "OnSuccess", func() { e.hooks.OnSuccess(result) })
	}
}

func (e *emitter[T]) emitTimeout(ctx context.Context, attempt int) {
	if e.hooks.OnTimeout != nil {
		e.guard(ctx, "OnTimeout", e.hooks.OnTimeout)
	}

	for _, o := range e.observers {
		e.guard(ctx, "ObserveTimeout", func() { o.ObserveTimeout(ctx, attempt) })
	}
}

// emitError hands err to OnError, or writes it to the log sink with the
// primary or fallback message.
func (e *emitter[T]) emitError(ctx context.Context, err error, fallback bool) {
	if e.hooks.OnError != nil {
		e.guard(ctx, "OnError", func() { e.hooks.OnError(err) })
		return
	}

	msg := errorMessage
	if fallback {
		msg = fallbackErrorMessage
	}

	e.log(ctx, msg, err)
}

func (e *emitter[T]) emitOutcome(ctx context.Context, o Outcome) {
	for _, obs := range e.observers {
		e.guard(ctx, "ObserveOutcome", func() { obs.ObserveOutcome(ctx, o) })
	}
}

// guard runs a caller-supplied callback named hook.
func (e *emitter[T]) guard(ctx context.Context, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log(ctx, hookPanicMessage, &PanicError{Value: r, Stack: debug.Stack()},
				slog.String("hook", hook))
		}
	}()

	fn()
}

func (e *emitter[T]) log(ctx context.Context, msg string, err error, extra ...slog.Attr) {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []slog.Attr{slog.Any("error", err)}
	if e.policy != "" {
		attrs = append(attrs, slog.String("policy", e.policy))
	}

	logger.LogAttrs(ctx, slog.LevelError, msg, append(attrs, extra...)...)
}
