package tryvial

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Defaults applied when an option is not given.
const (
	// DefaultRetries is the number of extra attempts used by
	// [WithRetryDefault] and by a [Config] that enables retry without saying
	// how many.
	DefaultRetries = 2
	// DefaultTimeoutAfter is the timeout used by [WithTimeout] when given a
	// non-positive duration, and by a [Config] that enables timeout without
	// a duration.
	DefaultTimeoutAfter = 10 * time.Second
)

// ---------------------------------------------------------------------------
// Policy[T] — immutable configuration snapshot
// ---------------------------------------------------------------------------

// Policy is an immutable snapshot of retry, timeout, fallback and hook
// configuration. Every call to [Policy.Do] or [Policy.DoSync] is a fresh
// execution that owns its counters and error accumulator, so a Policy is safe
// for concurrent use.
//
// Pattern: Functional Options — configures Policy[T] via option values;
// generic options use any to work around Go's generic type constraint on
// function signatures.
type Policy[T any] struct {
	cfg settings[T]
}

// Name returns the policy's name.
func (p *Policy[T]) Name() string { return p.cfg.name }

// Do runs fn under the policy in the suspendable mode: attempts may be raced
// against the timeout, and retries sleep on the policy clock. It returns the
// value and true on success, or the zero value and false once every failure
// path is exhausted.
func (p *Policy[T]) Do(ctx context.Context, fn func(context.Context) (T, error)) (T, bool) {
	x := newExecution(&p.cfg, clockSuspender{c: p.cfg.clock})
	return x.run(ctx, fn)
}

// DoSync runs fn under the policy in the blocking mode: the timeout is ignored
// and retries run back-to-back without delay. Fallbacks receive
// [context.Background].
func (p *Policy[T]) DoSync(fn func() (T, error)) (T, bool) {
	return p.DoSyncContext(context.Background(), fn)
}

// DoSyncContext is DoSync with a caller context. The execution never waits on
// ctx; it is checked before each attempt and handed to fallbacks, observers
// and the log sink.
func (p *Policy[T]) DoSyncContext(ctx context.Context, fn func() (T, error)) (T, bool) {
	x := newExecution(&p.cfg, noSuspend{})
	return x.run(ctx, Sync(fn))
}

// Sync adapts a blocking function to the operation signature. The context is
// ignored.
func Sync[T any](fn func() (T, error)) func(context.Context) (T, error) {
	return func(context.Context) (T, error) {
		return fn()
	}
}

// ---------------------------------------------------------------------------
// settings — resolved configuration
// ---------------------------------------------------------------------------

// policySetup holds the non-generic part of the configuration.
type policySetup struct {
	clock     Clock
	backoff   BackoffStrategy
	logger    *slog.Logger
	observers []Observer
	retryIf   func(error) bool

	onRetry   func(attempt int, err error)
	onError   func(err error)
	onTimeout func()

	retries      int
	retryDelay   time.Duration
	jitter       time.Duration
	maxDelay     time.Duration
	timeoutAfter time.Duration
	retry        bool
	timeout      bool
}

// settings is the fully resolved configuration of a Policy[T].
type settings[T any] struct {
	policySetup

	fallback Fallback[T]
	hooks    Hooks[T]
	name     string

	onSuccess func(result T)
}

// delay returns the wait before the retry with 0-based index i.
func (s *settings[T]) delay(i int) time.Duration {
	d := s.backoff.Delay(i)
	if s.maxDelay > 0 && d > s.maxDelay {
		d = s.maxDelay
	}

	return max(d, 0)
}

// retryable reports whether err may be retried, leaving the budget aside.
func (s *settings[T]) retryable(err error) bool {
	if IsPermanent(err) {
		return false
	}

	return s.retryIf == nil || s.retryIf(err)
}

// ---------------------------------------------------------------------------
// Option descriptors — stored as any, interpreted by NewPolicy[T]
// ---------------------------------------------------------------------------

// policyOptionFunc is a non-generic option that modifies policySetup.
type policyOptionFunc func(*policySetup)

// fallbackDesc holds a type-erased Fallback[T].
type fallbackDesc struct {
	fallback any
}

// fallbackValueDesc holds a type-erased static fallback value.
type fallbackValueDesc struct {
	val any
}

// hooksDesc holds a type-erased Hooks[T].
type hooksDesc struct {
	hooks any
}

// successDesc holds a type-erased func(T).
type successDesc struct {
	fn any
}

// configDesc defers a Config until the policy type is known.
type configDesc struct {
	cfg Config
}

// ---------------------------------------------------------------------------
// With* functions — all return any
// ---------------------------------------------------------------------------

// WithRetry enables retrying with at most retries extra attempts after the
// first. retries 0 means a single attempt; negative values are treated as 0.
func WithRetry(retries int) any {
	return policyOptionFunc(func(s *policySetup) {
		s.retry = true
		s.retries = max(retries, 0)
	})
}

// WithRetryDefault enables retrying with [DefaultRetries] extra attempts.
func WithRetryDefault() any {
	return WithRetry(DefaultRetries)
}

// WithRetryDelay sets the base wait between retries.
func WithRetryDelay(d time.Duration) any {
	return policyOptionFunc(func(s *policySetup) {
		s.retryDelay = max(d, 0)
	})
}

// WithJitter adds a random wait in [0, d) on top of the retry delay.
func WithJitter(d time.Duration) any {
	return policyOptionFunc(func(s *policySetup) {
		s.jitter = max(d, 0)
	})
}

// WithBackoff replaces the default delay formula (see [JitterBackoff]) with
// strategy. WithRetryDelay and WithJitter no longer apply.
func WithBackoff(strategy BackoffStrategy) any {
	return policyOptionFunc(func(s *policySetup) {
		s.backoff = strategy
	})
}

// WithMaxDelay caps every computed retry delay.
func WithMaxDelay(d time.Duration) any {
	return policyOptionFunc(func(s *policySetup) {
		s.maxDelay = d
	})
}

// WithRetryIf sets a predicate that must accept a failure for it to be
// retried, in addition to the Transient/Permanent classification.
func WithRetryIf(fn func(error) bool) any {
	return policyOptionFunc(func(s *policySetup) {
		s.retryIf = fn
	})
}

// WithTimeout races each primary attempt against a timer of d. A
// non-positive d selects [DefaultTimeoutAfter]. Ignored by DoSync.
func WithTimeout(d time.Duration) any {
	return policyOptionFunc(func(s *policySetup) {
		s.timeout = true
		if d <= 0 {
			d = DefaultTimeoutAfter
		}
		s.timeoutAfter = d
	})
}

// WithClock sets the clock used for retry delays and timeout races.
func WithClock(c Clock) any {
	return policyOptionFunc(func(s *policySetup) {
		s.clock = c
	})
}

// WithLogger sets the logger used when no OnError hook is configured.
// Defaults to [slog.Default].
func WithLogger(l *slog.Logger) any {
	return policyOptionFunc(func(s *policySetup) {
		s.logger = l
	})
}

// WithObserver registers an [Observer] that receives lifecycle events in
// addition to hooks. Observers accumulate: each WithObserver adds one, and
// they are notified in registration order. A nil o is ignored.
func WithObserver(o Observer) any {
	return policyOptionFunc(func(s *policySetup) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	})
}

// OnRetry sets the retry hook.
func OnRetry(fn func(attempt int, err error)) any {
	return policyOptionFunc(func(s *policySetup) {
		s.onRetry = fn
	})
}

// OnError sets the error hook. Setting it silences the default log sink.
func OnError(fn func(err error)) any {
	return policyOptionFunc(func(s *policySetup) {
		s.onError = fn
	})
}

// OnTimeout sets the timeout hook.
func OnTimeout(fn func()) any {
	return policyOptionFunc(func(s *policySetup) {
		s.onTimeout = fn
	})
}

// OnSuccess sets the success hook. T must match the policy's type parameter.
func OnSuccess[T any](fn func(result T)) any {
	return successDesc{fn: fn}
}

// WithHooks sets every non-nil hook of h. T must match the policy's type
// parameter.
func WithHooks[T any](h Hooks[T]) any {
	return hooksDesc{hooks: h}
}

// WithFallback adds a single fallback function, called once when the primary
// operation has failed for good. T must match the policy's type parameter.
func WithFallback[T any](fn func(context.Context) (T, error)) any {
	return fallbackDesc{fallback: SingleFallback(fn)}
}

// WithFallbacks adds an ordered fallback chain. The first success wins; if all
// fail, OnError receives a *FallbackError holding every failure in order.
func WithFallbacks[T any](fns ...func(context.Context) (T, error)) any {
	return fallbackDesc{fallback: ManyFallbacks(fns...)}
}

// WithFallbackVariant sets the fallback from an explicit [Fallback] value.
func WithFallbackVariant[T any](f Fallback[T]) any {
	return fallbackDesc{fallback: f}
}

// WithFallbackValue adds a single fallback that always returns val.
func WithFallbackValue[T any](val T) any {
	return fallbackValueDesc{val: val}
}

// WithConfig applies a consolidated [Config]. It panics from [NewPolicy] if
// the config does not validate; use [BuildOptions] to handle the error.
func WithConfig(cfg Config) any {
	return configDesc{cfg: cfg}
}

// ---------------------------------------------------------------------------
// NewPolicy[T] — resolve options into settings
// ---------------------------------------------------------------------------

// NewPolicy creates a [Policy] with the given name and options. Options are
// applied in order, so a later option overrides an earlier one for the same
// field. A nested []any (as returned by the presets) is applied in place.
//
// NewPolicy panics on an option it does not recognise, or on a generic option
// instantiated with a type other than T. Both are programming errors caught at
// construction, before any operation runs.
func NewPolicy[T any](name string, opts ...any) *Policy[T] {
	cfg := settings[T]{name: name}

	applyOptions(&cfg, opts)

	if cfg.clock == nil {
		cfg.clock = RealClock{}
	}

	if cfg.backoff == nil {
		cfg.backoff = JitterBackoff(cfg.retryDelay, cfg.jitter)
	}

	cfg.hooks = Hooks[T]{
		OnRetry:   cfg.onRetry,
		OnSuccess: cfg.onSuccess,
		OnError:   cfg.onError,
		OnTimeout: cfg.onTimeout,
	}

	return &Policy[T]{cfg: cfg}
}

func applyOptions[T any](cfg *settings[T], opts []any) {
	for _, opt := range opts {
		switch desc := opt.(type) {
		case nil:

		case policyOptionFunc:
			desc(&cfg.policySetup)

		case []any:
			applyOptions(cfg, desc)

		case configDesc:
			built, err := BuildOptions(&desc.cfg)
			if err != nil {
				panic(fmt.Sprintf("tryvial: invalid config: %v", err))
			}

			applyOptions(cfg, built)

		case fallbackDesc:
			cfg.fallback = mustType[Fallback[T]](desc.fallback, "fallback")

		case fallbackValueDesc:
			val := mustType[T](desc.val, "fallback value")
			cfg.fallback = SingleFallback(func(context.Context) (T, error) {
				return val, nil
			})

		case successDesc:
			cfg.onSuccess = mustType[func(T)](desc.fn, "OnSuccess hook")

		case hooksDesc:
			h := mustType[Hooks[T]](desc.hooks, "hooks")
			if h.OnRetry != nil {
				cfg.onRetry = h.OnRetry
			}

			if h.OnSuccess != nil {
				cfg.onSuccess = h.OnSuccess
			}

			if h.OnError != nil {
				cfg.onError = h.OnError
			}

			if h.OnTimeout != nil {
				cfg.onTimeout = h.OnTimeout
			}

		default:
			panic(fmt.Sprintf("tryvial: unsupported option %T", opt))
		}
	}
}

// mustType asserts a type-erased option value back to V.
//
//nolint:ireturn // generic type parameter V, not an interface
func mustType[V any](v any, what string) V {
	typed, ok := v.(V)
	if !ok {
		var want V
		panic(fmt.Sprintf("tryvial: %s has type %T, policy needs %T", what, v, want))
	}

	return typed
}
