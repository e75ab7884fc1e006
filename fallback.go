package tryvial

import "context"

// Pattern: Fallback — once the primary operation has exhausted its retry
// budget, try alternatives in order. Fallbacks are never retried and never
// raced against the timeout.

// FallbackKind tags the shape of a [Fallback].
type FallbackKind int

const (
	// FallbackNone means there is nothing to fall back to.
	FallbackNone FallbackKind = iota
	// FallbackSingle is one function; its failure is reported as-is.
	FallbackSingle
	// FallbackMany is an ordered chain; if every entry fails the failures
	// are reported together as a *FallbackError.
	FallbackMany
)

// String returns the kind name.
func (k FallbackKind) String() string {
	switch k {
	case FallbackNone:
		return "none"
	case FallbackSingle:
		return "single"
	case FallbackMany:
		return "many"
	default:
		return "unknown"
	}
}

// Fallback is the tagged variant {None, Single(fn), Many(fns)}. The zero value
// is None.
type Fallback[T any] struct {
	fns  []func(context.Context) (T, error)
	kind FallbackKind
}

// NoFallback returns the None variant.
func NoFallback[T any]() Fallback[T] { return Fallback[T]{} }

// SingleFallback returns the Single variant. A nil fn yields None.
func SingleFallback[T any](fn func(context.Context) (T, error)) Fallback[T] {
	if fn == nil {
		return Fallback[T]{}
	}

	return Fallback[T]{kind: FallbackSingle, fns: []func(context.Context) (T, error){fn}}
}

// ManyFallbacks returns the Many variant over a copy of fns. Nil entries are
// dropped; an empty chain yields None.
func ManyFallbacks[T any](fns ...func(context.Context) (T, error)) Fallback[T] {
	chain := make([]func(context.Context) (T, error), 0, len(fns))

	for _, fn := range fns {
		if fn != nil {
			chain = append(chain, fn)
		}
	}

	if len(chain) == 0 {
		return Fallback[T]{}
	}

	return Fallback[T]{kind: FallbackMany, fns: chain}
}

// Kind reports which variant f is.
func (f Fallback[T]) Kind() FallbackKind { return f.kind }

// Len returns the number of functions in f.
func (f Fallback[T]) Len() int { return len(f.fns) }

// resolveFallback runs the configured variant once the primary operation has
// failed for good.
func (x *execution[T]) resolveFallback(ctx context.Context) (T, bool) {
	var zero T

	switch x.cfg.fallback.kind {
	case FallbackSingle:
		val, err := x.callFallback(ctx, x.cfg.fallback.fns[0])
		if err != nil {
			x.fail(ctx, err, true)
			return zero, false
		}

		x.succeed(ctx, val, true)

		return val, true

	case FallbackMany:
		errs := make([]error, 0, len(x.cfg.fallback.fns))

		for _, fn := range x.cfg.fallback.fns {
			val, err := x.callFallback(ctx, fn)
			if err == nil {
				x.succeed(ctx, val, true)
				return val, true
			}

			errs = append(errs, err)
		}

		x.fail(ctx, &FallbackError{Errors: errs}, true)

		return zero, false

	default:
		x.finish(ctx, x.lastErr, false)
		return zero, false
	}
}

func (x *execution[T]) callFallback(ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	x.fallbacks++
	return recoverPanics(fn)(ctx)
}
