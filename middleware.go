package tryvial

import (
	"context"
	"runtime/debug"
)

// Pattern: Decorator — each per-attempt concern wraps the next, forming a
// chain where order determines execution semantics.

// Middleware wraps a single attempt with additional behavior.
type Middleware[T any] func(next func(context.Context) (T, error)) func(context.Context) (T, error)

// Chain composes multiple middlewares into a single middleware.
// Middlewares are applied in order: the first middleware is the outermost
// wrapper.
//
// Chain(a, b, c) produces a(b(c(next))). Chain() with zero middlewares
// returns an identity middleware.
func Chain[T any](middlewares ...Middleware[T]) Middleware[T] {
	return func(next func(context.Context) (T, error)) func(context.Context) (T, error) {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}

		return next
	}
}

// recoverPanics turns a panic in next into a *PanicError failure. It must be
// the innermost wrapper so that it runs on the goroutine that calls the
// operation.
func recoverPanics[T any](next func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (val T, err error) {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				val = zero
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()

		return next(ctx)
	}
}
