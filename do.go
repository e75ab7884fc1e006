package tryvial

import "context"

// Do runs fn with retry, timeout and fallback behaviour built from opts. It
// creates an anonymous policy for this call only, so nothing survives the
// return. See [Policy.Do].
func Do[T any](ctx context.Context, fn func(context.Context) (T, error), opts ...any) (T, bool) {
	return NewPolicy[T]("", opts...).Do(ctx, fn)
}

// DoSync is the blocking counterpart of [Do]: no timeout race and no delay
// between retries. See [Policy.DoSync].
func DoSync[T any](fn func() (T, error), opts ...any) (T, bool) {
	return NewPolicy[T]("", opts...).DoSync(fn)
}
