package observe

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/givensuman/tryvial"
)

// SpanName returns the span name used for a policy: tryvial.<name>, or
// tryvial.do for an anonymous policy.
func SpanName(name string) string {
	if name == "" {
		return "tryvial.do"
	}

	return "tryvial." + name
}

// Do runs fn like tryvial.Do inside a span recorded by r. The policy is named
// name, built from opts, and has r appended as an observer.
func Do[T any](
	ctx context.Context,
	r *Recorder,
	name string,
	fn func(context.Context) (T, error),
	opts ...any,
) (T, bool) {
	ctx, span := r.start(ctx, name)
	defer span.End()

	return tryvial.NewPolicy[T](name, opts, tryvial.WithObserver(r)).Do(ctx, fn)
}

// DoSync runs fn like tryvial.DoSync inside a span recorded by r. ctx only
// parents the span and is never waited on.
func DoSync[T any](
	ctx context.Context,
	r *Recorder,
	name string,
	fn func() (T, error),
	opts ...any,
) (T, bool) {
	ctx, span := r.start(ctx, name)
	defer span.End()

	return tryvial.NewPolicy[T](name, opts, tryvial.WithObserver(r)).DoSyncContext(ctx, fn)
}

// start opens the execution span and returns it with a context carrying it
// and the policy name.
func (r *Recorder) start(ctx context.Context, name string) (context.Context, trace.Span) {
	ctx = withPolicyName(ctx, name)

	attrs := []attribute.KeyValue{
		executionIDKey.String(uuid.NewString()),
	}
	if name != "" {
		attrs = append(attrs, policyKey.String(name))
	}

	return r.tracer.Start(ctx, SpanName(name),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}
