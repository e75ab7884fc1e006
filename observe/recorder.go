package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/givensuman/tryvial"
)

const instrumentationName = "github.com/givensuman/tryvial/observe"

// Outcome attribute values of tryvial.executions.
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
	OutcomeFailure  = "failure"
)

// Attribute keys.
const (
	policyKey      = attribute.Key("tryvial.policy")
	executionIDKey = attribute.Key("tryvial.execution_id")
	attemptKey     = attribute.Key("tryvial.attempt")
	attemptsKey    = attribute.Key("tryvial.attempts")
	fallbacksKey   = attribute.Key("tryvial.fallbacks")
	delayKey       = attribute.Key("tryvial.delay_ms")
	outcomeKey     = attribute.Key("outcome")
)

type recorderConfig struct {
	tp trace.TracerProvider
	mp metric.MeterProvider
}

// RecorderOption configures a Recorder.
type RecorderOption func(*recorderConfig)

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) RecorderOption {
	return func(c *recorderConfig) {
		c.tp = tp
	}
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) RecorderOption {
	return func(c *recorderConfig) {
		c.mp = mp
	}
}

// Recorder turns tryvial lifecycle events into spans and metrics. It is safe
// for concurrent use and may be shared by any number of policies.
type Recorder struct {
	tracer     trace.Tracer
	retries    metric.Int64Counter
	timeouts   metric.Int64Counter
	executions metric.Int64Counter
	duration   metric.Float64Histogram
}

var _ tryvial.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder and its instruments.
func NewRecorder(opts ...RecorderOption) (*Recorder, error) {
	cfg := recorderConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.tp == nil {
		cfg.tp = otel.GetTracerProvider()
	}

	if cfg.mp == nil {
		cfg.mp = otel.GetMeterProvider()
	}

	meter := cfg.mp.Meter(instrumentationName)

	retries, err := meter.Int64Counter(
		"tryvial.retries",
		metric.WithDescription("Retries scheduled after a failed attempt"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	timeouts, err := meter.Int64Counter(
		"tryvial.timeouts",
		metric.WithDescription("Attempts abandoned after losing the timeout race"),
		metric.WithUnit("{timeout}"),
	)
	if err != nil {
		return nil, err
	}

	executions, err := meter.Int64Counter(
		"tryvial.executions",
		metric.WithDescription("Finished executions by outcome"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"tryvial.duration_ms",
		metric.WithDescription("Execution duration in milliseconds, fallbacks included"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		tracer:     cfg.tp.Tracer(instrumentationName),
		retries:    retries,
		timeouts:   timeouts,
		executions: executions,
		duration:   duration,
	}, nil
}

// ObserveRetry counts the retry and adds a tryvial.retry event to the
// current span.
func (r *Recorder) ObserveRetry(ctx context.Context, attempt int, err error, delay time.Duration) {
	r.retries.Add(ctx, 1, metric.WithAttributes(policyAttrs(ctx)...))

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attemptKey.Int(attempt),
		delayKey.Int64(delay.Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}

	span.AddEvent("tryvial.retry", trace.WithAttributes(attrs...))
}

// ObserveTimeout counts the timeout and adds a tryvial.timeout event to the
// current span.
func (r *Recorder) ObserveTimeout(ctx context.Context, attempt int) {
	r.timeouts.Add(ctx, 1, metric.WithAttributes(policyAttrs(ctx)...))

	trace.SpanFromContext(ctx).AddEvent("tryvial.timeout",
		trace.WithAttributes(attemptKey.Int(attempt)),
	)
}

// ObserveOutcome records the outcome and duration and sets the status of the
// current span. It does not end the span.
func (r *Recorder) ObserveOutcome(ctx context.Context, o tryvial.Outcome) {
	attrs := append(policyAttrs(ctx), outcomeKey.String(outcomeOf(o)))
	opt := metric.WithAttributes(attrs...)

	r.executions.Add(ctx, 1, opt)
	r.duration.Record(ctx, float64(o.Duration.Milliseconds()), opt)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attemptsKey.Int(o.Attempts),
		fallbacksKey.Int(o.Fallbacks),
	)

	if o.Succeeded {
		span.SetStatus(codes.Ok, "")
		return
	}

	if o.Err != nil {
		span.RecordError(o.Err)
		span.SetStatus(codes.Error, o.Err.Error())

		return
	}

	span.SetStatus(codes.Error, OutcomeFailure)
}

func outcomeOf(o tryvial.Outcome) string {
	switch {
	case o.Succeeded && o.FromFallback:
		return OutcomeFallback
	case o.Succeeded:
		return OutcomeSuccess
	default:
		return OutcomeFailure
	}
}

// ---------------------------------------------------------------------------
// Policy name carried by the context
// ---------------------------------------------------------------------------

type policyNameKey struct{}

func withPolicyName(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}

	return context.WithValue(ctx, policyNameKey{}, name)
}

func policyAttrs(ctx context.Context) []attribute.KeyValue {
	name, ok := ctx.Value(policyNameKey{}).(string)
	if !ok {
		return nil
	}

	return []attribute.KeyValue{policyKey.String(name)}
}
