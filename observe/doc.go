// Package observe exports tryvial executions to OpenTelemetry.
//
// A Recorder implements tryvial.Observer. Used as a plain observer it counts
// retries, timeouts and outcomes and records execution duration. Used through
// Do or DoSync it also wraps every execution in a span named
// tryvial.<policy>, tagged with a fresh execution id, to which retries and
// timeouts are added as events and the outcome as the span status.
//
// Instruments:
//   - tryvial.retries (counter, {retry})
//   - tryvial.timeouts (counter, {timeout})
//   - tryvial.executions (counter, {execution}; attribute outcome is one of
//     success, fallback, failure)
//   - tryvial.duration_ms (histogram, ms)
//
// All instruments carry a tryvial.policy attribute when the execution was
// started through Do or DoSync with a non-empty name.
package observe
