// Package tryvial wraps a fallible function call with retry, timeout and
// fallback policies plus lifecycle hooks.
//
// The central entry points are [Do] (suspendable, context-aware) and [DoSync]
// (blocking, no timers). Both run the same engine: attempt, optional timeout
// race, retry with backoff, fallback chain, error aggregation. Failures never
// escape the call; they are reported through [Hooks], an optional [Observer]
// or the default log sink, and the call returns (zero, false).
//
// A reusable, immutable configuration can be built once with [NewPolicy]; each
// [Policy.Do] is still a fresh execution that shares no state with other calls.
package tryvial
