package tryvial

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Error classification wrappers
// ---------------------------------------------------------------------------

type (
	// ResilienceError identifies errors produced by tryvial itself, as
	// opposed to errors returned by the wrapped function.
	//nolint:iface // exported for consumer error classification.
	ResilienceError interface {
		error
		// IsResilience reports whether this error originates from the
		// resilience layer.
		IsResilience() bool
	}

	// FallbackError is reported to OnError when every function of a
	// fallback chain failed. Errors holds each failure in invocation order.
	FallbackError struct {
		Errors []error
	}

	// PanicError is the failure recorded when an operation or fallback
	// panics. Value is the recovered value, Stack the goroutine stack at the
	// point of the panic.
	PanicError struct {
		Value any
		Stack []byte
	}

	// transientError marks a wrapped error as transient (retriable).
	transientError struct {
		err error
	}

	// permanentError marks a wrapped error as permanent (non-retriable).
	permanentError struct {
		err error
	}

	// resilienceError is the concrete type backing all sentinel errors.
	resilienceError string
)

// Sentinel resilience errors.
var (
	// ErrTimeout is the failure of an attempt that did not settle before
	// the timeout elapsed.
	ErrTimeout error = resilienceError("tryvial: timeout")
)

func (e *transientError) Error() string { return "transient: " + e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (e resilienceError) Error() string { return string(e) }

// IsResilience reports whether the error is a resilience infrastructure error.
func (resilienceError) IsResilience() bool { return true }

// Error lists every collected failure.
func (e *FallbackError) Error() string {
	var b strings.Builder

	b.WriteString("tryvial: all ")
	b.WriteString(strconv.Itoa(len(e.Errors)))
	b.WriteString(" fallbacks failed")

	for i, err := range e.Errors {
		b.WriteString("; [")
		b.WriteString(strconv.Itoa(i))
		b.WriteString("] ")
		b.WriteString(err.Error())
	}

	return b.String()
}

// Unwrap exposes the collected failures to [errors.Is] and [errors.As].
func (e *FallbackError) Unwrap() []error { return e.Errors }

// IsResilience reports true: the aggregate is built by the engine.
func (*FallbackError) IsResilience() bool { return true }

func (e *PanicError) Error() string {
	return fmt.Sprintf("tryvial: panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Transient wraps err to mark it as a transient (retriable) error.
// Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &transientError{err: err}
}

// Permanent wraps err to mark it as a permanent (non-retriable) error. A
// permanent failure ends the retry loop immediately; fallbacks still run.
// Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// IsTransient reports whether err is transient. Unclassified (unwrapped)
// errors are treated as transient. Returns false for nil.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pe *permanentError

	return !errors.As(err, &pe)
}

// IsPermanent reports whether err was explicitly marked as permanent.
// Returns false for nil and for unclassified errors.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var pe *permanentError

	return errors.As(err, &pe)
}
