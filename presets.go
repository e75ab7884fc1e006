package tryvial

import "time"

// Pattern: Factory Function — each preset produces a ready-made option bundle
// for a common use case. Bundles are []any and may be passed directly as a
// single option: Do(ctx, fn, QuickRetry(), OnError(...)).

// QuickRetry retries twice with a 50ms delay and up to 50ms of jitter.
func QuickRetry() []any {
	return []any{
		WithRetryDefault(),
		WithRetryDelay(50 * time.Millisecond),
		WithJitter(50 * time.Millisecond),
	}
}

// PatientRetry retries five times with exponential backoff from 200ms capped
// at 5s, and gives each attempt 10s.
func PatientRetry() []any {
	return []any{
		WithRetry(5),
		WithBackoff(ExponentialBackoff(200 * time.Millisecond)),
		WithMaxDelay(5 * time.Second),
		WithTimeout(DefaultTimeoutAfter),
	}
}

// Deadline gives each attempt d and retries once immediately after a timeout
// or failure.
func Deadline(d time.Duration) []any {
	return []any{
		WithTimeout(d),
		WithRetry(1),
	}
}
