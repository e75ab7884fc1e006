package tryvial

import (
	"context"
	"errors"
	"testing"
)

func alwaysFail[T any](msg string) func(context.Context) (T, error) {
	return func(context.Context) (T, error) {
		var zero T
		return zero, errors.New(msg)
	}
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func TestFallbackConstructors(t *testing.T) {
	ok := func(context.Context) (int, error) { return 1, nil }

	tests := []struct {
		name     string
		fallback Fallback[int]
		kind     FallbackKind
		length   int
	}{
		{name: "zero value", fallback: Fallback[int]{}, kind: FallbackNone, length: 0},
		{name: "none", fallback: NoFallback[int](), kind: FallbackNone, length: 0},
		{name: "single", fallback: SingleFallback(ok), kind: FallbackSingle, length: 1},
		{name: "single nil", fallback: SingleFallback[int](nil), kind: FallbackNone, length: 0},
		{name: "many", fallback: ManyFallbacks(ok, ok, ok), kind: FallbackMany, length: 3},
		{name: "many drops nil", fallback: ManyFallbacks(ok, nil, ok), kind: FallbackMany, length: 2},
		{name: "many empty", fallback: ManyFallbacks[int](), kind: FallbackNone, length: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fallback.Kind(); got != tc.kind {
				t.Fatalf("Kind() = %v, want %v", got, tc.kind)
			}
			if got := tc.fallback.Len(); got != tc.length {
				t.Fatalf("Len() = %d, want %d", got, tc.length)
			}
		})
	}
}

func TestFallbackKindString(t *testing.T) {
	for kind, want := range map[FallbackKind]string{
		FallbackNone:    "none",
		FallbackSingle:  "single",
		FallbackMany:    "many",
		FallbackKind(9): "unknown",
	} {
		if got := kind.String(); got != want {
			t.Fatalf("FallbackKind(%d).String() = %q, want %q", int(kind), got, want)
		}
	}
}

func TestManyFallbacksCopiesInput(t *testing.T) {
	fns := []func(context.Context) (string, error){
		func(context.Context) (string, error) { return "a", nil },
	}
	fb := ManyFallbacks(fns...)
	fns[0] = alwaysFail[string]("replaced")

	got, ok := Do(context.Background(), alwaysFail[string]("primary"),
		WithFallbackVariant(fb),
		OnError(func(error) {}),
	)
	if !ok || got != "a" {
		t.Fatalf("Do() = (%q, %v), want (a, true)", got, ok)
	}
}

// ---------------------------------------------------------------------------
// Single
// ---------------------------------------------------------------------------

func TestSingleFallbackSuccess(t *testing.T) {
	var log hookLog[string]
	obs := &recordingObserver{}

	got, ok := Do(context.Background(), alwaysFail[string]("primary down"),
		WithFallback(func(context.Context) (string, error) { return "backup", nil }),
		WithHooks(log.hooks()),
		WithObserver(obs),
	)

	if !ok || got != "backup" {
		t.Fatalf("Do() = (%q, %v), want (backup, true)", got, ok)
	}
	if len(log.errs) != 1 || log.errs[0].Error() != "primary down" {
		t.Fatalf("OnError = %v, want only the primary failure", log.errs)
	}
	if len(log.successes) != 1 || log.successes[0] != "backup" {
		t.Fatalf("OnSuccess = %v, want [backup]", log.successes)
	}

	out := obs.outcome(t)
	if !out.Succeeded || !out.FromFallback || out.Fallbacks != 1 || out.Attempts != 1 {
		t.Fatalf("outcome = %+v, want success from 1 fallback after 1 attempt", out)
	}
}

func TestSingleFallbackFailureReportsOwnError(t *testing.T) {
	var log hookLog[int]
	backupErr := errors.New("backup down")

	got, ok := Do(context.Background(), alwaysFail[int]("primary down"),
		WithFallback(func(context.Context) (int, error) { return 0, backupErr }),
		WithHooks(log.hooks()),
	)

	if ok || got != 0 {
		t.Fatalf("Do() = (%d, %v), want absence", got, ok)
	}
	if len(log.errs) != 2 {
		t.Fatalf("OnError called %d times, want 2", len(log.errs))
	}
	if log.errs[0].Error() != "primary down" || log.errs[1] != backupErr {
		t.Fatalf("OnError = %v, want [primary down, backup down]", log.errs)
	}
	var fe *FallbackError
	if errors.As(log.errs[1], &fe) {
		t.Fatal("single fallback failure wrapped in *FallbackError")
	}
}

func TestFallbackValue(t *testing.T) {
	got, ok := Do(context.Background(), alwaysFail[string]("down"),
		WithFallbackValue("default"),
		OnError(func(error) {}),
	)

	if !ok || got != "default" {
		t.Fatalf("Do() = (%q, %v), want (default, true)", got, ok)
	}
}

func TestFallbackNotCalledOnSuccess(t *testing.T) {
	called := false

	got, ok := Do(context.Background(),
		func(context.Context) (int, error) { return 5, nil },
		WithFallback(func(context.Context) (int, error) {
			called = true
			return 0, nil
		}),
	)

	if !ok || got != 5 {
		t.Fatalf("Do() = (%d, %v), want (5, true)", got, ok)
	}
	if called {
		t.Fatal("fallback called after primary success")
	}
}

func TestFallbackRunsOnceAfterRetries(t *testing.T) {
	primary, fallback := 0, 0

	Do(context.Background(),
		func(context.Context) (int, error) {
			primary++
			return 0, errors.New("fail")
		},
		WithClock(newImmediateTestClock()),
		WithRetry(3),
		WithFallback(func(context.Context) (int, error) {
			fallback++
			return 0, errors.New("fallback fail")
		}),
		OnError(func(error) {}),
	)

	if primary != 4 {
		t.Fatalf("primary calls = %d, want 4", primary)
	}
	if fallback != 1 {
		t.Fatalf("fallback calls = %d, want 1 (fallbacks are never retried)", fallback)
	}
}

// ---------------------------------------------------------------------------
// Many
// ---------------------------------------------------------------------------

func TestManyFallbacksFirstSuccessWins(t *testing.T) {
	for k := 0; k < 3; k++ {
		calls := make([]int, 4)
		fns := make([]func(context.Context) (int, error), 4)
		for i := range fns {
			fns[i] = func(context.Context) (int, error) {
				calls[i]++
				if i < k {
					return 0, errors.New("fallback fail")
				}
				return 100 + i, nil
			}
		}

		var log hookLog[int]
		got, ok := Do(context.Background(), alwaysFail[int]("primary"),
			WithFallbacks(fns...),
			WithHooks(log.hooks()),
		)

		if !ok || got != 100+k {
			t.Fatalf("k=%d: Do() = (%d, %v), want (%d, true)", k, got, ok, 100+k)
		}
		for i, n := range calls {
			want := 0
			if i <= k {
				want = 1
			}
			if n != want {
				t.Fatalf("k=%d: fallback %d called %d times, want %d", k, i, n, want)
			}
		}
		if len(log.errs) != 1 {
			t.Fatalf("k=%d: OnError called %d times, want 1 (primary only)", k, len(log.errs))
		}
	}
}

func TestManyFallbacksAllFail(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	errC := errors.New("c")
	var log hookLog[string]
	obs := &recordingObserver{}

	got, ok := Do(context.Background(), alwaysFail[string]("primary"),
		WithFallbacks(
			func(context.Context) (string, error) { return "", errA },
			func(context.Context) (string, error) { return "", errB },
			func(context.Context) (string, error) { return "", errC },
		),
		WithHooks(log.hooks()),
		WithObserver(obs),
	)

	if ok || got != "" {
		t.Fatalf("Do() = (%q, %v), want absence", got, ok)
	}
	if len(log.errs) != 2 {
		t.Fatalf("OnError called %d times, want 2", len(log.errs))
	}

	var fe *FallbackError
	if !errors.As(log.errs[1], &fe) {
		t.Fatalf("second OnError = %v, want *FallbackError", log.errs[1])
	}
	want := []error{errA, errB, errC}
	if len(fe.Errors) != len(want) {
		t.Fatalf("FallbackError has %d errors, want %d", len(fe.Errors), len(want))
	}
	for i := range want {
		if fe.Errors[i] != want[i] {
			t.Fatalf("FallbackError.Errors[%d] = %v, want %v", i, fe.Errors[i], want[i])
		}
	}

	out := obs.outcome(t)
	if out.Succeeded || out.Fallbacks != 3 || !errors.As(out.Err, &fe) {
		t.Fatalf("outcome = %+v, want failure after 3 fallbacks", out)
	}
}

func TestFallbackPanicIsCaptured(t *testing.T) {
	var errs []error

	got, ok := Do(context.Background(), alwaysFail[int]("primary"),
		WithFallbacks(
			func(context.Context) (int, error) { panic("fallback exploded") },
			func(context.Context) (int, error) { return 3, nil },
		),
		OnError(func(err error) { errs = append(errs, err) }),
	)

	if !ok || got != 3 {
		t.Fatalf("Do() = (%d, %v), want (3, true)", got, ok)
	}
	if len(errs) != 1 {
		t.Fatalf("OnError called %d times, want 1", len(errs))
	}
}

// ---------------------------------------------------------------------------
// Hook ordering
// ---------------------------------------------------------------------------

func TestPrimaryErrorReportedBeforeFallbackRuns(t *testing.T) {
	var order []string

	Do(context.Background(), alwaysFail[int]("primary"),
		OnError(func(error) { order = append(order, "error") }),
		WithFallback(func(context.Context) (int, error) {
			order = append(order, "fallback")
			return 1, nil
		}),
		OnSuccess(func(int) { order = append(order, "success") }),
	)

	want := []string{"error", "fallback", "success"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestFallbackReceivesCallerContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	var seen any

	Do(ctx, alwaysFail[int]("primary"),
		WithFallback(func(ctx context.Context) (int, error) {
			seen = ctx.Value(key{})
			return 0, nil
		}),
		OnError(func(error) {}),
	)

	if seen != "v" {
		t.Fatalf("fallback saw ctx value %v, want v", seen)
	}
}
