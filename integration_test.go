package tryvial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// flakyServer fails the first failures requests with a 503, then serves a
// quote.
func flakyServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(quote{Symbol: "ACME", Price: 12.5})
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

func fetchQuote(url string) func(context.Context) (quote, error) {
	return func(ctx context.Context) (quote, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return quote{}, Permanent(err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return quote{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			_, _ = io.Copy(io.Discard, resp.Body)
			return quote{}, fmt.Errorf("upstream status %d", resp.StatusCode)
		}

		var q quote
		if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
			return quote{}, Permanent(err)
		}

		return q, nil
	}
}

// ---------------------------------------------------------------------------
// Full chain against a real HTTP server
// ---------------------------------------------------------------------------

func TestIntegrationRetryAgainstHTTPServer(t *testing.T) {
	srv, hits := flakyServer(t, 2)
	var retries atomic.Int32

	p := NewPolicy[quote]("quotes",
		WithRetry(3),
		WithRetryDelay(5*time.Millisecond),
		WithTimeout(2*time.Second),
		OnRetry(func(int, error) { retries.Add(1) }),
	)

	got, ok := p.Do(context.Background(), fetchQuote(srv.URL))

	require.True(t, ok)
	assert.Equal(t, quote{Symbol: "ACME", Price: 12.5}, got)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, int32(2), retries.Load())
}

func TestIntegrationFallbackWhenServerStaysDown(t *testing.T) {
	srv, hits := flakyServer(t, 100)
	obs := &recordingObserver{}
	var errs []error

	got, ok := Do(context.Background(), fetchQuote(srv.URL),
		WithRetry(2),
		WithObserver(obs),
		WithFallbacks(
			func(context.Context) (quote, error) { return quote{}, errors.New("cache miss") },
			func(context.Context) (quote, error) { return quote{Symbol: "ACME"}, nil },
		),
		OnError(func(err error) { errs = append(errs, err) }),
	)

	require.True(t, ok)
	assert.Equal(t, "ACME", got.Symbol)
	assert.Zero(t, got.Price)
	assert.Equal(t, int32(3), hits.Load())
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "upstream status 503")

	out := obs.outcome(t)
	assert.True(t, out.Succeeded)
	assert.True(t, out.FromFallback)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 2, out.Fallbacks)
}

func TestIntegrationTimeoutCancelsRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	var timeouts atomic.Int32
	_, ok := Do(context.Background(), fetchQuote(srv.URL),
		WithTimeout(20*time.Millisecond),
		OnTimeout(func() { timeouts.Add(1) }),
		OnError(func(err error) { assert.ErrorIs(t, err, ErrTimeout) }),
	)

	assert.False(t, ok)
	assert.Equal(t, int32(1), timeouts.Load())
}

// ---------------------------------------------------------------------------
// Config plus code
// ---------------------------------------------------------------------------

func TestIntegrationConfigWithCodeOverrides(t *testing.T) {
	reg, err := LoadConfig("testdata/valid.json")
	require.NoError(t, err)

	srv, hits := flakyServer(t, 1)
	var successes []quote

	p := GetPolicy[quote](reg, "payment-api",
		WithRetryDelay(time.Millisecond),
		WithJitter(0),
		OnSuccess(func(q quote) { successes = append(successes, q) }),
	)

	got, ok := p.Do(context.Background(), fetchQuote(srv.URL))

	require.True(t, ok)
	assert.Equal(t, 12.5, got.Price)
	assert.Equal(t, int32(2), hits.Load())
	assert.Len(t, successes, 1)
}

func TestIntegrationPermanentErrorStopsRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, "not json")
	}))
	t.Cleanup(srv.Close)

	var gotErr error
	_, ok := Do(context.Background(), fetchQuote(srv.URL),
		WithRetry(5),
		OnError(func(err error) { gotErr = err }),
	)

	assert.False(t, ok)
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, IsPermanent(gotErr))
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestIntegrationConcurrentPolicy(t *testing.T) {
	srv, _ := flakyServer(t, 0)
	var successes atomic.Int32

	p := NewPolicy[quote]("shared-quotes",
		QuickRetry(),
		WithTimeout(time.Second),
		OnSuccess(func(quote) { successes.Add(1) }),
	)

	g, ctx := errgroup.WithContext(context.Background())
	for range 16 {
		g.Go(func() error {
			if _, ok := p.Do(ctx, fetchQuote(srv.URL)); !ok {
				return errors.New("quote unavailable")
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, int32(16), successes.Load())
}
