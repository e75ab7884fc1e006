package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/givensuman/tryvial"
)

// ErrorClass tells the resilience layer how to treat an HTTP
// status code.
type ErrorClass int

const (
	// Success means the request succeeded (e.g. 2xx).
	Success ErrorClass = iota
	// Transient means the error is retriable (e.g. 429, 503).
	Transient
	// Permanent means the error is non-retriable (e.g. 400).
	Permanent
)

var (
	// ErrNoResponse is returned when the policy produced neither a response
	// nor a failure, which only happens if a fallback returns a nil
	// response without an error.
	ErrNoResponse = errors.New("httpx: no response")
	// ErrBodyNotReplayable is returned when a retry needs to resend a
	// request body that has no GetBody function.
	ErrBodyNotReplayable = errors.New("httpx: request body cannot be replayed")
)

// Classifier maps an HTTP status code to an ErrorClass.
//
// Pattern: Strategy — caller injects classification logic
// without modifying the adapter.
type Classifier func(statusCode int) ErrorClass

// DefaultClassifier treats 1xx-3xx as Success, 408, 425, 429 and every 5xx
// except 501 as Transient, and everything else as Permanent.
func DefaultClassifier(code int) ErrorClass {
	switch {
	case code < http.StatusBadRequest:
		return Success
	case code == http.StatusRequestTimeout,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests:
		return Transient
	case code == http.StatusNotImplemented:
		return Permanent
	case code >= http.StatusInternalServerError:
		return Transient
	default:
		return Permanent
	}
}

// StatusError is returned when the Classifier marks a status
// code as Transient or Permanent.
type StatusError struct {
	// Response is the HTTP response that triggered the error. When the
	// error is returned from Client.Do for a Permanent status, the body is
	// left unread and open, and the caller must close it. In every other
	// case the client has already closed it.
	Response   *http.Response
	StatusCode int
}

// Error returns a human-readable description of the status
// error.
func (e *StatusError) Error() string {
	return "http status " + strconv.Itoa(e.StatusCode)
}

// Client wraps an http.Client with a tryvial policy and HTTP status code
// classification.
//
// Pattern: Adapter — bridges net/http and tryvial by translating HTTP status
// codes into tryvial error classification.
type Client struct {
	hc *http.Client
	p  *tryvial.Policy[*http.Response]
	cl Classifier
}

// NewClient creates a Client that executes HTTP requests through a policy
// built from opts. The classifier determines how HTTP status codes map to
// transient or permanent errors for retry decisions. A nil hc selects
// http.DefaultClient and a nil cl selects DefaultClassifier.
func NewClient(
	name string,
	hc *http.Client,
	cl Classifier,
	opts ...any,
) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}

	if cl == nil {
		cl = DefaultClassifier
	}

	return &Client{
		hc: hc,
		p: tryvial.NewPolicy[*http.Response](
			name,
			opts,
			tryvial.WithObserver(failureRecorder{}),
		),
		cl: cl,
	}
}

// Name returns the name of the underlying policy.
func (c *Client) Name() string { return c.p.Name() }

// Do sends req under the client's policy. Every attempt works on a clone of
// req; bodies are rewound with req.GetBody.
//
// On success the response is returned with its body open. Otherwise Do
// returns the last failure reported by the policy: the final attempt's error
// (a *StatusError, a transport error or tryvial.ErrTimeout), or the
// fallback's error when a fallback also failed. Every other response received
// during the call is closed, including ones from attempts that lost the
// timeout race and arrive after Do has returned.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	slot := &failureSlot{}
	ctx = context.WithValue(ctx, failureKey{}, slot)

	var (
		sends atomic.Int32
		held  responseSet
	)

	resp, ok := c.p.Do(ctx, func(attemptCtx context.Context) (*http.Response, error) {
		return c.send(ctx, attemptCtx, req, sends.Add(1), &held)
	})
	if ok && resp != nil {
		held.release(resp)
		return resp, nil
	}

	err := slot.err
	if err == nil {
		err = ErrNoResponse
	}

	var keep *http.Response

	var se *StatusError
	if errors.As(err, &se) {
		keep = se.Response
	}

	held.release(keep)

	return nil, err
}

// send performs attempt n. The request runs on a child of callCtx that
// follows attemptCtx only until the response arrives, so a response handed to
// the caller stays readable after the attempt ends. Closing its body cancels
// the request context.
func (c *Client) send(
	callCtx, attemptCtx context.Context,
	req *http.Request,
	n int32,
	held *responseSet,
) (*http.Response, error) {
	reqCtx, cancel := context.WithCancel(callCtx)
	stop := context.AfterFunc(attemptCtx, cancel)

	r, err := rewind(reqCtx, req, n)
	if err != nil {
		stop()
		cancel()

		return nil, tryvial.Permanent(err)
	}

	resp, err := c.hc.Do(r)
	if err != nil {
		stop()
		cancel()

		return nil, err //nolint:wrapcheck // transport errors are retried as-is
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

	if !stop() {
		// The attempt was abandoned while the response was in flight.
		discard(resp)
		return nil, attemptCtx.Err() //nolint:wrapcheck // preserving context error identity
	}

	switch c.cl(resp.StatusCode) {
	case Success:
		held.add(resp)
		return resp, nil

	case Permanent:
		held.add(resp)

		return nil, tryvial.Permanent(&StatusError{
			Response:   resp,
			StatusCode: resp.StatusCode,
		})

	default:
		discard(resp)

		return nil, tryvial.Transient(&StatusError{
			Response:   resp,
			StatusCode: resp.StatusCode,
		})
	}
}

// rewind returns a copy of req bound to ctx with a fresh body for attempt n.
func rewind(ctx context.Context, req *http.Request, n int32) (*http.Request, error) {
	r := req.Clone(ctx)

	if req.Body == nil || req.Body == http.NoBody {
		return r, nil
	}

	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err //nolint:wrapcheck // caller-supplied GetBody
		}

		r.Body = body

		return r, nil
	}

	if n > 1 {
		return nil, ErrBodyNotReplayable
	}

	return r, nil
}

// ---------------------------------------------------------------------------
// Response ownership
// ---------------------------------------------------------------------------

// maxDrain bounds how much of an unwanted body is read so its connection can
// be reused.
const maxDrain = 64 << 10

// responseSet holds the open responses of one Client.Do call. release closes
// all but the one handed to the caller; responses added afterwards are closed
// at once.
type responseSet struct {
	mu       sync.Mutex
	released bool
	open     []*http.Response
}

func (s *responseSet) add(resp *http.Response) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		discard(resp)

		return
	}

	s.open = append(s.open, resp)
	s.mu.Unlock()
}

func (s *responseSet) release(keep *http.Response) {
	s.mu.Lock()
	open := s.open
	s.open = nil
	s.released = true
	s.mu.Unlock()

	for _, resp := range open {
		if resp != keep {
			discard(resp)
		}
	}
}

// discard drains and closes resp.Body.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	_ = resp.Body.Close()
}

// cancelOnClose cancels the request context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser

	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()

	return err //nolint:wrapcheck // body close errors are returned as-is
}

// ---------------------------------------------------------------------------
// Failure capture
// ---------------------------------------------------------------------------

type failureKey struct{}

// failureSlot receives the final failure of one Client.Do call.
type failureSlot struct {
	err error
}

// failureRecorder is a tryvial.Observer that stores an execution's final
// failure in the slot carried by the call context. ObserveOutcome runs on
// the calling goroutine, so the slot needs no locking.
type failureRecorder struct{}

func (failureRecorder) ObserveRetry(context.Context, int, error, time.Duration) {}

func (failureRecorder) ObserveTimeout(context.Context, int) {}

func (failureRecorder) ObserveOutcome(ctx context.Context, o tryvial.Outcome) {
	if slot, ok := ctx.Value(failureKey{}).(*failureSlot); ok {
		slot.err = o.Err
	}
}
