package luco

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy is the bounded exponential backoff applied to every call.
// Retry i (zero-based) sleeps BaseDelay * 2^i. There is no cap and no jitter.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
}

// Delay returns the backoff before retry number attempt (zero-based).
// Values that would overflow saturate at the maximum duration.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt < 0 {
		return 0
	}
	if attempt >= 63 || p.BaseDelay > time.Duration(math.MaxInt64>>attempt) {
		return time.Duration(math.MaxInt64)
	}
	return p.BaseDelay << attempt
}

// Backoff returns a fresh go-retry backoff for one call.
// Each call needs its own: the attempt counter lives inside the returned value.
func (p RetryPolicy) Backoff() retry.Backoff {
	return p.backoff(nil)
}

func (p RetryPolicy) backoff(observe func(attempt int, delay time.Duration)) retry.Backoff {
	attempt := 0
	return retry.WithMaxRetries(
		uint64(p.MaxRetries), // #nosec G115 - normalized to >= 0 at construction
		retry.BackoffFunc(func() (time.Duration, bool) {
			delay := p.Delay(attempt)
			if observe != nil {
				observe(attempt, delay)
			}
			attempt++
			return delay, false
		}),
	)
}

// RetryingInvoker wraps an Executor with the retry policy.
// 4xx responses other than 429 are returned on the first attempt; 429 and 5xx
// responses and transport failures are retried while budget remains.
// Any other status (1xx, 2xx, 3xx) is returned without retry.
type RetryingInvoker struct {
	exec    Executor
	logger  *slog.Logger
	onRetry func(attempt int, delay time.Duration, cause error)
	metrics *clientMetrics
	policy  RetryPolicy
}

// InvokerOption configures a RetryingInvoker.
type InvokerOption func(*RetryingInvoker)

// WithInvokerLogger sets the logger for retry decisions.
func WithInvokerLogger(logger *slog.Logger) InvokerOption {
	return func(r *RetryingInvoker) {
		r.logger = logger
	}
}

// WithInvokerRetryHook registers a callback invoked before every backoff sleep.
func WithInvokerRetryHook(fn func(attempt int, delay time.Duration, cause error)) InvokerOption {
	return func(r *RetryingInvoker) {
		r.onRetry = fn
	}
}

func withInvokerMetrics(m *clientMetrics) InvokerOption {
	return func(r *RetryingInvoker) {
		r.metrics = m
	}
}

// NewRetryingInvoker creates an invoker around exec. A negative MaxRetries is treated as zero.
//
// Example:
//
//	invoker := luco.NewRetryingInvoker(
//	    luco.NewHTTPExecutor(http.DefaultClient),
//	    luco.RetryPolicy{MaxRetries: 3, BaseDelay: time.Second},
//	)
func NewRetryingInvoker(exec Executor, policy RetryPolicy, opts ...InvokerOption) *RetryingInvoker {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay < 0 {
		policy.BaseDelay = 0
	}

	r := &RetryingInvoker{
		exec:   exec,
		policy: policy,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Policy returns the invoker's retry policy.
func (r *RetryingInvoker) Policy() RetryPolicy {
	return r.policy
}

// Do executes req with retries. It returns either the response of the deciding
// attempt or a *TransportError, never both. Responses of retried attempts are
// drained and closed. When ctx is canceled during a backoff sleep the most recent
// transport error is returned, or a TransportError wrapping ErrInterrupted if the
// earlier attempts produced responses.
func (r *RetryingInvoker) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var (
		response     *http.Response
		lastTransErr *TransportError
		lastCause    error
		attempt      = -1
	)

	select {
	case <-ctx.Done():
		return nil, r.transportError(req, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err()))
	default:
	}

	backoff := r.policy.backoff(func(retryAttempt int, delay time.Duration) {
		r.metrics.incRetry(req.Method)
		if r.onRetry != nil {
			r.onRetry(retryAttempt, delay, lastCause)
		}
		r.logger.Debug("retrying request after delay",
			"method", req.Method,
			"path", req.URL.Path,
			"attempt", retryAttempt,
			"delay", delay,
			"error", lastCause)
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		attemptReq, err := rewind(req, attempt)
		if err != nil {
			return r.transportError(req, err)
		}

		start := time.Now()
		resp, err := r.exec.Execute(ctx, attemptReq)
		if err != nil {
			r.metrics.observeAttempt(req.Method, 0, time.Since(start))
			transErr := r.transportError(req, err)
			lastTransErr = transErr
			lastCause = transErr

			if attempt >= r.policy.MaxRetries || ctx.Err() != nil || errors.Is(err, ErrCircuitOpen) {
				return transErr
			}
			return retry.RetryableError(transErr)
		}
		r.metrics.observeAttempt(req.Method, resp.StatusCode, time.Since(start))

		status := resp.StatusCode
		if !isRetryableStatus(status) || attempt >= r.policy.MaxRetries {
			if attempt > 0 && isSuccessStatus(status) {
				r.logger.Info("request succeeded after retry",
					"method", req.Method,
					"path", req.URL.Path,
					"request_id", req.Header.Get(RequestIDHeader),
					"attempts", attempt+1)
			}
			response = resp
			return nil
		}

		discard(resp)
		lastCause = fmt.Errorf("retryable status %d", status)
		return retry.RetryableError(lastCause)
	})
	if err != nil {
		var transErr *TransportError
		if !errors.As(err, &transErr) {
			// Canceled between attempts.
			if lastTransErr != nil {
				transErr = lastTransErr
			} else {
				transErr = r.transportError(req, fmt.Errorf("%w: %w", ErrInterrupted, err))
			}
		}
		r.logger.Warn("request failed after retries",
			"method", req.Method,
			"path", req.URL.Path,
			"request_id", req.Header.Get(RequestIDHeader),
			"attempts", attempt+1,
			"error", transErr)
		return nil, transErr
	}

	return response, nil
}

func (r *RetryingInvoker) transportError(req *http.Request, err error) *TransportError {
	return &TransportError{
		Method: req.Method,
		URL:    req.URL.String(),
		Err:    err,
	}
}

// rewind returns the request to send for attempt. Later attempts get a fresh
// copy of the body from GetBody.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding request body: %w", err)
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

// discard drains a bounded amount of the body so the connection can be reused.
func discard(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
