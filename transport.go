package luco

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries one ID per logical call; retries of the call reuse it.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID makes calls made with ctx send id in the X-Request-ID header.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID set with WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// ensureRequestID returns the caller's request ID or generates a new one.
func ensureRequestID(ctx context.Context) string {
	if id, ok := RequestIDFromContext(ctx); ok {
		return id
	}
	return uuid.New().String()
}

// Executor performs exactly one HTTP attempt.
// Implementations return either a response or an error, never both.
//
// Example:
//
//	type recordingExecutor struct{ client *http.Client }
//
//	func (e *recordingExecutor) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
//	    return e.client.Do(req.WithContext(ctx))
//	}
type Executor interface {
	Execute(ctx context.Context, req *http.Request) (*http.Response, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

// Execute calls f(ctx, req).
func (f ExecutorFunc) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// Middleware wraps an Executor with additional behaviour.
type Middleware func(next Executor) Executor

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(exec Executor, middlewares ...Middleware) Executor {
	for i := len(middlewares) - 1; i >= 0; i-- {
		exec = middlewares[i](exec)
	}
	return exec
}

// HTTPExecutor adapts an *http.Client to the Executor interface.
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor creates an executor backed by client.
func NewHTTPExecutor(client *http.Client) *HTTPExecutor {
	return &HTTPExecutor{client: client}
}

// Execute implements Executor.
func (e *HTTPExecutor) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	return e.client.Do(req.WithContext(ctx))
}

// CloseIdleConnections releases pooled connections held by the underlying client.
func (e *HTTPExecutor) CloseIdleConnections() {
	e.client.CloseIdleConnections()
}

// RateLimitMiddleware waits on limiter before every attempt.
// A canceled wait surfaces as the context error.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next.Execute(ctx, req)
		})
	}
}

// DebugLoggingMiddleware logs each attempt's request and response at debug level.
// Bodies are buffered so they stay readable for the caller; at most 64 KiB of
// each body is logged.
func DebugLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
			var reqBody []byte
			if req.GetBody != nil {
				if rc, err := req.GetBody(); err == nil {
					reqBody, _ = io.ReadAll(io.LimitReader(rc, maxLoggedBody))
					rc.Close()
				}
			}

			logger.DebugContext(ctx, "luco request",
				"method", req.Method,
				"url", req.URL.String(),
				"headers", redactHeaders(req.Header),
				"body", truncated(reqBody, req.ContentLength))

			start := time.Now()
			resp, err := next.Execute(ctx, req)
			elapsed := time.Since(start)
			if err != nil {
				logger.DebugContext(ctx, "luco request failed",
					"method", req.Method,
					"url", req.URL.String(),
					"elapsed", elapsed,
					"error", err)
				return nil, err
			}

			respBody, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				return nil, readErr
			}
			resp.Body = io.NopCloser(bytes.NewReader(respBody))

			logger.DebugContext(ctx, "luco response",
				"method", req.Method,
				"url", req.URL.String(),
				"status", resp.StatusCode,
				"elapsed", elapsed,
				"body", truncated(respBody[:min(len(respBody), maxLoggedBody)], int64(len(respBody))))
			return resp, nil
		})
	}
}

// maxLoggedBody bounds the body text written per debug log line.
const maxLoggedBody = 64 << 10

// truncated renders a logged body, marking it when size exceeds what was kept.
func truncated(body []byte, size int64) string {
	if size > int64(len(body)) {
		return fmt.Sprintf("%s...[truncated, %d bytes total]", body, size)
	}
	return string(body)
}

func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if http.CanonicalHeaderKey(k) == "Authorization" {
			out[k] = "Bearer [REDACTED]"
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}

// RequestDecorator mutates the headers of an outbound request.
type RequestDecorator func(req *http.Request)

// BearerAuth sets the Authorization header to "Bearer <apiKey>".
func BearerAuth(apiKey string) RequestDecorator {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// JSONContent marks the request body and the expected response as JSON.
func JSONContent() RequestDecorator {
	return func(req *http.Request) {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
	}
}

// UserAgent sets the client identifier header.
func UserAgent(ua string) RequestDecorator {
	return func(req *http.Request) {
		req.Header.Set("User-Agent", ua)
	}
}

// decorate applies decorators in order.
func decorate(req *http.Request, decorators []RequestDecorator) {
	for _, d := range decorators {
		d(req)
	}
}
