// Package luco is a Go client for the Luco email sending API.
// It turns method calls into authenticated JSON requests against /api/v1, retries
// transient failures (429, 5xx, network errors) with exponential backoff, and returns
// typed envelopes or typed errors that can be told apart with KindOf.
//
// Basic usage:
//
//	client, err := luco.NewClient("luco_live_...",
//	    luco.WithMaxRetries(3),
//	    luco.WithRetryDelay(time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.SendEmail(ctx, &luco.SendEmailRequest{
//	    To:      "user@example.com",
//	    Subject: "Welcome",
//	    Content: &luco.EmailContent{HTML: "<p>Hello</p>"},
//	})
//	switch luco.KindOf(err) {
//	case luco.KindValidation:
//	    // fix the request
//	case luco.KindAPI:
//	    // inspect err.(*luco.APIError)
//	}
//
// A Client is safe for concurrent use. Its configuration is fixed at construction.
package luco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// Client calls the Luco API.
type Client struct {
	invoker    *RetryingInvoker
	transport  *HTTPExecutor
	breaker    *CircuitBreaker
	logger     *slog.Logger
	baseURL    string
	decorators []RequestDecorator
}

// NewClient creates a client authenticated with apiKey.
// It returns a *ValidationError when the key is blank or the base URL is not absolute.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &ValidationError{Field: "apiKey", Message: "API key is required"}
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &ValidationError{Field: "baseURL", Message: fmt.Sprintf("invalid base URL %q", config.BaseURL)}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = "Luco-Go-SDK/" + Version
	}

	c := &Client{
		baseURL:   baseURL,
		logger:    config.Logger,
		transport: NewHTTPExecutor(httpClient),
		decorators: []RequestDecorator{
			BearerAuth(apiKey),
			JSONContent(),
			UserAgent(userAgent),
		},
	}

	// Outermost first: throttle, breaker, wire logging, then the network.
	var middlewares []Middleware
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		middlewares = append(middlewares, RateLimitMiddleware(rate.NewLimiter(config.RateLimit, burst)))
	}
	if config.CircuitBreaker != nil {
		c.breaker = NewCircuitBreaker(config.CircuitBreaker, config.Logger)
		middlewares = append(middlewares, c.breaker.Middleware())
	}
	if config.Debug {
		middlewares = append(middlewares, DebugLoggingMiddleware(config.Logger))
	}

	metrics, err := newClientMetrics(config.MetricsRegisterer)
	if err != nil {
		return nil, fmt.Errorf("luco: registering metrics: %w", err)
	}

	c.invoker = NewRetryingInvoker(
		Chain(c.transport, middlewares...),
		RetryPolicy{MaxRetries: config.MaxRetries, BaseDelay: config.RetryDelay},
		WithInvokerLogger(config.Logger),
		WithInvokerRetryHook(config.OnRetry),
		withInvokerMetrics(metrics),
	)

	return c, nil
}

// BaseURL returns the API origin the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RetryPolicy returns the client's retry policy.
func (c *Client) RetryPolicy() RetryPolicy {
	return c.invoker.Policy()
}

// Health reports the circuit breaker state. Without a breaker it is always healthy.
func (c *Client) Health() HealthStatus {
	if c.breaker == nil {
		return HealthStatus{Healthy: true, Status: "disabled"}
	}
	return c.breaker.Health()
}

// Close releases idle pooled connections. The client stays usable afterwards.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// newRequest builds a decorated request for endpoint, which is relative to /api/v1
// and may carry a query string.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	var reader io.Reader
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		payload := []byte("{}")
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, &ValidationError{Message: fmt.Sprintf("encoding request body: %v", err)}
			}
			payload = data
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+endpoint, reader)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("building request: %v", err)}
	}
	decorate(req, c.decorators)
	req.Header.Set(RequestIDHeader, ensureRequestID(ctx))
	return req, nil
}

// call sends one logical request through the retry loop and decodes the envelope into T.
func call[T any](ctx context.Context, c *Client, method, endpoint string, body any) (*Response[T], error) {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.invoker.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{
			Method: method,
			URL:    req.URL.String(),
			Err:    fmt.Errorf("reading response body: %w", err),
		}
	}

	return decodeEnvelope[T](resp.StatusCode, raw)
}
