package luco

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the origin of the hosted Luco API.
	DefaultBaseURL = "https://api.luco.email"

	// Version is reported in the User-Agent header of every request.
	Version = "1.0.0"

	apiPrefix = "/api/v1"
)

// Config holds client configuration. It is copied into the Client at construction
// and never mutated afterwards, so one Client can be shared between goroutines.
type Config struct {
	// Logger for retry, circuit breaker and debug output.
	// Default: slog.Default()
	Logger *slog.Logger

	// HTTPClient performs single attempts. Timeout is ignored when it is set.
	// Default: a new http.Client with Timeout
	HTTPClient *http.Client

	// OnRetry is called before every backoff sleep with the zero-based index of the
	// attempt that failed, the computed delay and the failure that caused the retry.
	OnRetry func(attempt int, delay time.Duration, cause error)

	// CircuitBreaker enables a circuit breaker between the retry loop and the transport.
	// Default: nil (disabled)
	CircuitBreaker *CircuitBreakerConfig

	// MetricsRegisterer registers request and retry metrics when set.
	MetricsRegisterer prometheus.Registerer

	// BaseURL is the API origin; "/api/v1" is appended to it.
	// Default: https://api.luco.email
	BaseURL string

	// UserAgent overrides the client identifier header.
	// Default: Luco-Go-SDK/<Version>
	UserAgent string

	// Timeout bounds a single attempt, not the whole retried call.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base backoff delay; retry i sleeps RetryDelay * 2^i.
	// Default: 1 second
	RetryDelay time.Duration

	// RateLimit throttles outgoing attempts client side. Zero disables throttling.
	RateLimit rate.Limit

	// RateBurst is the limiter burst size. Default: 1 when RateLimit is set.
	RateBurst int

	// Debug logs every request and response at debug level, with the
	// Authorization header redacted.
	Debug bool
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// DefaultConfig returns client configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    DefaultBaseURL,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
		Logger:     slog.Default(),
	}
}

// WithBaseURL sets a custom API origin.
//
// Example:
//
//	luco.WithBaseURL("https://staging.luco.email")
func WithBaseURL(baseURL string) Option {
	return func(c *Config) {
		c.BaseURL = baseURL
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxRetries sets the number of retries after the initial attempt.
// Zero means exactly one attempt.
//
// Example:
//
//	luco.WithMaxRetries(5) // up to 6 attempts in total
func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithRetryDelay sets the base delay of the exponential backoff.
//
// Example:
//
//	luco.WithRetryDelay(500 * time.Millisecond)
//	// Delays: 500ms, 1s, 2s, 4s, ...
func WithRetryDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.RetryDelay = delay
	}
}

// WithLogger sets the logger used by the client.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	luco.WithLogger(logger)
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithDebug enables request and response logging at debug level.
func WithDebug(debug bool) Option {
	return func(c *Config) {
		c.Debug = debug
	}
}

// WithHTTPClient sets the http.Client used for single attempts.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithUserAgent overrides the client identifier header.
func WithUserAgent(userAgent string) Option {
	return func(c *Config) {
		c.UserAgent = userAgent
	}
}

// WithRetryHook registers a callback invoked before every backoff sleep.
//
// Example:
//
//	luco.WithRetryHook(func(attempt int, delay time.Duration, cause error) {
//	    log.Printf("attempt %d failed (%v), retrying in %s", attempt, cause, delay)
//	})
func WithRetryHook(fn func(attempt int, delay time.Duration, cause error)) Option {
	return func(c *Config) {
		c.OnRetry = fn
	}
}

// WithCircuitBreaker places a circuit breaker between the retry loop and the transport.
// A call rejected by an open circuit fails at once with ErrCircuitOpen, even when
// retry budget remains.
//
// Example:
//
//	luco.WithCircuitBreaker(
//	    luco.WithBreakerTimeout(time.Minute),
//	    luco.WithBreakerMaxRequests(1),
//	)
func WithCircuitBreaker(opts ...CircuitBreakerOption) Option {
	return func(c *Config) {
		cb := DefaultCircuitBreakerConfig()
		for _, opt := range opts {
			opt(cb)
		}
		c.CircuitBreaker = cb
	}
}

// WithRateLimit throttles attempts to r per second with the given burst.
//
// Example:
//
//	luco.WithRateLimit(10, 5) // 10 requests/second, bursts of 5
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Config) {
		c.RateLimit = r
		c.RateBurst = burst
	}
}

// WithMetrics registers request and retry metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.MetricsRegisterer = reg
	}
}

// CircuitBreakerConfig holds circuit breaker configuration options.
type CircuitBreakerConfig struct {
	// ReadyToTrip is called with a copy of counts whenever a request fails in the closed state.
	// Default: trips after 5 requests with a 60% failure rate
	ReadyToTrip func(counts CircuitBreakerCounts) bool

	// OnStateChange is called whenever the circuit breaker changes state.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Name identifies the breaker in logs and state change callbacks.
	// Default: "luco-api"
	Name string

	// Interval is the cyclic period of the closed state after which counts are cleared.
	// If 0, counts are never cleared.
	// Default: 60 seconds
	Interval time.Duration

	// Timeout is the period of the open state, after which the state becomes half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRequests is the number of requests allowed through in the half-open state.
	// Default: 1
	MaxRequests uint32
}

// CircuitBreakerOption is a functional option for configuring the circuit breaker.
type CircuitBreakerOption func(*CircuitBreakerConfig)

// CircuitBreakerCounts holds the internal counts of the circuit breaker.
type CircuitBreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means the circuit is closed and requests flow normally.
	StateClosed CircuitBreakerState = iota

	// StateHalfOpen means the circuit is testing if the API has recovered.
	StateHalfOpen

	// StateOpen means the circuit is open and requests are rejected immediately.
	StateOpen
)

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// WithBreakerName sets the breaker name.
func WithBreakerName(name string) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Name = name
	}
}

// WithBreakerMaxRequests sets the maximum number of requests in the half-open state.
func WithBreakerMaxRequests(maxRequests uint32) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.MaxRequests = maxRequests
	}
}

// WithBreakerInterval sets the interval for clearing counts in the closed state.
func WithBreakerInterval(interval time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Interval = interval
	}
}

// WithBreakerTimeout sets how long the breaker stays open.
func WithBreakerTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Timeout = timeout
	}
}

// WithReadyToTrip sets a custom function to determine when to trip the circuit.
//
// Example:
//
//	luco.WithReadyToTrip(func(counts luco.CircuitBreakerCounts) bool {
//	    return counts.ConsecutiveFailures >= 3
//	})
func WithReadyToTrip(fn func(counts CircuitBreakerCounts) bool) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ReadyToTrip = fn
	}
}

// WithStateChangeHandler sets a callback for circuit breaker state changes.
func WithStateChangeHandler(fn func(name string, from, to CircuitBreakerState)) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// DefaultCircuitBreakerConfig returns circuit breaker configuration with sensible defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "luco-api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts CircuitBreakerCounts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	}
}
