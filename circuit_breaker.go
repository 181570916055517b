package luco

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreaker stops calls from reaching the API while it keeps failing.
// Transport failures and 5xx responses count as failures; 4xx and 429 do not.
// It sits below the retry loop, so every attempt is counted separately.
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker[*http.Response]
	logger *slog.Logger
}

// serverStatus marks a 5xx response as a failure for the breaker's counts.
// It never leaves the middleware.
type serverStatus struct {
	code int
}

func (e *serverStatus) Error() string {
	return fmt.Sprintf("server error %d", e.code)
}

// NewCircuitBreaker creates a circuit breaker from config.
// A nil config uses DefaultCircuitBreakerConfig.
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	readyToTrip := config.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = DefaultCircuitBreakerConfig().ReadyToTrip
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return readyToTrip(convertCounts(counts))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			if config.OnStateChange != nil {
				config.OnStateChange(name, convertGobreakerState(from), convertGobreakerState(to))
			}
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// The caller gave up; that says nothing about the API.
			return errors.Is(err, context.Canceled)
		},
	}

	return &CircuitBreaker{
		cb:     gobreaker.NewCircuitBreaker[*http.Response](settings),
		logger: logger,
	}
}

// Middleware returns an executor middleware guarded by the breaker.
// Rejections surface as errors wrapping ErrCircuitOpen and a jp-go-errors
// circuit breaker error; the retry loop does not retry them.
func (b *CircuitBreaker) Middleware() Middleware {
	return func(next Executor) Executor {
		return ExecutorFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
			resp, err := b.cb.Execute(func() (*http.Response, error) {
				resp, err := next.Execute(ctx, req)
				if err != nil {
					return nil, err
				}
				if resp.StatusCode >= 500 {
					return resp, &serverStatus{code: resp.StatusCode}
				}
				return resp, nil
			})

			var status *serverStatus
			switch {
			case err == nil:
				return resp, nil
			case errors.As(err, &status):
				return resp, nil
			case errors.Is(err, gobreaker.ErrOpenState):
				b.logger.Warn("circuit breaker is open, request rejected",
					"path", req.URL.Path,
					"state", b.cb.State().String())
				return nil, b.rejection("request rejected", "open", err)
			case errors.Is(err, gobreaker.ErrTooManyRequests):
				b.logger.Debug("circuit breaker in half-open state, too many requests",
					"path", req.URL.Path)
				return nil, b.rejection("too many requests in half-open state", "half-open", err)
			default:
				return nil, err
			}
		})
	}
}

func (b *CircuitBreaker) rejection(msg, state string, cause error) error {
	counts := b.cb.Counts()
	cbErr := jperrors.NewCircuitBreakerError(
		msg,
		"execute",
		state,
		jperrors.WithCause(cause),
		jperrors.WithCounts(jperrors.CircuitCounts{
			Requests:             counts.Requests,
			TotalSuccesses:       counts.TotalSuccesses,
			TotalFailures:        counts.TotalFailures,
			ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
			ConsecutiveFailures:  counts.ConsecutiveFailures,
		}),
	)
	return fmt.Errorf("%w: %w", ErrCircuitOpen, cbErr)
}

// State returns the current state of the circuit breaker.
func (b *CircuitBreaker) State() CircuitBreakerState {
	return convertGobreakerState(b.cb.State())
}

// Counts returns the current counts of the circuit breaker.
func (b *CircuitBreaker) Counts() CircuitBreakerCounts {
	return convertCounts(b.cb.Counts())
}

// Health returns the health status of the circuit breaker.
func (b *CircuitBreaker) Health() HealthStatus {
	state := b.State()
	counts := b.Counts()

	return HealthStatus{
		Healthy:              state != StateOpen,
		Status:               state.String(),
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
	}
}

func convertCounts(counts gobreaker.Counts) CircuitBreakerCounts {
	return CircuitBreakerCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

// convertGobreakerState converts gobreaker.State to CircuitBreakerState.
func convertGobreakerState(state gobreaker.State) CircuitBreakerState {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
