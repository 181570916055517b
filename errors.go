package luco

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	jperrors "github.com/JohnPlummer/jp-go-errors"
)

// Sentinel errors that can be checked with errors.Is.
var (
	// ErrUnauthorized matches API errors with status 401.
	ErrUnauthorized = errors.New("luco: invalid or missing API key")
	// ErrForbidden matches API errors with status 403.
	ErrForbidden = errors.New("luco: permission denied")
	// ErrNotFound matches API errors with status 404.
	ErrNotFound = errors.New("luco: resource not found")
	// ErrRateLimited matches API errors with status 429.
	ErrRateLimited = errors.New("luco: rate limit exceeded")
	// ErrCircuitOpen is wrapped by transport errors rejected by an open circuit breaker.
	ErrCircuitOpen = errors.New("luco: circuit breaker open")
	// ErrInterrupted is wrapped by the transport error returned when a call is
	// canceled between attempts and no transport failure was seen before.
	ErrInterrupted = errors.New("luco: request interrupted")
)

// ErrorKind discriminates the failure classes surfaced by the client.
type ErrorKind int

const (
	// KindUnknown is returned by KindOf for nil and foreign errors.
	KindUnknown ErrorKind = iota

	// KindValidation is a local precondition failure; nothing was sent.
	KindValidation

	// KindAPI is an unsuccessful HTTP status with a decoded error envelope.
	KindAPI

	// KindTransport is a network or IO failure with no usable response.
	KindTransport

	// KindDecode is a response body that is not a JSON object.
	KindDecode
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAPI:
		return "api"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// KindOf reports which failure class err belongs to.
func KindOf(err error) ErrorKind {
	var (
		validationErr *ValidationError
		apiErr        *APIError
		transportErr  *TransportError
		decodeErr     *DecodeError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &apiErr):
		return KindAPI
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &decodeErr):
		return KindDecode
	default:
		return KindUnknown
	}
}

// IsValidationError reports whether err is a local validation failure.
func IsValidationError(err error) bool {
	return KindOf(err) == KindValidation
}

// IsAPIError reports whether err is an error returned by the API.
func IsAPIError(err error) bool {
	return KindOf(err) == KindAPI
}

// IsTransportError reports whether err is a network-level failure.
func IsTransportError(err error) bool {
	return KindOf(err) == KindTransport
}

// ValidationError is raised before any network call when a request is incomplete.
type ValidationError struct {
	// Field is the JSON name of the offending field, empty for whole-request checks.
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "luco: validation failed: " + e.Message
}

// APIError represents an unsuccessful HTTP response from the Luco API.
type APIError struct {
	Message    string
	ErrorType  string
	ErrorCode  string
	Details    json.RawMessage
	HTTPStatus int
}

func (e *APIError) Error() string {
	parts := []string{e.Message}
	if e.HTTPStatus != 0 {
		parts = append(parts, fmt.Sprintf("status: %d", e.HTTPStatus))
	}
	if e.ErrorType != "" {
		parts = append(parts, "type: "+e.ErrorType)
	}
	if e.ErrorCode != "" {
		parts = append(parts, "code: "+e.ErrorCode)
	}
	return "luco: " + strings.Join(parts, " | ")
}

// StatusCode returns the HTTP status of the response.
func (e *APIError) StatusCode() int {
	return e.HTTPStatus
}

// Retryable reports whether the status is one the client retries (429 or 5xx).
// An APIError carrying a retryable status was returned after the retry budget ran out.
func (e *APIError) Retryable() bool {
	return isRetryableStatus(e.HTTPStatus)
}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.HTTPStatus {
	case 401:
		return target == ErrUnauthorized
	case 403:
		return target == ErrForbidden
	case 404:
		return target == ErrNotFound
	case 429:
		return target == ErrRateLimited || target == jperrors.ErrRateLimited
	}
	return false
}

// TransportError represents a failure with no usable HTTP response.
type TransportError struct {
	Err    error
	Method string
	URL    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("luco: request failed: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) || jperrors.IsTimeout(e.Err) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// DecodeError is returned when a response body is not a valid JSON envelope.
type DecodeError struct {
	Err        error
	StatusCode int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("luco: failed to decode response (status %d): %v", e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// isRetryableStatus reports whether a status is transient: 429 or any 5xx.
func isRetryableStatus(status int) bool {
	return status == 429 || status >= 500
}

// isSuccessStatus mirrors the 2xx range used to pick the decode path.
func isSuccessStatus(status int) bool {
	return status >= 200 && status < 300
}
