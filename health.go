package luco

// HealthStatus reports the circuit breaker view of the Luco API.
type HealthStatus struct {
	// Healthy is false only while the breaker is open.
	// A client without a circuit breaker always reports healthy.
	Healthy bool `json:"healthy"`

	// Status is "closed", "half-open", "open", or "disabled" when no breaker is configured.
	Status string `json:"status"`

	// Requests is the number of requests in the current interval.
	Requests uint32 `json:"requests"`

	// TotalSuccesses is the number of successful requests in the current interval.
	TotalSuccesses uint32 `json:"total_successes"`

	// TotalFailures is the number of failed requests in the current interval.
	TotalFailures uint32 `json:"total_failures"`

	// ConsecutiveFailures is the number of consecutive failures.
	ConsecutiveFailures uint32 `json:"consecutive_failures"`

	// ConsecutiveSuccesses is the number of consecutive successes.
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
}
