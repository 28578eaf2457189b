package model

import "time"

// Circuit breaker states as reported to operators. CircuitHalfOpen means the
// cool-down has elapsed and the next call resets the circuit to closed.
const (
	CircuitClosed   = "closed"
	CircuitHalfOpen = "half-open"
	CircuitOpen     = "open"
)

// CircuitState is a point-in-time view of one endpoint's circuit breaker.
type CircuitState struct {
	Endpoint            string     `json:"endpoint"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	IsOpen              bool       `json:"is_open"`
}
