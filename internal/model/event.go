package model

import "time"

// CircuitState is the breaker state of one engine.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitStatus is the observable snapshot of one engine's circuit.
type CircuitStatus struct {
	State    CircuitState `json:"state"`
	Failures int          `json:"failures"`
}

// CircuitOpenedEvent is raised when an engine's circuit trips (or re-trips after a failed probe).
type CircuitOpenedEvent struct {
	Engine   string
	Failures int
	OpenedAt time.Time
	Reopened bool
}

// CircuitRecoveredEvent is raised when a probe succeeds and the circuit closes.
type CircuitRecoveredEvent struct {
	Engine      string
	RecoverTime time.Duration
	RecoveredAt time.Time
}
