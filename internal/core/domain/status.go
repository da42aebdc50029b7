// Package domain contains the core domain types for deployment runs.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import "errors"

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidTransition is returned for a status transition outside the
	// per-device state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// Device Status
// =============================================================================

// DeviceStatus is the per-device deployment state. The set is closed: a
// device is visited at most once per run, so there is no retry transition
// and no way out of a terminal state.
type DeviceStatus string

const (
	StatusPending    DeviceStatus = "pending"
	StatusInProgress DeviceStatus = "in_progress"
	StatusSuccess    DeviceStatus = "success"
	StatusFailed     DeviceStatus = "failed"
	StatusSkipped    DeviceStatus = "skipped"
)

// IsValid checks if the status is one of the five known states.
func (s DeviceStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSuccess, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is final for a run.
func (s DeviceStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// =============================================================================
// State Machine
// =============================================================================

// validTransitions defines the allowed per-device state transitions.
// Skipped is only reachable from Pending: a device that has started is
// never skipped, and a skipped device never starts.
var validTransitions = map[DeviceStatus][]DeviceStatus{
	StatusPending:    {StatusInProgress, StatusSkipped},
	StatusInProgress: {StatusSuccess, StatusFailed},
	StatusSuccess:    {}, // Terminal state
	StatusFailed:     {}, // Terminal state
	StatusSkipped:    {}, // Terminal state
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to DeviceStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return ErrInvalidTransition
}
