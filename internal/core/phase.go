package core

import "fmt"

// PhaseStatus represents the lifecycle state of a single pipeline phase.
type PhaseStatus string

const (
	// PhaseStatusPending means the phase has not started yet.
	PhaseStatusPending PhaseStatus = "pending"

	// PhaseStatusInProgress means the phase is currently running.
	// At most one phase may be in this state at a time.
	PhaseStatusInProgress PhaseStatus = "in_progress"

	// PhaseStatusCompleted means the phase finished and its outputs
	// passed validation.
	PhaseStatusCompleted PhaseStatus = "completed"

	// PhaseStatusFailed means the phase exhausted its retry budget.
	// This state is terminal.
	PhaseStatusFailed PhaseStatus = "failed"

	// PhaseStatusPendingRetry means the phase failed but has retry
	// budget left. A subsequent start moves it back to in_progress.
	PhaseStatusPendingRetry PhaseStatus = "pending_retry"
)

// IsTerminal reports whether the status admits no further transitions.
func (s PhaseStatus) IsTerminal() bool {
	return s == PhaseStatusCompleted || s == PhaseStatusFailed
}

// Startable reports whether a start call is legal from this status.
func (s PhaseStatus) Startable() bool {
	return s == PhaseStatusPending || s == PhaseStatusPendingRetry
}

// Validate checks that the status is one of the known values.
func (s PhaseStatus) Validate() error {
	switch s {
	case PhaseStatusPending, PhaseStatusInProgress, PhaseStatusCompleted,
		PhaseStatusFailed, PhaseStatusPendingRetry:
		return nil
	default:
		return fmt.Errorf("invalid phase status: %q", s)
	}
}
