package history

import "time"

// Run is one recorded reconciliation run.
type Run struct {
	// ID is the run's UUID.
	ID string `json:"id"`

	// State is the run's terminal state.
	State string `json:"state"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total run time.
	Duration time.Duration `json:"duration"`

	// Planned is the size of the computed change set.
	Planned int `json:"planned"`

	// Applied is the number of mutations performed.
	Applied int `json:"applied"`

	// Failed is the number of fields that failed to apply.
	Failed int `json:"failed"`
}

// Change outcome values.
const (
	OutcomeApplied = "applied"
	OutcomeFailed  = "failed"
)

// Change is one recorded field-level outcome of a run.
type Change struct {
	// RunID is the owning run's UUID.
	RunID string `json:"run_id"`

	// Domain is the adapter domain.
	Domain string `json:"domain"`

	// Field is the dotted model path.
	Field string `json:"field"`

	// Before is the rendered value before the mutation.
	Before string `json:"before"`

	// After is the rendered value after the mutation.
	After string `json:"after"`

	// Outcome is OutcomeApplied or OutcomeFailed.
	Outcome string `json:"outcome"`

	// Error carries the failure message for failed outcomes.
	Error string `json:"error,omitempty"`
}
