package engine

// RunState tracks a reconciliation run through its lifecycle.
type RunState string

const (
	// RunStateLoaded means the desired model was accepted and validated.
	RunStateLoaded RunState = "loaded"

	// RunStateDiffed means current state was read and the change set
	// computed.
	RunStateDiffed RunState = "diffed"

	// RunStateApplying means adapters are mutating the system.
	RunStateApplying RunState = "applying"

	// RunStateConverged means every planned change applied.
	RunStateConverged RunState = "converged"

	// RunStatePartiallyFailed means at least one field failed to apply;
	// the remaining fields were still attempted.
	RunStatePartiallyFailed RunState = "partially_failed"
)

// Validate checks the state against the closed state set.
func (s RunState) Validate() bool {
	switch s {
	case RunStateLoaded, RunStateDiffed, RunStateApplying, RunStateConverged, RunStatePartiallyFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the run has finished.
func (s RunState) IsTerminal() bool {
	return s == RunStateConverged || s == RunStatePartiallyFailed
}
