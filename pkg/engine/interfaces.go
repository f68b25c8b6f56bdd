package engine

import "context"

// GateViolation is one policy finding about a planned change set.
type GateViolation struct {
	// Policy names the rule that fired.
	Policy string `json:"policy"`

	// Message explains the finding.
	Message string `json:"message"`

	// Severity is "error" (blocks the run unless forced) or "warning".
	Severity string `json:"severity"`
}

// GateResult is the outcome of evaluating a change set against policy.
type GateResult struct {
	// Allowed is false when any error-severity violation fired.
	Allowed bool `json:"allowed"`

	// Violations are the error-severity findings.
	Violations []GateViolation `json:"violations,omitempty"`

	// Warnings are the advisory findings.
	Warnings []GateViolation `json:"warnings,omitempty"`
}

// PolicyGate evaluates a planned change set before any mutation starts.
type PolicyGate interface {
	EvaluateChanges(ctx context.Context, changes []Change) (*GateResult, error)
}

// Recorder persists finished runs for the history surface. Recording is
// best effort: a recorder failure never changes the run outcome.
type Recorder interface {
	RecordRun(ctx context.Context, result *Result) error
}

// MetricsSink observes finished runs.
type MetricsSink interface {
	ObserveRun(result *Result)
}
