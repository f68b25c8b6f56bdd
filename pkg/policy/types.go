package policy

// Severity grades a policy finding.
type Severity string

const (
	// SeverityError blocks the run unless the caller forces it.
	SeverityError Severity = "error"

	// SeverityWarning surfaces the finding without blocking.
	SeverityWarning Severity = "warning"
)

// Validate checks the severity against the closed set.
func (s Severity) Validate() bool {
	return s == SeverityError || s == SeverityWarning
}

// Policy is one Rego guardrail evaluated over a planned change set. The
// module's deny rule yields the findings; a finding may carry its own
// severity, otherwise the policy's default applies.
type Policy struct {
	// Name identifies the policy in reports.
	Name string `json:"name"`

	// Rego is the policy module source.
	Rego string `json:"rego"`

	// Severity is the default severity of this policy's findings.
	Severity Severity `json:"severity"`
}
