package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/mpwrd/mpwrd-config/pkg/engine"
)

// Engine evaluates a fixed policy set. It implements engine.PolicyGate.
type Engine struct {
	policies []Policy
	logger   zerolog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithPolicies replaces the builtin policy set.
func WithPolicies(ps []Policy) Option { return func(e *Engine) { e.policies = ps } }

// WithLogger sets the policy logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.logger = l } }

// NewEngine creates a policy engine with the builtin guardrails.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{policies: BuiltinPolicies(), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateChanges implements engine.PolicyGate: every policy's deny rule
// runs over the full change set; findings are split by severity.
func (e *Engine) EvaluateChanges(ctx context.Context, changes []engine.Change) (*engine.GateResult, error) {
	input := map[string]interface{}{"changes": changesInput(changes)}
	result := &engine.GateResult{Allowed: true}

	for _, p := range e.policies {
		query := fmt.Sprintf("data.%s.deny", packageName(p.Rego))
		r := rego.New(
			rego.Module(p.Name, p.Rego),
			rego.Query(query),
			rego.Input(input),
		)
		rs, err := r.Eval(ctx)
		if err != nil {
			return nil, fmt.Errorf("evaluate policy %s: %w", p.Name, err)
		}

		for _, res := range rs {
			for _, expr := range res.Expressions {
				denials, ok := expr.Value.([]interface{})
				if !ok {
					continue
				}
				for _, d := range denials {
					v := violationFrom(p, d)
					if v.Severity == string(SeverityError) {
						result.Allowed = false
						result.Violations = append(result.Violations, v)
					} else {
						result.Warnings = append(result.Warnings, v)
					}
					e.logger.Debug().
						Str("policy", v.Policy).
						Str("severity", v.Severity).
						Msg(v.Message)
				}
			}
		}
	}
	return result, nil
}

func changesInput(changes []engine.Change) []interface{} {
	out := make([]interface{}, len(changes))
	for i, c := range changes {
		out[i] = map[string]interface{}{
			"domain": c.Domain,
			"field":  c.Field,
			"before": c.Before,
			"after":  c.After,
		}
	}
	return out
}

func violationFrom(p Policy, result interface{}) engine.GateViolation {
	v := engine.GateViolation{Policy: p.Name, Severity: string(p.Severity)}
	switch val := result.(type) {
	case string:
		v.Message = val
	case map[string]interface{}:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := val["severity"].(string); ok && Severity(sev).Validate() {
			v.Severity = sev
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

func packageName(module string) string {
	for _, line := range strings.Split(module, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "mpwrd"
}
