// Package policy provides Open Policy Agent (OPA) guardrails for
// planned change sets.
//
// The engine hands the gate a rendered change set before applying
// anything; each policy is a Rego module whose deny rules emit
// violations. A violation with severity "error" blocks the run
// (overridable with force), severity "warning" is surfaced but never
// blocks.
//
// Built-in policies protect the mesh daemon from being stopped or
// disabled and warn on hostname changes and wifi shutdown. Custom
// policy sets replace the built-ins via WithPolicies.
package policy
