// Package engine implements the reconciliation loop that keeps a mesh
// node's system state aligned with its configuration file.
//
// # Overview
//
// A reconciliation run moves through four phases:
//
//  1. Read - each adapter reports the node's current state for the
//     fields the desired configuration names
//  2. Diff - current and desired state are compared field by field
//  3. Gate - the planned change set is checked against guardrail
//     policies before anything is mutated
//  4. Apply - adapters mutate only the changed fields, in a fixed
//     domain order (networking, services, hardware)
//
// Applying the same configuration twice changes nothing the second
// time. A field that fails to apply never stops its siblings: every
// failure is collected on the Result and the run finishes in the
// partially_failed state instead of aborting.
//
// # Core Types
//
//   - Change: one field-level difference with rendered before/after
//   - Result: the outcome of a run (planned, applied, failures)
//   - RunState: loaded, diffed, applying, converged, partially_failed
//   - ApplyOptions: dry-run and policy-override switches
//
// # Collaborator Interfaces
//
// PolicyGate, Recorder, and MetricsSink decouple the engine from the
// policy, history, and telemetry packages that implement them. All
// three are optional: a Reconciler built with none of them still
// reconciles, it just does not gate, journal, or measure.
package engine
