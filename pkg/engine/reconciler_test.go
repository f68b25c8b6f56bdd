package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/mpwrd/mpwrd-config/pkg/adapters"
	"github.com/mpwrd/mpwrd-config/pkg/model"
)

// mockAdapter serves a canned snapshot and records applies. Applied fields
// are folded back into the snapshot so a second run sees converged state.
type mockAdapter struct {
	domain     string
	snapshot   *model.Config
	readErr    error
	applyFails map[string]error
	applyCalls int
}

func (m *mockAdapter) Domain() string { return m.domain }

func (m *mockAdapter) Read(_ context.Context, scope *model.Config) (*model.Config, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.snapshot.Clone(), nil
}

func (m *mockAdapter) Apply(_ context.Context, desired, current *model.Config) ([]adapters.AppliedChange, []*adapters.ApplyError) {
	m.applyCalls++
	var applied []adapters.AppliedChange
	var failures []*adapters.ApplyError
	for _, c := range Diff(desired, current) {
		if c.Domain != m.domain {
			continue
		}
		if err := m.applyFails[c.Field]; err != nil {
			failures = append(failures, &adapters.ApplyError{Field: c.Field, Err: err})
			continue
		}
		applied = append(applied, adapters.AppliedChange{
			Domain: c.Domain, Field: c.Field, Before: c.Before, After: c.After,
		})
		m.converge(c.Field, desired)
	}
	return applied, failures
}

func (m *mockAdapter) converge(field string, desired *model.Config) {
	switch field {
	case model.FieldHostname:
		m.snapshot.Networking.Hostname = desired.Networking.Hostname
	case model.FieldWifiEnabled:
		m.snapshot.Networking.WifiEnabled = desired.Networking.WifiEnabled
	case model.FieldCountryCode:
		m.snapshot.Networking.CountryCode = desired.Networking.CountryCode
	case model.FieldWifiNetworks:
		m.snapshot.Networking.Wifi = append([]model.WifiNetwork(nil), desired.Networking.Wifi...)
	default:
		for name, svc := range desired.Services {
			if model.ServiceField(name) == field {
				m.snapshot.Services[name] = svc
			}
		}
	}
}

func newMocks() (*mockAdapter, *mockAdapter, *mockAdapter) {
	nw := &mockAdapter{domain: model.DomainNetworking, snapshot: model.Default()}
	svc := &mockAdapter{domain: model.DomainServices, snapshot: model.Default()}
	hw := &mockAdapter{domain: model.DomainHardware, snapshot: model.Default()}
	return nw, svc, hw
}

func newReconciler(nw, svc, hw *mockAdapter, opts ...Option) *Reconciler {
	return New([]adapters.Adapter{nw, svc, hw}, opts...)
}

func desiredConfig() *model.Config {
	cfg := model.Default()
	cfg.Networking.Hostname = "node-1"
	cfg.Networking.WifiEnabled = true
	cfg.Services["meshtasticd"] = model.Service{Enabled: true, Running: true}
	return cfg
}

func TestReconcileConverges(t *testing.T) {
	nw, svc, hw := newMocks()
	svc.snapshot.Services["meshtasticd"] = model.Service{}
	r := newReconciler(nw, svc, hw)

	res, err := r.Reconcile(context.Background(), desiredConfig(), ApplyOptions{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.State != RunStateConverged {
		t.Fatalf("state = %s, want converged", res.State)
	}
	if len(res.Planned) != 3 {
		t.Errorf("planned = %v, want 3 changes", res.Planned)
	}
	if len(res.Applied) != len(res.Planned) {
		t.Errorf("applied %d of %d planned changes", len(res.Applied), len(res.Planned))
	}
	if hw.applyCalls != 0 {
		t.Error("hardware had no planned changes and must not be applied")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	nw, svc, hw := newMocks()
	svc.snapshot.Services["meshtasticd"] = model.Service{}
	r := newReconciler(nw, svc, hw)

	desired := desiredConfig()
	if _, err := r.Reconcile(context.Background(), desired, ApplyOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	res, err := r.Reconcile(context.Background(), desired, ApplyOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.State != RunStateConverged {
		t.Fatalf("state = %s, want converged", res.State)
	}
	if len(res.Planned) != 0 || len(res.Applied) != 0 {
		t.Errorf("second run should be a no-op, planned=%v applied=%v", res.Planned, res.Applied)
	}
}

func TestReconcilePartialFailure(t *testing.T) {
	nw, svc, hw := newMocks()
	nw.applyFails = map[string]error{model.FieldHostname: errors.New("hostnamectl: permission denied")}
	svc.snapshot.Services["meshtasticd"] = model.Service{}
	r := newReconciler(nw, svc, hw)

	res, err := r.Reconcile(context.Background(), desiredConfig(), ApplyOptions{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.State != RunStatePartiallyFailed {
		t.Fatalf("state = %s, want partially_failed", res.State)
	}
	if len(res.Failures) != 1 || res.Failures[0].Field != model.FieldHostname {
		t.Fatalf("failures = %v, want hostname only", res.Failures)
	}
	// The failing field must not block its siblings or later domains.
	fields := map[string]bool{}
	for _, a := range res.Applied {
		fields[a.Field] = true
	}
	if !fields[model.FieldWifiEnabled] || !fields["services.meshtasticd"] {
		t.Errorf("remaining fields should still apply, got %v", res.Applied)
	}
}

func TestReconcileInvalidDesired(t *testing.T) {
	nw, svc, hw := newMocks()
	r := newReconciler(nw, svc, hw)

	bad := desiredConfig()
	bad.Networking.CountryCode = "USA"

	_, err := r.Reconcile(context.Background(), bad, ApplyOptions{})
	if !model.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if nw.applyCalls != 0 {
		t.Error("invalid desired state must not reach adapters")
	}
}

func TestReconcileDryRun(t *testing.T) {
	nw, svc, hw := newMocks()
	r := newReconciler(nw, svc, hw)

	res, err := r.Reconcile(context.Background(), desiredConfig(), ApplyOptions{DryRun: true})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.State != RunStateDiffed {
		t.Fatalf("state = %s, want diffed", res.State)
	}
	if len(res.Planned) == 0 || len(res.Applied) != 0 {
		t.Errorf("dry run should plan without applying, planned=%v applied=%v", res.Planned, res.Applied)
	}
	if nw.applyCalls+svc.applyCalls+hw.applyCalls != 0 {
		t.Error("dry run must not call Apply")
	}
}

func TestReconcileReadFailureFallsBackToDefaults(t *testing.T) {
	nw, svc, hw := newMocks()
	svc.readErr = &adapters.ReadError{Domain: model.DomainServices, Err: errors.New("dbus down")}
	r := newReconciler(nw, svc, hw)

	res, err := r.Reconcile(context.Background(), desiredConfig(), ApplyOptions{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(res.ReadFailures) != 1 || res.ReadFailures[0].Domain != model.DomainServices {
		t.Fatalf("read failures = %v", res.ReadFailures)
	}
	// The unknown domain diffs against defaults, so the service change is
	// still planned and applied.
	found := false
	for _, c := range res.Planned {
		if c.Field == "services.meshtasticd" {
			found = true
		}
	}
	if !found {
		t.Errorf("service change should be planned against defaults, got %v", res.Planned)
	}
}

func TestReconcileApplyOrder(t *testing.T) {
	nw, svc, hw := newMocks()
	var order []string
	recording := make([]adapters.Adapter, 0, 3)
	for _, m := range []*mockAdapter{nw, svc, hw} {
		m := m
		recording = append(recording, &orderedAdapter{inner: m, order: &order})
	}
	svc.snapshot.Services["meshtasticd"] = model.Service{}

	desired := desiredConfig()
	desired.Hardware.LEDs["status"] = model.LED{Mode: model.LEDModeHeartbeat}
	hw.snapshot.Hardware.LEDs["status"] = model.LED{Mode: model.LEDModeDisable}

	r := New(recording)
	if _, err := r.Reconcile(context.Background(), desired, ApplyOptions{}); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	want := []string{model.DomainNetworking, model.DomainServices, model.DomainHardware}
	if len(order) != len(want) {
		t.Fatalf("apply order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("apply order = %v, want %v", order, want)
		}
	}
}

type orderedAdapter struct {
	inner adapters.Adapter
	order *[]string
}

func (o *orderedAdapter) Domain() string { return o.inner.Domain() }

func (o *orderedAdapter) Read(ctx context.Context, scope *model.Config) (*model.Config, error) {
	return o.inner.Read(ctx, scope)
}

func (o *orderedAdapter) Apply(ctx context.Context, desired, current *model.Config) ([]adapters.AppliedChange, []*adapters.ApplyError) {
	*o.order = append(*o.order, o.inner.Domain())
	return o.inner.Apply(ctx, desired, current)
}

type stubGate struct {
	result *GateResult
	err    error
}

func (g *stubGate) EvaluateChanges(_ context.Context, _ []Change) (*GateResult, error) {
	return g.result, g.err
}

func TestReconcilePolicyBlocks(t *testing.T) {
	nw, svc, hw := newMocks()
	gate := &stubGate{result: &GateResult{
		Allowed:    false,
		Violations: []GateViolation{{Policy: "protected_services", Message: "meshtasticd must stay enabled", Severity: "error"}},
	}}
	r := newReconciler(nw, svc, hw, WithPolicyGate(gate))

	res, err := r.Reconcile(context.Background(), desiredConfig(), ApplyOptions{})
	var blocked *PolicyBlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected PolicyBlockedError, got %v", err)
	}
	if len(res.Applied) != 0 {
		t.Error("blocked run must not apply anything")
	}

	// Force pushes past the block.
	res, err = r.Reconcile(context.Background(), desiredConfig(), ApplyOptions{Force: true})
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if res.State != RunStateConverged {
		t.Errorf("forced run state = %s, want converged", res.State)
	}
}

func TestRunStates(t *testing.T) {
	for _, s := range []RunState{RunStateLoaded, RunStateDiffed, RunStateApplying, RunStateConverged, RunStatePartiallyFailed} {
		if !s.Validate() {
			t.Errorf("state %q should validate", s)
		}
	}
	if RunState("done").Validate() {
		t.Error("unknown state should not validate")
	}
	if !RunStateConverged.IsTerminal() || !RunStatePartiallyFailed.IsTerminal() {
		t.Error("converged and partially_failed are terminal")
	}
	if RunStateApplying.IsTerminal() {
		t.Error("applying is not terminal")
	}
}
