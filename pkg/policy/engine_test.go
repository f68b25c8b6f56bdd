package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/mpwrd/mpwrd-config/pkg/engine"
)

func TestProtectedServiceStopBlocked(t *testing.T) {
	e := NewEngine()
	changes := []engine.Change{{
		Domain: "services",
		Field:  "services.meshtasticd",
		Before: "enabled=true running=true",
		After:  "enabled=true running=false",
	}}

	res, err := e.EvaluateChanges(context.Background(), changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Allowed {
		t.Fatal("stopping meshtasticd should be blocked")
	}
	if len(res.Violations) != 1 || res.Violations[0].Policy != "protected_services" {
		t.Fatalf("violations = %v", res.Violations)
	}
	if !strings.Contains(res.Violations[0].Message, "meshtasticd") {
		t.Errorf("violation should name the service: %v", res.Violations[0])
	}
}

func TestProtectedServiceDisableBlocked(t *testing.T) {
	e := NewEngine()
	changes := []engine.Change{{
		Domain: "services",
		Field:  "services.meshtasticd",
		Before: "enabled=true running=true",
		After:  "enabled=false running=true",
	}}

	res, err := e.EvaluateChanges(context.Background(), changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Allowed {
		t.Fatal("disabling meshtasticd should be blocked")
	}
}

func TestSSHDisableBlocked(t *testing.T) {
	e := NewEngine()
	changes := []engine.Change{{
		Domain: "services",
		Field:  "services.sshd",
		Before: "enabled=true running=true",
		After:  "enabled=false running=false",
	}}

	res, err := e.EvaluateChanges(context.Background(), changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Allowed {
		t.Fatal("disabling sshd should be blocked")
	}
}

func TestUnprotectedServiceStopAllowed(t *testing.T) {
	e := NewEngine()
	changes := []engine.Change{{
		Domain: "services",
		Field:  "services.avahi-daemon",
		Before: "enabled=true running=true",
		After:  "enabled=true running=false",
	}}

	res, err := e.EvaluateChanges(context.Background(), changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("stopping an unprotected service should pass, got %v", res.Violations)
	}
}

func TestHostnameChangeWarns(t *testing.T) {
	e := NewEngine()
	changes := []engine.Change{{
		Domain: "networking",
		Field:  "networking.hostname",
		Before: "mpwrd",
		After:  "node-1",
	}}

	res, err := e.EvaluateChanges(context.Background(), changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("hostname change must not block, got %v", res.Violations)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Policy != "hostname_change" {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestWifiDisableWarns(t *testing.T) {
	e := NewEngine()
	changes := []engine.Change{{
		Domain: "networking",
		Field:  "networking.wifi_enabled",
		Before: "true",
		After:  "false",
	}}

	res, err := e.EvaluateChanges(context.Background(), changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.Allowed || len(res.Warnings) != 1 {
		t.Fatalf("expected one warning and no block, got %+v", res)
	}
}

func TestEmptyChangeSetAllowed(t *testing.T) {
	e := NewEngine()
	res, err := e.EvaluateChanges(context.Background(), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.Allowed || len(res.Warnings) != 0 {
		t.Fatalf("empty change set should pass cleanly, got %+v", res)
	}
}

func TestCustomPolicySet(t *testing.T) {
	custom := Policy{
		Name:     "no_country_change",
		Severity: SeverityError,
		Rego: `
package mpwrd.no_country_change

import rego.v1

deny contains violation if {
	some change in input.changes
	change.field == "networking.country_code"
	violation := {"message": "regulatory domain is locked", "severity": "error"}
}
`,
	}
	e := NewEngine(WithPolicies([]Policy{custom}))

	changes := []engine.Change{{
		Domain: "networking",
		Field:  "networking.country_code",
		Before: "US",
		After:  "DE",
	}}
	res, err := e.EvaluateChanges(context.Background(), changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Allowed {
		t.Fatal("custom policy should block")
	}
}
