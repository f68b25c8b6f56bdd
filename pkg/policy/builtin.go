package policy

// Builtin guardrails over the planned change set. Change values arrive
// rendered (see engine.Diff), so the rules match on the rendered form.

const protectedServicesRego = `
package mpwrd.protected_services

import rego.v1

protected := {"meshtasticd", "sshd", "ssh"}

deny contains violation if {
	some change in input.changes
	change.domain == "services"
	name := substring(change.field, count("services."), -1)
	protected[name]
	contains(change.after, "running=false")
	violation := {
		"message": sprintf("service %s is protected and must stay running", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	some change in input.changes
	change.domain == "services"
	name := substring(change.field, count("services."), -1)
	protected[name]
	contains(change.after, "enabled=false")
	violation := {
		"message": sprintf("service %s is protected and must stay enabled", [name]),
		"severity": "error",
	}
}
`

const hostnameChangeRego = `
package mpwrd.hostname_change

import rego.v1

deny contains violation if {
	some change in input.changes
	change.field == "networking.hostname"
	violation := {
		"message": sprintf("hostname changes from %s to %s; mDNS and mesh peers will see a new identity", [change.before, change.after]),
		"severity": "warning",
	}
}
`

const wifiDisableRego = `
package mpwrd.wifi_disable

import rego.v1

deny contains violation if {
	some change in input.changes
	change.field == "networking.wifi_enabled"
	change.after == "false"
	violation := {
		"message": "disabling wifi cuts the node off from network sync",
		"severity": "warning",
	}
}
`

// BuiltinPolicies returns the default guardrail set.
func BuiltinPolicies() []Policy {
	return []Policy{
		{Name: "protected_services", Rego: protectedServicesRego, Severity: SeverityError},
		{Name: "hostname_change", Rego: hostnameChangeRego, Severity: SeverityWarning},
		{Name: "wifi_disable", Rego: wifiDisableRego, Severity: SeverityWarning},
	}
}
