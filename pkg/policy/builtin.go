package policy

import (
	"time"
)

// Built-in policy names.
const (
	PolicyContainment   = "containment-required"
	PolicySizeClass     = "size-class"
	PolicyShiftLength   = "shift-length"
	PolicyIdleResources = "idle-resources"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		containmentPolicy(),
		sizeClassPolicy(),
		shiftLengthPolicy(),
		idleResourcesPolicy(),
	}
}

func builtin(p Policy) Policy {
	p.Enabled = true
	p.Builtin = true
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	return p
}

// containmentPolicy rejects fires the force could not contain.
func containmentPolicy() Policy {
	return builtin(Policy{
		Name:        PolicyContainment,
		Description: "Rejects outcomes where a reported fire was not contained",
		Severity:    SeverityError,
		Tags:        []string{"containment"},
		Rego: `package firecontain.policies.containment

import rego.v1

accepted := {"contained", "unreported"}

deny contains violation if {
	status := input.outcome.status
	not status in accepted
	violation := {
		"message": sprintf("fire %s was not contained: %s", [input.outcome.scenario, status]),
		"severity": "error",
		"details": {"status": status},
	}
}
`,
	})
}

// sizeClassPolicy flags contained fires of NWCG size class E and above.
func sizeClassPolicy() Policy {
	return builtin(Policy{
		Name:        PolicySizeClass,
		Description: "Warns when a contained fire reaches size class E (300 acres) or larger",
		Severity:    SeverityWarning,
		Tags:        []string{"size"},
		Rego: `package firecontain.policies.size_class

import rego.v1

deny contains violation if {
	input.outcome.status == "contained"
	acres := input.outcome.fire_size_ac
	acres >= 300
	class := size_class(acres)
	violation := {
		"message": sprintf("contained fire of %v acres is size class %s", [round(acres), class]),
		"severity": "warning",
		"details": {"acres": acres, "class": class},
	}
}

size_class(acres) := "E" if {
	acres >= 300
	acres < 1000
}

size_class(acres) := "F" if {
	acres >= 1000
	acres < 5000
}

size_class(acres) := "G" if acres >= 5000
`,
	})
}

// shiftLengthPolicy flags containment that needs more than one shift.
func shiftLengthPolicy() Policy {
	return builtin(Policy{
		Name:        PolicyShiftLength,
		Description: "Warns when containment takes longer than one eight hour shift",
		Severity:    SeverityWarning,
		Tags:        []string{"time"},
		Rego: `package firecontain.policies.shift

import rego.v1

shift_minutes := 480

deny contains violation if {
	input.outcome.status == "contained"
	minutes := input.outcome.time_min
	minutes > shift_minutes
	violation := {
		"message": sprintf("containment took %v minutes, longer than one %v minute shift", [round(minutes), shift_minutes]),
		"severity": "warning",
		"details": {"time_min": minutes},
	}
}
`,
	})
}

// idleResourcesPolicy reports dispatched resources that were never needed.
func idleResourcesPolicy() Policy {
	return builtin(Policy{
		Name:        PolicyIdleResources,
		Description: "Reports resources that arrived after the fire was contained",
		Severity:    SeverityInfo,
		Tags:        []string{"cost", "resources"},
		Rego: `package firecontain.policies.idle_resources

import rego.v1

deny contains violation if {
	input.outcome.status == "contained"
	listed := count(input.scenario.resources)
	idle := listed - input.outcome.resources_used
	idle > 0
	violation := {
		"message": sprintf("%v of %v resources were not needed", [idle, listed]),
		"severity": "info",
		"details": {"idle": idle, "listed": listed},
	}
}
`,
	})
}
