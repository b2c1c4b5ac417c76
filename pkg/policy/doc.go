// Package policy evaluates Rego acceptance policies against simulation
// outcomes using Open Policy Agent.
//
// Every policy is a Rego module whose deny set lists its violations. An
// entry is either a message string or an object:
//
//	deny contains violation if {
//		input.outcome.status == "contained"
//		input.outcome.fire_size_ac > 100
//		violation := {
//			"message": sprintf("fire grew to %v acres", [input.outcome.fire_size_ac]),
//			"severity": "error",
//			"details": {"acres": input.outcome.fire_size_ac},
//		}
//	}
//
// The input document has three fields: scenario (the scenario as written,
// in its own units), outcome (the scenario.Outcome JSON, in feet, acres and
// minutes) and context (run and batch IDs, environment, timestamp).
//
// A result is Allowed unless a violation has error or critical severity.
// Violations without a severity take the policy's default.
//
// # Built-in policies
//
//   - containment-required (error): the fire must be contained or unreported.
//   - size-class (warning): contained fires of 300 acres or more.
//   - shift-length (warning): containment after more than 480 minutes.
//   - idle-resources (info): resources the containment did not need.
//
// # Loading policies
//
// Loader reads .rego files, named after the file, and .json policy
// definitions. Leading comments of a .rego file become its description and
// a "# severity: error" comment sets its default severity. Loader.Watch
// reloads policies when files change; pass Engine.ReplacePolicies as the
// reload function to swap the custom policies while keeping the built-in
// ones.
//
// Results are stored in the run archive with StoreResults, and the engine
// publishes a policy.violation event per violation when created
// WithTelemetry.
package policy
