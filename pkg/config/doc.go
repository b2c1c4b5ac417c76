// Package config loads scenario documents for the containment simulator.
//
// Documents are written in CUE, YAML or JSON. All sources passed to
// CUEParser.Parse are unified into a single value, so a scenario may be
// split across files. A document has three optional top-level fields:
//
//	rosters: {
//	    engines: [
//	        {description: "Engine 1", production: 66, duration: 8},
//	        {description: "Engine 2", production: 66, arrival: 0.5, duration: 8},
//	    ]
//	}
//
//	scenarios: {
//	    ridge: {
//	        report_size: 1
//	        report_rate: 5
//	        lw_ratio:    3
//	        roster:      "engines"
//	        resources: [{description: "Dozer", production: 90, duration: 12}]
//	    }
//	}
//
//	generators: [{name: "sweep", file: "sweep.star", input: {steps: 5}}]
//
// Scenarios may be a struct keyed by name or a list. A keyed scenario
// without a name takes its key. Every scenario is checked against the
// built-in #Scenario definition (see SchemaRegistry) and then against the
// validation rules of scenario.Scenario.
//
// A scenario may reference resources instead of listing them. roster names
// an entry of rosters and roster_file a YAML file (see LoadRoster); their
// resources come before the scenario's own. diurnal_script is a Starlark
// script that must define diurnal, a list of 24 hourly spread rates.
//
// # Starlark
//
// Generators are Starlark scripts that define scenarios, a list of dicts in
// the scenario document shape. Scripts run without print and under a
// timeout. Besides struct, two builtins are predeclared:
//
//	resource(description, production, arrival=0, duration=0, side="left", base_cost=0, hour_cost=0)
//	diurnal_curve(peak, trough, peak_hour=15)
//
// diurnal_curve returns 24 rates following a cosine that reaches peak at
// peak_hour and trough twelve hours later.
//
// # Errors
//
// Parse returns an error only when a source cannot be read. Problems in the
// documents are collected as ValidationErrors carrying the file, line and
// column when CUE knows them.
package config
