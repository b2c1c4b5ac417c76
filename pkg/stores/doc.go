// Package stores archives simulation runs in SQLite. It keeps the scenario
// and outcome of every run, batch summaries, the telemetry event stream and
// policy evaluation results, with the schema managed by golang-migrate.
package stores
