// Package telemetry provides logging, tracing, metrics and event publishing
// for firecontain.
//
// The package combines four components behind a single Telemetry value:
//
//  1. Structured logging with zerolog
//  2. Tracing with OpenTelemetry (OTLP over gRPC or stdout)
//  3. Prometheus metrics on a private registry
//  4. An in-process event publisher used by the run archive
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Runs
//
// StartRun opens a span and run-scoped logger and counts the run. Its
// Observer is passed to the simulator so that every resolved pass is logged,
// counted and published:
//
//	ctx, rc := telemetry.StartRun(ctx, runID, "ridge-fire", "cli")
//	res, err := contain.Simulate(ctx, cfg, force, contain.WithObserver(rc.Observer()))
//	rc.End(res, err)
//
// Per-step logs are written only when the logger is at trace level.
//
// # Metrics
//
// Collectors are namespaced by MetricsConfig.Namespace (default
// "firecontain"):
//
//   - runs_started_total{source}
//   - runs_completed_total{status}
//   - run_duration_seconds{status}
//   - passes_per_run
//   - passes_total{reason}
//   - steps_per_pass{reason}
//   - contained_size_acres
//   - errors_by_class_total{class}, errors_by_code_total{code}
//   - policy_violations_total{policy,severity}
//   - active_runs, queued_scenarios
//
// A disabled MetricsConfig yields a Metrics whose Record methods do nothing.
//
// # Events
//
// In async mode events are queued and delivered in publication order by one
// goroutine. Shutdown delivers whatever is still queued.
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
package telemetry
