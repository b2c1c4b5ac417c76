package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/firecontain/pkg/contain"
	"github.com/openfroyo/firecontain/pkg/telemetry"
)

// Example_runInstrumentation instruments a single simulation run.
func Example_runInstrumentation() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	cfg.Events.EnableAsync = false

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type)
	}, telemetry.FilterByType(telemetry.EventTypeRunStarted, telemetry.EventTypeRunCompleted))

	ctx := tel.WithContext(context.Background())
	ctx, rc := telemetry.StartRun(ctx, "run-1", "ridge", "example")

	force := &contain.Force{}
	_ = force.AddResource("Engine 1", 0, 60, 480, contain.SideLeft, 100, 50)

	simCfg := contain.DefaultConfig()
	simCfg.Report = contain.Report{Size: 20, Rate: 20, LWRatio: 1}

	res, err := contain.Simulate(ctx, simCfg, force, contain.WithObserver(rc.Observer()))
	rc.End(res, err)

	fmt.Println(res.Status)
	// Output:
	// run.started
	// run.completed
	// contained
}

// Example_eventFiltering delivers only warnings and errors.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Printf("%s %s\n", e.Level, e.Type)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	_ = tel.Events.PublishRunStarted("run-1", "ridge", "cli")
	_ = tel.Events.PublishRunCompleted("run-1", "ridge", "overrun", 1, time.Millisecond)
	_ = tel.Events.PublishRunFailed("run-2", "ridge", fmt.Errorf("bad roster"))

	// Output:
	// warning run.completed
	// error run.failed
}

// Example_productionConfiguration validates a service configuration.
func Example_productionConfiguration() {
	cfg := telemetry.ProductionConfig()
	cfg.ServiceVersion = "1.2.3"
	cfg.Tracing.Endpoint = "otel-collector.monitoring:4317"

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("production configuration validated")
	// Output: production configuration validated
}
