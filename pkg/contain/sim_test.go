package contain

import (
	"context"
	"errors"
	"math"
	"testing"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Report = Report{Size: 20, Rate: 20, LWRatio: 1}
	cfg.MaxFireSize = 5000
	return cfg
}

func oneEngine(t *testing.T) *Force {
	t.Helper()
	return mustForce(t, Resource{
		Description: "Engine 1",
		Arrival:     0,
		Duration:    480,
		Production:  60,
		BaseCost:    100,
		HourCost:    50,
		Side:        SideLeft,
	})
}

func run(t *testing.T, cfg Config, force ForceReader, opts ...Option) *Result {
	t.Helper()
	res, err := Simulate(context.Background(), cfg, force, opts...)
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	return res
}

func TestSimulateSingleResourceContains(t *testing.T) {
	cfg := testConfig()
	res := run(t, cfg, oneEngine(t))

	if res.Status != StatusContained {
		t.Fatalf("Status = %v, want %v", res.Status, StatusContained)
	}
	if res.Passes != 1 {
		t.Errorf("Passes = %d, want 1", res.Passes)
	}
	steps := len(res.Steps) - 1
	if steps < cfg.MinSteps || steps > cfg.MaxSteps {
		t.Errorf("steps = %d, want within [%d, %d]", steps, cfg.MinSteps, cfg.MaxSteps)
	}
	if math.Abs(res.Time-373.6) > 1 {
		t.Errorf("Time = %v, want about 373.6", res.Time)
	}
	if math.Abs(res.Size-978) > 10 {
		t.Errorf("Size = %v, want about 978", res.Size)
	}
	if res.Used != 1 {
		t.Errorf("Used = %d, want 1", res.Used)
	}
	wantCost := 100 + 50*res.Time/60
	if math.Abs(res.Cost-wantCost) > 1e-6 {
		t.Errorf("Cost = %v, want %v", res.Cost, wantCost)
	}
	if res.Perimeter != res.Line || res.Sweep != res.Size {
		t.Errorf("contained outputs disagree: line=%v perimeter=%v size=%v sweep=%v",
			res.Line, res.Perimeter, res.Size, res.Sweep)
	}
}

func TestSimulateMirrorsFlanks(t *testing.T) {
	for _, tactic := range []Tactic{TacticHead, TacticRear} {
		t.Run(string(tactic), func(t *testing.T) {
			cfg := testConfig()
			cfg.Tactic = tactic
			res := run(t, cfg, oneEngine(t))

			var segments float64
			for _, s := range res.Steps {
				segments += s.Segment
			}
			if math.Abs(res.Line-2*segments) > 1e-9 {
				t.Errorf("Line = %v, want twice the flank line %v", res.Line, 2*segments)
			}
			for i := 1; i < len(res.Steps); i++ {
				if res.Steps[i].H < res.Steps[i-1].H {
					t.Fatalf("head moved back at step %d", i)
				}
			}
		})
	}
}

func TestSimulateEmptyForceFails(t *testing.T) {
	_, err := NewSimulator(testConfig(), &Force{})
	if !errors.Is(err, ErrInvalidAttackTime) {
		t.Fatalf("NewSimulator() error = %v, want ErrInvalidAttackTime", err)
	}
	if !IsInvalidInput(err) {
		t.Errorf("IsInvalidInput(%v) = false", err)
	}

	if _, err := NewSimulator(testConfig(), nil); !errors.Is(err, ErrMissingForce) {
		t.Errorf("NewSimulator(nil) error = %v, want ErrMissingForce", err)
	}
}

func TestSimulateRetriesAtNextArrival(t *testing.T) {
	force := mustForce(t,
		Resource{Description: "Engine 1", Arrival: 0, Production: 30, BaseCost: 100, HourCost: 50},
		Resource{Description: "Dozer 1", Arrival: 60, Production: 80, BaseCost: 1000, HourCost: 200},
	)

	var reasons []PassReason
	obs := ObserverFuncs{Pass: func(e PassEvent) { reasons = append(reasons, e.Reason) }}
	res := run(t, testConfig(), force, WithObserver(obs))

	if res.Status != StatusContained {
		t.Fatalf("Status = %v, want %v", res.Status, StatusContained)
	}
	if res.Passes < 2 {
		t.Errorf("Passes = %d, want at least 2", res.Passes)
	}
	if res.AttackTime != 60 {
		t.Errorf("AttackTime = %v, want 60", res.AttackTime)
	}
	if res.Used != 2 {
		t.Errorf("Used = %d, want 2", res.Used)
	}
	if len(reasons) == 0 || reasons[0] != PassRetryLater {
		t.Errorf("first pass reason = %v, want %v", reasons, PassRetryLater)
	}
}

func TestSimulateOverrunWithoutRetry(t *testing.T) {
	force := mustForce(t,
		Resource{Description: "Engine 1", Arrival: 0, Production: 30},
		Resource{Description: "Dozer 1", Arrival: 60, Production: 80},
	)
	cfg := testConfig()
	cfg.Retry = false
	res := run(t, cfg, force)

	if res.Status != StatusOverrun {
		t.Fatalf("Status = %v, want %v", res.Status, StatusOverrun)
	}
	if res.Passes != 1 {
		t.Errorf("Passes = %d, want 1", res.Passes)
	}
	if res.Size != 0 || res.Line != 0 || res.Perimeter != 0 || res.Sweep != 0 {
		t.Errorf("escaped fire reported geometry: %+v", res)
	}
}

func TestSimulateOverrunWithNoLaterArrivalIsExhausted(t *testing.T) {
	force := mustForce(t, Resource{Description: "Engine 1", Arrival: 0, Duration: 120, Production: 30})
	res := run(t, testConfig(), force)
	if res.Status != StatusExhausted {
		t.Fatalf("Status = %v, want %v", res.Status, StatusExhausted)
	}
}

func TestSimulateShiftEndsBeforeContainment(t *testing.T) {
	force := mustForce(t, Resource{Description: "Engine 1", Arrival: 0, Duration: 100, Production: 42})
	cfg := testConfig()
	cfg.MaxFireSize = 1e9
	res := run(t, cfg, force)

	if res.Status != StatusExhausted {
		t.Fatalf("Status = %v, want %v", res.Status, StatusExhausted)
	}
	if res.Time < 100 || res.Time > 101 {
		t.Errorf("Time = %v, want about 100", res.Time)
	}
}

func TestSimulateSizeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFireSize = 25
	res := run(t, cfg, oneEngine(t))

	if res.Status != StatusSizeLimitExceeded {
		t.Fatalf("Status = %v, want %v", res.Status, StatusSizeLimitExceeded)
	}
	if res.Size != 0 || res.Perimeter != 0 {
		t.Errorf("Size = %v, Perimeter = %v, want 0", res.Size, res.Perimeter)
	}
	if last := res.Steps[len(res.Steps)-1]; last.Area < cfg.MaxFireSize {
		t.Errorf("last recorded area = %v, want at least %v", last.Area, cfg.MaxFireSize)
	}
}

func TestSimulateTimeLimit(t *testing.T) {
	force := mustForce(t, Resource{Description: "Engine 1", Arrival: 0, Duration: 2000, Production: 42})
	cfg := testConfig()
	cfg.MaxFireSize = 1e9
	cfg.MaxSteps = 2000
	cfg.MaxFireTime = 300
	res := run(t, cfg, force)

	if res.Status != StatusTimeLimitExceeded {
		t.Fatalf("Status = %v, want %v", res.Status, StatusTimeLimitExceeded)
	}
	if res.Time != 300 {
		t.Errorf("Time = %v, want 300", res.Time)
	}
}

func TestSimulateRefinesStepSize(t *testing.T) {
	cfg := testConfig()
	cfg.MinSteps = 600

	var steps, passes int
	obs := ObserverFuncs{
		Step: func(StepEvent) { steps++ },
		Pass: func(PassEvent) { passes++ },
	}
	res := run(t, cfg, oneEngine(t), WithObserver(obs))

	if res.Status != StatusContained {
		t.Fatalf("Status = %v, want %v", res.Status, StatusContained)
	}
	if res.Passes != 2 || passes != 2 {
		t.Errorf("Passes = %d (observed %d), want 2", res.Passes, passes)
	}
	if got := len(res.Steps) - 1; got < cfg.MinSteps {
		t.Errorf("steps = %d, want at least %d", got, cfg.MinSteps)
	}
	if math.Abs(res.DistStep-20.0/120) > 1e-12 {
		t.Errorf("DistStep = %v, want %v", res.DistStep, 20.0/120)
	}
	if steps <= len(res.Steps)-1 {
		t.Errorf("observed %d steps, want steps from both passes", steps)
	}
}

func TestSimulateCoarseningGuardAcceptsFewSteps(t *testing.T) {
	cfg := testConfig()
	cfg.MinSteps = 900

	var reasons []PassReason
	obs := ObserverFuncs{Pass: func(e PassEvent) { reasons = append(reasons, e.Reason) }}
	res := run(t, cfg, oneEngine(t), WithObserver(obs))

	if res.Status != StatusContained {
		t.Fatalf("Status = %v, want %v", res.Status, StatusContained)
	}
	want := []PassReason{PassRefine, PassRefine, PassCoarsen, PassContained}
	if len(reasons) != len(want) {
		t.Fatalf("reasons = %v, want %v", reasons, want)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Errorf("reasons[%d] = %v, want %v", i, reasons[i], want[i])
		}
	}
	if got := len(res.Steps) - 1; got >= cfg.MinSteps {
		t.Errorf("steps = %d, want fewer than %d once the guard fired", got, cfg.MinSteps)
	}
}

func TestSimulateStepLimitOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSteps = 1
	res := run(t, cfg, oneEngine(t))

	if res.Status != StatusOverflow {
		t.Fatalf("Status = %v, want %v", res.Status, StatusOverflow)
	}
	if got := len(res.Steps) - 1; got != minMaxSteps {
		t.Errorf("steps = %d, want %d", got, minMaxSteps)
	}
	if res.Passes != 2 {
		t.Errorf("Passes = %d, want 2", res.Passes)
	}
}

func TestSimulatePassLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MinSteps = 600
	cfg.MaxPasses = 1
	res := run(t, cfg, oneEngine(t))

	if res.Status != StatusOverflow {
		t.Fatalf("Status = %v, want %v", res.Status, StatusOverflow)
	}
	if res.Passes != 1 {
		t.Errorf("Passes = %d, want 1", res.Passes)
	}
	if math.Abs(res.DistStep-20.0/60) > 1e-12 {
		t.Errorf("DistStep = %v, want the unrefined %v", res.DistStep, 20.0/60)
	}
}

func TestSimulatorRunIsRepeatable(t *testing.T) {
	sim, err := NewSimulator(testConfig(), oneEngine(t))
	if err != nil {
		t.Fatalf("NewSimulator() error = %v", err)
	}
	first, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	second, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if first.Status != second.Status || first.Time != second.Time || first.Size != second.Size {
		t.Errorf("runs differ: %v/%v/%v vs %v/%v/%v",
			first.Status, first.Time, first.Size, second.Status, second.Time, second.Size)
	}
}

func TestSimulateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Simulate(ctx, testConfig(), oneEngine(t))
	if !IsCancelled(err) {
		t.Fatalf("Simulate() error = %v, want cancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error %v does not wrap context.Canceled", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "negative min steps", mutate: func(c *Config) { c.MinSteps = -1 }},
		{name: "negative max steps", mutate: func(c *Config) { c.MaxSteps = -1 }},
		{name: "negative max size", mutate: func(c *Config) { c.MaxFireSize = -1 }},
		{name: "NaN max time", mutate: func(c *Config) { c.MaxFireTime = math.NaN() }},
		{name: "negative max passes", mutate: func(c *Config) { c.MaxPasses = -3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !IsInvalidInput(err) {
				t.Errorf("Validate() error = %v, want invalid input", err)
			}
		})
	}
	if err := testConfig().Validate(); err != nil {
		t.Errorf("Validate() error = %v for default config", err)
	}
}

func TestStatus(t *testing.T) {
	if StatusAttacked.IsTerminal() {
		t.Error("attacked should not be terminal")
	}
	if !StatusContained.IsTerminal() || StatusContained.Escaped() {
		t.Error("contained should be terminal and not escaped")
	}
	if !StatusSizeLimitExceeded.Escaped() {
		t.Error("size limit should count as escaped")
	}
	if StatusTimeLimitExceeded.Code() != 8 || Status("bogus").Code() != -1 {
		t.Error("unexpected status codes")
	}

	var s Status
	if err := s.UnmarshalJSON([]byte(`"exhausted"`)); err != nil || s != StatusExhausted {
		t.Errorf("UnmarshalJSON() = %v, %v", s, err)
	}
	if err := s.UnmarshalJSON([]byte(`"smoldering"`)); err == nil {
		t.Error("expected error for unknown status")
	}
}
