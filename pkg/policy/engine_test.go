package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/firecontain/pkg/contain"
	"github.com/openfroyo/firecontain/pkg/scenario"
	"github.com/openfroyo/firecontain/pkg/telemetry"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled), opts...)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func engines(n int) []scenario.ResourceSpec {
	resources := make([]scenario.ResourceSpec, n)
	for i := range resources {
		resources[i] = scenario.ResourceSpec{Description: "Engine", Production: 66, Duration: 8}
	}
	return resources
}

func testInput(status contain.Status, acres, minutes float64, listed, used int) *Input {
	return &Input{
		Scenario: &scenario.Scenario{
			Name:       "ridge",
			ReportSize: 1,
			ReportRate: 5,
			Resources:  engines(listed),
		},
		Outcome: &scenario.Outcome{
			Scenario:      "ridge",
			Status:        status,
			FireSizeAcres: acres,
			Time:          minutes,
			ResourcesUsed: used,
		},
		Context: &Context{RunID: "run-1"},
	}
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	want := []string{PolicyContainment, PolicyIdleResources, PolicyShiftLength, PolicySizeClass}
	if len(policies) != len(want) {
		t.Fatalf("Expected %d built-in policies, got %d", len(want), len(policies))
	}
	for i, p := range policies {
		if p.Name != want[i] {
			t.Errorf("policies[%d] = %s, want %s", i, p.Name, want[i])
		}
		if !p.Builtin || !p.Enabled {
			t.Errorf("policy %s should be an enabled builtin", p.Name)
		}
	}

	if len(newTestEngine(t, WithoutBuiltins()).ListPolicies()) != 0 {
		t.Error("WithoutBuiltins should load no policies")
	}
}

func TestEvaluate_BuiltinPolicies(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		input       *Input
		wantAllowed bool
		wantPolicy  string
		wantCount   int
	}{
		{
			name:        "small contained fire",
			input:       testInput(contain.StatusContained, 4, 90, 1, 1),
			wantAllowed: true,
		},
		{
			name:        "unreported fire",
			input:       testInput(contain.StatusUnreported, 0, 0, 0, 0),
			wantAllowed: true,
		},
		{
			name:        "escaped fire",
			input:       testInput(contain.StatusSizeLimitExceeded, 0, 600, 2, 2),
			wantAllowed: false,
			wantPolicy:  PolicyContainment,
			wantCount:   1,
		},
		{
			name:        "overrun",
			input:       testInput(contain.StatusOverrun, 0, 30, 1, 1),
			wantAllowed: false,
			wantPolicy:  PolicyContainment,
			wantCount:   1,
		},
		{
			name:        "large contained fire",
			input:       testInput(contain.StatusContained, 1200, 300, 1, 1),
			wantAllowed: true,
			wantPolicy:  PolicySizeClass,
			wantCount:   1,
		},
		{
			name:        "long containment",
			input:       testInput(contain.StatusContained, 50, 720, 1, 1),
			wantAllowed: true,
			wantPolicy:  PolicyShiftLength,
			wantCount:   1,
		},
		{
			name:        "idle resources",
			input:       testInput(contain.StatusContained, 4, 90, 3, 1),
			wantAllowed: true,
			wantPolicy:  PolicyIdleResources,
			wantCount:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.Evaluate(ctx, tt.input)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if len(result.Errors) > 0 {
				t.Fatalf("unexpected evaluation errors: %v", result.Errors)
			}
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (violations: %+v)", result.Allowed, tt.wantAllowed, result.Violations)
			}
			if len(result.EvaluatedPolicies) != 4 {
				t.Errorf("expected 4 evaluated policies, got %v", result.EvaluatedPolicies)
			}
			if tt.wantPolicy == "" {
				if len(result.Violations) != 0 {
					t.Errorf("expected no violations, got %+v", result.Violations)
				}
				return
			}
			if len(result.Violations) != tt.wantCount {
				t.Errorf("expected %d violations, got %+v", tt.wantCount, result.Violations)
			}
			got := result.ViolationsOf(tt.wantPolicy)
			if len(got) != 1 {
				t.Fatalf("expected a %s violation, got %+v", tt.wantPolicy, result.Violations)
			}
			if got[0].Message == "" || got[0].RunID != "run-1" || got[0].Scenario != "ridge" {
				t.Errorf("incomplete violation: %+v", got[0])
			}
		})
	}
}

func TestEvaluate_SizeClassDetails(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), testInput(contain.StatusContained, 6000, 300, 1, 1))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	got := result.ViolationsOf(PolicySizeClass)
	if len(got) != 1 {
		t.Fatalf("expected a size class violation, got %+v", result.Violations)
	}
	if got[0].Details["class"] != "G" {
		t.Errorf("expected class G, got %v", got[0].Details["class"])
	}
	if got[0].Severity != SeverityWarning {
		t.Errorf("expected warning severity, got %s", got[0].Severity)
	}
}

func TestEvaluate_RequiresOutcome(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.Evaluate(context.Background(), &Input{}); err == nil {
		t.Error("expected error without outcome")
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	escaped := testInput(contain.StatusExhausted, 0, 600, 1, 1)

	if err := eng.DisablePolicies([]string{PolicyContainment + "," + PolicyShiftLength}); err != nil {
		t.Fatalf("DisablePolicies failed: %v", err)
	}
	result, err := eng.Evaluate(ctx, escaped)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Error("disabled policy should not block")
	}
	if len(result.EvaluatedPolicies) != 2 {
		t.Errorf("expected 2 evaluated policies, got %v", result.EvaluatedPolicies)
	}

	if err := eng.EnablePolicy(PolicyContainment); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	result, err = eng.Evaluate(ctx, escaped)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Error("re-enabled policy should block")
	}

	if err := eng.DisablePolicy("no-such-policy"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestLoadPolicies_Custom(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	dir := t.TempDir()
	rego := `# Budget cap per run.
# severity: error
package firecontain.custom.budget

import rego.v1

deny contains sprintf("cost %v exceeds the budget", [input.outcome.cost]) if {
	input.outcome.cost > 10000
}
`
	if err := os.WriteFile(filepath.Join(dir, "budget.rego"), []byte(rego), 0644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(ctx, []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	p, err := eng.GetPolicy("budget")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p.Severity != SeverityError || p.Description != "Budget cap per run." {
		t.Errorf("unexpected header parse: %+v", p)
	}

	input := testInput(contain.StatusContained, 4, 90, 1, 1)
	input.Outcome.Cost = 25000
	result, err := eng.Evaluate(ctx, input)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	got := result.ViolationsOf("budget")
	if len(got) != 1 || !strings.Contains(got[0].Message, "exceeds the budget") {
		t.Fatalf("expected budget violation, got %+v", result.Violations)
	}
	if result.Allowed {
		t.Error("error severity should block")
	}
}

func TestAddPolicies_InvalidRego(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.AddPolicies(context.Background(), []Policy{
		{Name: "ok", Rego: "package ok\n\nimport rego.v1\n\ndeny contains \"x\" if false\n", Enabled: true},
		{Name: "broken", Rego: "package broken\n\ndeny contains {", Enabled: true},
	})
	if err == nil {
		t.Fatal("expected compile error")
	}
	if _, err := eng.GetPolicy("ok"); err == nil {
		t.Error("no policy should be added when one fails")
	}
}

func TestReplacePolicies_KeepsBuiltins(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	custom := Policy{Name: "custom", Rego: "package custom\n\nimport rego.v1\n\ndeny contains \"x\" if false\n", Enabled: true}
	if err := eng.AddPolicies(ctx, []Policy{custom}); err != nil {
		t.Fatalf("AddPolicies failed: %v", err)
	}
	if err := eng.ReplacePolicies(ctx, nil); err != nil {
		t.Fatalf("ReplacePolicies failed: %v", err)
	}
	if _, err := eng.GetPolicy("custom"); err == nil {
		t.Error("custom policy should be removed")
	}
	if len(eng.ListPolicies()) != 4 {
		t.Errorf("builtins should remain, got %d policies", len(eng.ListPolicies()))
	}

	if err := eng.ReloadPolicies(ctx); err != nil {
		t.Fatalf("ReloadPolicies failed: %v", err)
	}
	if len(eng.ListPolicies()) != 4 {
		t.Errorf("expected 4 policies after reload, got %d", len(eng.ListPolicies()))
	}
}

func TestEvaluateRecord_PublishesViolations(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	cfg.Events.EnableAsync = false
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("Failed to create telemetry: %v", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	var published []telemetry.Event
	tel.Events.Subscribe(func(e telemetry.Event) {
		published = append(published, e)
	}, func(e telemetry.Event) bool {
		return e.Type == telemetry.EventTypePolicyViolation
	})

	eng := newTestEngine(t, WithTelemetry(tel), WithEnvironment("test"))
	in := testInput(contain.StatusOverflow, 0, 60, 1, 1)
	rec := &scenario.Record{
		RunID:    "run-42",
		Scenario: in.Scenario,
		Outcome:  in.Outcome,
	}

	result, err := eng.EvaluateRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("EvaluateRecord failed: %v", err)
	}
	if result.Context.Environment != "test" || result.Context.RunID != "run-42" {
		t.Errorf("unexpected context: %+v", result.Context)
	}
	if len(published) != 1 || published[0].RunID != "run-42" {
		t.Fatalf("expected one published violation, got %+v", published)
	}

	failed, err := eng.EvaluateRecord(context.Background(), &scenario.Record{RunID: "x"})
	if err != nil || failed != nil {
		t.Errorf("records without outcome should be skipped, got %v, %v", failed, err)
	}
}

func TestEvaluateBatch(t *testing.T) {
	eng := newTestEngine(t)

	var records []*scenario.Record
	for i, status := range []contain.Status{contain.StatusContained, contain.StatusOverrun, contain.StatusContained} {
		in := testInput(status, 4, 90, 1, 1)
		records = append(records, &scenario.Record{RunID: string(rune('a' + i)), Scenario: in.Scenario, Outcome: in.Outcome})
	}
	records = append(records, &scenario.Record{RunID: "failed"})

	report, err := eng.EvaluateBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("EvaluateBatch failed: %v", err)
	}
	if len(report.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(report.Results))
	}
	s := report.Summary
	if s.TotalRuns != 3 || s.AllowedRuns != 2 || s.BlockedRuns != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.ViolationsByPolicy[PolicyContainment] != 1 || s.ViolationsBySeverity[SeverityError] != 1 {
		t.Errorf("unexpected breakdown: %+v", s)
	}
}

func TestStoreResults(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), testInput(contain.StatusOverrun, 0, 30, 1, 1))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	rows := StoreResults("run-1", result)
	if len(rows) != 4 {
		t.Fatalf("expected one row per policy, got %d", len(rows))
	}
	blocked := 0
	for _, r := range rows {
		if r.RunID != "run-1" || r.CreatedAt.IsZero() {
			t.Errorf("incomplete row: %+v", r)
		}
		if !r.Allowed {
			blocked++
			if r.Policy != PolicyContainment || r.Severity != "error" {
				t.Errorf("unexpected blocking row: %+v", r)
			}
		}
	}
	if blocked != 1 {
		t.Errorf("expected 1 blocking row, got %d", blocked)
	}

	if StoreResults("run-1", nil) != nil {
		t.Error("nil result should give no rows")
	}
}
