package config

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]interface{}
		wantErr   bool
		checkFunc func(*testing.T, *StarlarkResult)
	}{
		{
			name:   "simple values",
			script: `rate = 5.5` + "\n" + `count = 3`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["rate"] != 5.5 {
					t.Errorf("expected rate=5.5, got %v", sr.Output["rate"])
				}
				if sr.Output["count"] != int64(3) {
					t.Errorf("expected count=3, got %v", sr.Output["count"])
				}
			},
		},
		{
			name: "input",
			script: `
doubled = [r * 2 for r in rates]
label = name.upper()
`,
			input: map[string]interface{}{
				"rates": []float64{1, 2},
				"name":  "ridge",
			},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				doubled, ok := sr.Output["doubled"].([]interface{})
				if !ok || len(doubled) != 2 || doubled[1] != 4.0 {
					t.Errorf("unexpected doubled: %v", sr.Output["doubled"])
				}
				if sr.Output["label"] != "RIDGE" {
					t.Errorf("expected label=RIDGE, got %v", sr.Output["label"])
				}
			},
		},
		{
			name: "private globals and functions are not exported",
			script: `
_scale = 2
def scaled(x):
    return x * _scale
result = scaled(21)
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(42) {
					t.Errorf("expected result=42, got %v", sr.Output["result"])
				}
				if _, ok := sr.Output["_scale"]; ok {
					t.Error("private global exported")
				}
				if _, ok := sr.Output["scaled"]; ok {
					t.Error("function exported")
				}
			},
		},
		{
			name:   "struct and tuple",
			script: `crew = struct(name = "hotshots", size = 20)` + "\n" + `pair = (1, "a")`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				crew, ok := sr.Output["crew"].(map[string]interface{})
				if !ok || crew["name"] != "hotshots" || crew["size"] != int64(20) {
					t.Errorf("unexpected crew: %v", sr.Output["crew"])
				}
				pair, ok := sr.Output["pair"].([]interface{})
				if !ok || len(pair) != 2 || pair[1] != "a" {
					t.Errorf("unexpected pair: %v", sr.Output["pair"])
				}
			},
		},
		{
			name:   "resource builtin",
			script: `engine = resource("Engine 1", 66, duration = 8, side = "both")`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				engine, ok := sr.Output["engine"].(map[string]interface{})
				if !ok {
					t.Fatalf("unexpected engine: %v", sr.Output["engine"])
				}
				if engine["production"] != 66.0 || engine["duration"] != 8.0 || engine["arrival"] != 0.0 {
					t.Errorf("unexpected numbers: %v", engine)
				}
				if engine["side"] != "both" {
					t.Errorf("expected side both, got %v", engine["side"])
				}
			},
		},
		{
			name:    "resource builtin rejects strings",
			script:  `engine = resource("Engine 1", "fast")`,
			wantErr: true,
		},
		{
			name:    "syntax error",
			script:  `rate = `,
			wantErr: true,
		},
		{
			name:    "runtime error",
			script:  `rate = 1 / 0`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got none")
				}
				if result == nil || result.Error == "" {
					t.Error("expected error in result")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(100 * time.Millisecond)
	ctx := context.Background()

	script := `
def slow_function():
    result = 0
    for i in range(100000000):
        result = result + i
    return result

output = slow_function()
`

	result, err := evaluator.Evaluate(ctx, script, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout error, got %v", err)
	}
	if result == nil || result.Error == "" {
		t.Error("expected timeout error in result")
	}
}

func TestStarlarkEvaluator_Cancelled(t *testing.T) {
	evaluator := NewStarlarkEvaluator(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	script := `
def spin():
    for i in range(100000000):
        pass

spin()
`
	if _, err := evaluator.Evaluate(ctx, script, nil); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestStarlarkEvaluator_Security(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	script := `
print("this should not appear")
result = "done"
`

	result, err := evaluator.Evaluate(ctx, script, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output["result"] != "done" {
		t.Errorf("expected result='done', got %v", result.Output["result"])
	}

	if _, err := evaluator.Evaluate(ctx, `load("os.star", "system")`, nil); err == nil {
		t.Error("expected load to be unavailable")
	}
}

func TestStarlarkEvaluator_GenerateScenarios(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	script := `
def make(rate):
    return {
        "name": "rate-%d" % rate,
        "report_size": 1,
        "report_rate": rate,
        "tactic": "rear",
        "resources": [resource("Engine", 66, duration = 8)],
    }

scenarios = [make(r) for r in rates]
`
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sweep.star"), script)

	t.Run("file", func(t *testing.T) {
		scenarios, err := evaluator.GenerateScenarios(ctx, Generator{
			File:  "sweep.star",
			Input: map[string]interface{}{"rates": []interface{}{2, 4, 8}},
		}, dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(scenarios) != 3 {
			t.Fatalf("expected 3 scenarios, got %d", len(scenarios))
		}
		if scenarios[2].Name != "rate-8" || scenarios[2].ReportRate != 8 {
			t.Errorf("unexpected scenario: %+v", scenarios[2])
		}
		if err := scenarios[0].Validate(); err != nil {
			t.Errorf("generated scenario invalid: %v", err)
		}
	})

	t.Run("inline", func(t *testing.T) {
		scenarios, err := evaluator.GenerateScenarios(ctx, Generator{
			Script: script,
			Input:  map[string]interface{}{"rates": []interface{}{1}},
		}, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(scenarios) != 1 {
			t.Errorf("expected 1 scenario, got %d", len(scenarios))
		}
	})

	errorCases := []struct {
		name string
		gen  Generator
	}{
		{name: "no script", gen: Generator{Name: "empty"}},
		{name: "script and file", gen: Generator{Script: "scenarios = []", File: "sweep.star"}},
		{name: "missing file", gen: Generator{File: "missing.star"}},
		{name: "no scenarios global", gen: Generator{Script: "other = 1"}},
		{name: "wrong shape", gen: Generator{Script: "scenarios = 5"}},
		{name: "bad tactic", gen: Generator{Script: `scenarios = [{"name": "x", "report_size": 1, "report_rate": 1, "tactic": "flank"}]`}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := evaluator.GenerateScenarios(ctx, tt.gen, dir); err == nil {
				t.Error("expected error, got none")
			}
		})
	}
}

func TestStarlarkEvaluator_GenerateDiurnal(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	rates, err := evaluator.GenerateDiurnal(ctx, `diurnal = diurnal_curve(20, 4, peak_hour = 14)`, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rates) != 24 {
		t.Fatalf("expected 24 rates, got %d", len(rates))
	}
	if math.Abs(rates[14]-20) > 1e-9 {
		t.Errorf("expected peak 20 at hour 14, got %v", rates[14])
	}
	if math.Abs(rates[2]-4) > 1e-9 {
		t.Errorf("expected trough 4 at hour 2, got %v", rates[2])
	}
	if math.Abs(rates[13]-rates[15]) > 1e-9 {
		t.Errorf("expected symmetry around the peak, got %v and %v", rates[13], rates[15])
	}

	flat, err := evaluator.GenerateDiurnal(ctx, `diurnal = [base] * 24`, map[string]interface{}{"base": 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flat[23] != 3 {
		t.Errorf("expected integer input to convert, got %v", flat[23])
	}

	errorCases := map[string]string{
		"missing":        `other = 1`,
		"short":          `diurnal = [1, 2, 3]`,
		"negative":       `diurnal = [-1] * 24`,
		"not numbers":    `diurnal = ["a"] * 24`,
		"peak below low": `diurnal = diurnal_curve(2, 4)`,
	}
	for name, script := range errorCases {
		t.Run(name, func(t *testing.T) {
			if _, err := evaluator.GenerateDiurnal(ctx, script, nil); err == nil {
				t.Error("expected error, got none")
			}
		})
	}
}
