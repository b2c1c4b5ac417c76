package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/firecontain/pkg/contain"
)

func TestCUEParser_ParseInline(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tests := []struct {
		name      string
		content   string
		wantErr   bool
		errCount  int
		checkFunc func(*testing.T, *ParsedConfig)
	}{
		{
			name: "keyed scenario",
			content: `
scenarios: {
	ridge: {
		report_size: 1
		report_rate: 5
		lw_ratio:    3
		tactic:      "rear"
		resources: [
			{description: "Engine 1", production: 66, duration: 8},
		]
	}
}
`,
			checkFunc: func(t *testing.T, pc *ParsedConfig) {
				if len(pc.Scenarios) != 1 {
					t.Fatalf("expected 1 scenario, got %d", len(pc.Scenarios))
				}
				s := pc.Scenarios[0]
				if s.Name != "ridge" {
					t.Errorf("expected name from key 'ridge', got %q", s.Name)
				}
				if s.Tactic != contain.TacticRear {
					t.Errorf("expected rear tactic, got %q", s.Tactic)
				}
				if len(s.Resources) != 1 || s.Resources[0].Production != 66 {
					t.Errorf("unexpected resources: %+v", s.Resources)
				}
			},
		},
		{
			name: "scenario list keeps order",
			content: `
scenarios: [
	{name: "b", report_size: 1, report_rate: 5},
	{name: "a", report_size: 2, report_rate: 5},
]
`,
			checkFunc: func(t *testing.T, pc *ParsedConfig) {
				if len(pc.Scenarios) != 2 {
					t.Fatalf("expected 2 scenarios, got %d", len(pc.Scenarios))
				}
				if pc.Scenarios[0].Name != "b" || pc.Scenarios[1].Name != "a" {
					t.Errorf("unexpected order: %s, %s", pc.Scenarios[0].Name, pc.Scenarios[1].Name)
				}
			},
		},
		{
			name: "roster resources come first",
			content: `
rosters: engines: [
	{description: "Engine 1", production: 66, duration: 8},
	{description: "Engine 2", production: 66, arrival: 0.5, duration: 8},
]

scenarios: ridge: {
	report_size: 1
	report_rate: 5
	roster:      "engines"
	resources: [{description: "Dozer", production: 90}]
}
`,
			checkFunc: func(t *testing.T, pc *ParsedConfig) {
				if len(pc.Rosters["engines"]) != 2 {
					t.Errorf("expected roster of 2, got %d", len(pc.Rosters["engines"]))
				}
				s, ok := pc.Scenario("ridge")
				if !ok {
					t.Fatal("scenario ridge not found")
				}
				if len(s.Resources) != 3 {
					t.Fatalf("expected 3 resources, got %d", len(s.Resources))
				}
				if s.Resources[0].Description != "Engine 1" || s.Resources[2].Description != "Dozer" {
					t.Errorf("unexpected resource order: %+v", s.Resources)
				}
			},
		},
		{
			name: "diurnal script",
			content: `
scenarios: ridge: {
	report_size:    1
	report_rate:    5
	diurnal_script: "diurnal = diurnal_curve(20, 5)"
}
`,
			checkFunc: func(t *testing.T, pc *ParsedConfig) {
				s := pc.Scenarios[0]
				if len(s.Diurnal) != 24 {
					t.Fatalf("expected 24 diurnal entries, got %d", len(s.Diurnal))
				}
				if s.Diurnal[15] != 20 {
					t.Errorf("expected peak 20 at hour 15, got %v", s.Diurnal[15])
				}
			},
		},
		{
			name: "generator",
			content: `
generators: [{
	name:   "sweep"
	script: "scenarios = [{\"name\": \"size-%d\" % int(s), \"report_size\": s, \"report_rate\": 5, \"resources\": [resource(\"Engine\", 66, duration = 8)]} for s in sizes]"
	input: sizes: [1, 2, 4]
}]
`,
			checkFunc: func(t *testing.T, pc *ParsedConfig) {
				if len(pc.Scenarios) != 3 {
					t.Fatalf("expected 3 generated scenarios, got %d", len(pc.Scenarios))
				}
				if pc.Scenarios[2].Name != "size-4" || pc.Scenarios[2].ReportSize != 4 {
					t.Errorf("unexpected scenario: %+v", pc.Scenarios[2])
				}
				if pc.Scenarios[0].Resources[0].Side != contain.SideLeft {
					t.Errorf("expected default side left, got %q", pc.Scenarios[0].Resources[0].Side)
				}
			},
		},
		{
			name: "invalid CUE syntax",
			content: `
scenarios: {
	ridge: {
		report_size: 1
		invalid syntax here
	}
}
`,
			wantErr: true,
		},
		{
			name: "negative report rate",
			content: `
scenarios: ridge: {
	report_size: 1
	report_rate: -5
}
`,
			wantErr: true,
		},
		{
			name: "unknown field",
			content: `
scenarios: ridge: {
	report_size: 1
	report_rate: 5
	wind:        12
}
`,
			wantErr: true,
		},
		{
			name: "unknown tactic",
			content: `
scenarios: ridge: {
	report_size: 1
	report_rate: 5
	tactic:      "flank"
}
`,
			wantErr: true,
		},
		{
			name: "unknown roster",
			content: `
scenarios: ridge: {
	report_size: 1
	report_rate: 5
	roster:      "crews"
}
`,
			wantErr:  true,
			errCount: 1,
		},
		{
			name: "diurnal and diurnal script",
			content: `
scenarios: ridge: {
	report_size:    1
	report_rate:    5
	diurnal:        [1, 2]
	diurnal_script: "diurnal = diurnal_curve(20, 5)"
}
`,
			wantErr:  true,
			errCount: 1,
		},
		{
			name: "duplicate names",
			content: `
scenarios: [
	{name: "a", report_size: 1, report_rate: 5},
	{name: "a", report_size: 2, report_rate: 5},
]
`,
			wantErr:  true,
			errCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := parser.ParseInline(ctx, tt.content)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantErr {
				if !pc.HasErrors() {
					t.Errorf("expected validation errors, got none")
				}
				if tt.errCount > 0 && len(pc.Errors) != tt.errCount {
					t.Errorf("expected %d errors, got %d: %v", tt.errCount, len(pc.Errors), pc.Errors)
				}
				return
			}

			if len(pc.Errors) > 0 {
				t.Fatalf("unexpected validation errors: %v", pc.Errors)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, pc)
			}
		})
	}
}

func TestCUEParser_ParseFile(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "ridge.cue")

	content := `
scenarios: ridge: {
	report_size: 1
	report_rate: 5
	roster_file: "engines.roster"
	anchor: {lon: -120, lat: 45, heading: 90}
}
`
	roster := `
resources:
  - description: Engine 1
    production: 66
    duration: 8
    side: both
`
	writeFile(t, testFile, content)
	writeFile(t, filepath.Join(tmpDir, "engines.roster"), roster)

	pc, err := parser.Parse(ctx, []string{testFile})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pc.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", pc.Errors)
	}

	s, ok := pc.Scenario("ridge")
	if !ok {
		t.Fatal("scenario ridge not found")
	}
	if len(s.Resources) != 1 || s.Resources[0].Side != contain.SideBoth {
		t.Errorf("expected roster file resource on both sides, got %+v", s.Resources)
	}
	if s.Anchor == nil || s.Anchor.Heading != 90 {
		t.Errorf("expected anchor with heading 90, got %+v", s.Anchor)
	}
	if len(pc.SourceFiles) != 1 || pc.SourceFiles[0] != testFile {
		t.Errorf("unexpected source files: %v", pc.SourceFiles)
	}
}

func TestCUEParser_ParseYAML(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	testFile := filepath.Join(t.TempDir(), "grass.yaml")
	writeFile(t, testFile, `
scenarios:
  grass:
    report_size: 20
    report_rate: 22
    units:
      area: ac
      speed: ft/min
    resources:
      - description: Engine 1
        production: 66
        duration: 8
`)

	pc, err := parser.Parse(ctx, []string{testFile})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pc.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", pc.Errors)
	}
	if len(pc.Scenarios) != 1 || pc.Scenarios[0].ReportSize != 20 {
		t.Fatalf("unexpected scenarios: %+v", pc.Scenarios)
	}
}

func TestCUEParser_ParseDirectoryUnifies(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.cue"), `scenarios: ridge: {report_size: 1, report_rate: 5}`)
	writeFile(t, filepath.Join(dir, "b.cue"), `scenarios: ridge: resources: [{description: "Engine", production: 66}]`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a document")

	pc, err := parser.Parse(ctx, []string{dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pc.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", pc.Errors)
	}
	if len(pc.SourceFiles) != 2 {
		t.Errorf("expected 2 source files, got %v", pc.SourceFiles)
	}
	s, ok := pc.Scenario("ridge")
	if !ok {
		t.Fatal("scenario ridge not found")
	}
	if s.ReportRate != 5 || len(s.Resources) != 1 {
		t.Errorf("expected merged scenario, got %+v", s)
	}
}

func TestCUEParser_ConflictReportsPosition(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.cue"), "scenarios: ridge: {report_size: 1, report_rate: 5}\n")
	writeFile(t, filepath.Join(dir, "b.cue"), "scenarios: ridge: {report_size: 2, report_rate: 5}\n")

	pc, err := parser.Parse(ctx, []string{dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pc.HasErrors() {
		t.Fatal("expected conflict error")
	}
	if pc.Errors[0].Line == 0 || !strings.HasSuffix(pc.Errors[0].File, ".cue") {
		t.Errorf("expected a positioned error, got %+v", pc.Errors[0])
	}
}

func TestCUEParser_Evaluate(t *testing.T) {
	parser := NewCUEParser()
	ctx := context.Background()
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.cue")
	writeFile(t, valid, `scenarios: ridge: {report_size: 1, report_rate: 5}`)
	scenarios, err := parser.Evaluate(ctx, []string{valid})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scenarios) != 1 {
		t.Errorf("expected 1 scenario, got %d", len(scenarios))
	}

	invalid := filepath.Join(dir, "invalid.cue")
	writeFile(t, invalid, `scenarios: ridge: {report_size: 1}`)
	if _, err := parser.Evaluate(ctx, []string{invalid}); err == nil {
		t.Error("expected error for missing report_rate")
	}

	if _, err := parser.Evaluate(ctx, []string{filepath.Join(dir, "missing.cue")}); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := parser.Evaluate(ctx, nil); err == nil {
		t.Error("expected error for no sources")
	}
}

func TestFindDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.yaml"), "scenarios: {}")
	writeFile(t, filepath.Join(dir, "a.cue"), "")
	writeFile(t, filepath.Join(dir, "nested", "c.json"), "{}")
	writeFile(t, filepath.Join(dir, ".git", "d.cue"), "")
	writeFile(t, filepath.Join(dir, "readme.md"), "")

	files, err := FindDocuments(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		filepath.Join(dir, "a.cue"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.json"),
	}
	if len(files) != len(want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, files[i], want[i])
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
}
