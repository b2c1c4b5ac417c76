package config

import (
	"path/filepath"
	"testing"

	"github.com/openfroyo/firecontain/pkg/contain"
)

func TestParseRoster(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{
			name: "bare list",
			content: `
- description: Engine 1
  production: 66
- description: Engine 2
  production: 66
  arrival: 0.5
`,
			want: 2,
		},
		{
			name: "resources key",
			content: `
resources:
  - description: Dozer
    production: 90
    side: right
`,
			want: 1,
		},
		{name: "empty", content: "", wantErr: true},
		{name: "empty list", content: "resources: []", wantErr: true},
		{name: "scalar", content: "engines", wantErr: true},
		{
			name: "missing description",
			content: `
- production: 66
`,
			wantErr: true,
		},
		{
			name: "unknown side",
			content: `
- description: Engine 1
  production: 66
  side: middle
`,
			wantErr: true,
		},
		{
			name: "negative production",
			content: `
- description: Engine 1
  production: -1
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources, err := ParseRoster([]byte(tt.content))
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", resources)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(resources) != tt.want {
				t.Errorf("expected %d resources, got %d", tt.want, len(resources))
			}
		})
	}
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crews.yaml")
	writeFile(t, path, `
resources:
  - description: Hotshots
    production: 40
    duration: 14
    side: both
`)

	resources, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resources) != 1 {
		t.Fatalf("expected 1 resource, got %d", len(resources))
	}
	r := resources[0]
	if r.Description != "Hotshots" || r.Duration != 14 || r.Side != contain.SideBoth {
		t.Errorf("unexpected resource: %+v", r)
	}

	if _, err := LoadRoster(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
