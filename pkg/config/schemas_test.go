package config

import (
	"context"
	"testing"

	"github.com/openfroyo/firecontain/pkg/scenario"
)

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	registry := NewSchemaRegistry()

	want := []string{"anchor", "resource", "roster", "scenario", "units"}
	got := registry.ListSchemas()
	if len(got) != len(want) {
		t.Fatalf("expected schemas %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("schema[%d] = %s, want %s", i, got[i], want[i])
		}
		if _, ok := registry.GetSchema(want[i]); !ok {
			t.Errorf("schema %s not found", want[i])
		}
	}
}

func TestSchemaRegistry_ValidateScenario(t *testing.T) {
	registry := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name     string
		scenario *scenario.Scenario
		wantErr  bool
	}{
		{
			name: "valid",
			scenario: &scenario.Scenario{
				Name:       "ridge",
				ReportSize: 1,
				ReportRate: 5,
				Resources: []scenario.ResourceSpec{
					{Description: "Engine 1", Production: 66, Duration: 8},
				},
			},
		},
		{
			name:     "no resources",
			scenario: &scenario.Scenario{Name: "bare", ReportSize: 1, ReportRate: 5},
		},
		{
			name:     "negative size",
			scenario: &scenario.Scenario{Name: "bad", ReportSize: -1, ReportRate: 5},
			wantErr:  true,
		},
		{
			name: "unnamed resource",
			scenario: &scenario.Scenario{
				Name:       "bad",
				ReportSize: 1,
				ReportRate: 5,
				Resources:  []scenario.ResourceSpec{{Production: 66}},
			},
			wantErr: true,
		},
		{
			name: "anchor out of range",
			scenario: &scenario.Scenario{
				Name:       "bad",
				ReportSize: 1,
				ReportRate: 5,
				Anchor:     &scenario.Anchor{Lon: 200, Lat: 45},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.ValidateScenario(ctx, tt.scenario)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScenario() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_ValidateRoster(t *testing.T) {
	registry := NewSchemaRegistry()
	ctx := context.Background()

	valid := []scenario.ResourceSpec{
		{Description: "Engine 1", Production: 66, Side: "right"},
		{Description: "Dozer", Production: 90, Arrival: 1},
	}
	if err := registry.ValidateRoster(ctx, valid); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	invalid := []scenario.ResourceSpec{
		{Description: "Engine 1", Production: -66},
	}
	if err := registry.ValidateRoster(ctx, invalid); err == nil {
		t.Error("expected error for negative production")
	}
}

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	registry := NewSchemaRegistry()
	ctx := context.Background()

	schema := `
#Crew: {
	name: string
	size: int & >=1
}
`
	if err := registry.RegisterSchema("crew", schema); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}
	if _, ok := registry.GetSchema("crew"); !ok {
		t.Fatal("schema not found after registration")
	}

	tests := []struct {
		name    string
		data    map[string]interface{}
		wantErr bool
	}{
		{name: "valid", data: map[string]interface{}{"name": "hotshot", "size": 20}},
		{name: "too small", data: map[string]interface{}{"name": "hotshot", "size": 0}, wantErr: true},
		{name: "missing name", data: map[string]interface{}{"size": 20}, wantErr: true},
		{name: "closed", data: map[string]interface{}{"name": "hotshot", "size": 20, "boss": "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.ValidateAgainstSchema(ctx, "crew", tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAgainstSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_InvalidSchema(t *testing.T) {
	registry := NewSchemaRegistry()

	if err := registry.RegisterSchema("broken", `#Crew: { name: }`); err == nil {
		t.Error("expected error for invalid schema")
	}
	if err := registry.ValidateAgainstSchema(context.Background(), "missing", map[string]interface{}{}); err == nil {
		t.Error("expected error for unknown schema")
	}
}
