package contain

import (
	"errors"
	"math"
	"testing"
)

func mustForce(t *testing.T, resources ...Resource) *Force {
	t.Helper()
	f, err := NewForce(resources...)
	if err != nil {
		t.Fatalf("NewForce() error = %v", err)
	}
	return f
}

func TestNewResourceDefaults(t *testing.T) {
	r, err := NewResource("Engine 1", 5, 20, 0, "", 100, 10)
	if err != nil {
		t.Fatalf("NewResource() error = %v", err)
	}
	if r.Duration != DefaultDuration {
		t.Errorf("Duration = %v, want %v", r.Duration, DefaultDuration)
	}
	if r.Side != SideLeft {
		t.Errorf("Side = %v, want %v", r.Side, SideLeft)
	}
}

func TestNewResourceValidation(t *testing.T) {
	tests := []struct {
		name       string
		arrival    float64
		production float64
		duration   float64
		side       Side
		wantErr    error
	}{
		{name: "negative arrival", arrival: -1, production: 10, duration: 60, side: SideLeft, wantErr: ErrNegativeArrival},
		{name: "NaN arrival", arrival: math.NaN(), production: 10, duration: 60, side: SideLeft, wantErr: ErrNegativeArrival},
		{name: "negative production", arrival: 0, production: -10, duration: 60, side: SideLeft},
		{name: "negative duration", arrival: 0, production: 10, duration: -60, side: SideLeft},
		{name: "bad side", arrival: 0, production: 10, duration: 60, side: Side("middle")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResource("r", tt.arrival, tt.production, tt.duration, tt.side, 0, 0)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !IsInvalidInput(err) {
				t.Errorf("IsInvalidInput(%v) = false", err)
			}
		})
	}
}

func TestForceFirstArrival(t *testing.T) {
	f := mustForce(t,
		Resource{Description: "right", Arrival: 5, Production: 10, Side: SideRight},
		Resource{Description: "both", Arrival: 30, Production: 10, Side: SideBoth},
		Resource{Description: "left", Arrival: 45, Production: 10, Side: SideLeft},
	)

	if got := f.FirstArrival(SideLeft); got != 30 {
		t.Errorf("FirstArrival(left) = %v, want 30", got)
	}
	if got := f.FirstArrival(SideRight); got != 5 {
		t.Errorf("FirstArrival(right) = %v, want 5", got)
	}

	empty := &Force{}
	if got := empty.FirstArrival(SideLeft); got != NoArrival {
		t.Errorf("empty FirstArrival = %v, want NoArrival", got)
	}
}

func TestForceExhausted(t *testing.T) {
	f := mustForce(t,
		Resource{Description: "a", Arrival: 0, Duration: 120, Production: 10, Side: SideLeft},
		Resource{Description: "b", Arrival: 60, Duration: 120, Production: 10, Side: SideBoth},
		Resource{Description: "c", Arrival: 0, Duration: 600, Production: 10, Side: SideRight},
	)
	if got := f.Exhausted(SideLeft); got != 180 {
		t.Errorf("Exhausted(left) = %v, want 180", got)
	}
	if got := (&Force{}).Exhausted(SideLeft); got != 0 {
		t.Errorf("empty Exhausted = %v, want 0", got)
	}
}

func TestForceProductionRate(t *testing.T) {
	f := mustForce(t,
		Resource{Description: "crew", Arrival: 10, Duration: 60, Production: 20, Side: SideLeft},
		Resource{Description: "dozer", Arrival: 30, Duration: 60, Production: 40, Side: SideBoth},
		Resource{Description: "other", Arrival: 0, Duration: 600, Production: 100, Side: SideRight},
	)

	tests := []struct {
		t    float64
		want float64
	}{
		{t: 0, want: 0},
		{t: 9.9995, want: 10},
		{t: 10, want: 10},
		{t: 30, want: 30},
		{t: 70, want: 30},
		{t: 70.5, want: 20},
		{t: 91, want: 0},
	}
	for _, tt := range tests {
		if got := f.ProductionRate(tt.t, SideLeft); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ProductionRate(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestForceQueriesAreIdempotent(t *testing.T) {
	f := mustForce(t,
		Resource{Description: "crew", Arrival: 10, Duration: 60, Production: 20, Side: SideLeft},
	)
	first := f.ProductionRate(20, SideLeft)
	arrival := f.FirstArrival(SideLeft)
	for i := 0; i < 10; i++ {
		if got := f.ProductionRate(20, SideLeft); got != first {
			t.Fatalf("ProductionRate changed between calls: %v != %v", got, first)
		}
		if got := f.FirstArrival(SideLeft); got != arrival {
			t.Fatalf("FirstArrival changed between calls: %v != %v", got, arrival)
		}
	}
}

func TestForceNextArrival(t *testing.T) {
	f := mustForce(t,
		Resource{Description: "crew", Arrival: 0, Duration: 120, Production: 20, Side: SideLeft},
		Resource{Description: "dozer", Arrival: 45, Duration: 120, Production: 40, Side: SideLeft},
	)

	tests := []struct {
		name  string
		after float64
		until float64
		want  float64
	}{
		{name: "next arrival", after: 0, until: 200, want: 45},
		{name: "shift end", after: 45, until: 200, want: 121},
		{name: "no change before until", after: 0, until: 40, want: 0},
		{name: "fractional start", after: 44.5, until: 200, want: 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.NextArrival(tt.after, tt.until, SideLeft); got != tt.want {
				t.Errorf("NextArrival(%v, %v) = %v, want %v", tt.after, tt.until, got, tt.want)
			}
		})
	}
}

func TestResourceCost(t *testing.T) {
	r := Resource{Arrival: 60, Duration: 120, BaseCost: 500, HourCost: 60}

	tests := []struct {
		name      string
		finalTime float64
		want      float64
	}{
		{name: "before arrival", finalTime: 30, want: 0},
		{name: "at arrival", finalTime: 60, want: 0},
		{name: "working", finalTime: 90, want: 530},
		{name: "past shift", finalTime: 600, want: 620},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Cost(tt.finalTime); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cost(%v) = %v, want %v", tt.finalTime, got, tt.want)
			}
		})
	}
}

func TestForceCostAndUsed(t *testing.T) {
	f := mustForce(t,
		Resource{Description: "a", Arrival: 0, Duration: 480, BaseCost: 100, HourCost: 60, Side: SideLeft},
		Resource{Description: "b", Arrival: 120, Duration: 480, BaseCost: 200, HourCost: 60, Side: SideLeft},
	)
	if got := f.Used(60); got != 1 {
		t.Errorf("Used(60) = %d, want 1", got)
	}
	if got := f.Cost(60); got != 160 {
		t.Errorf("Cost(60) = %v, want 160", got)
	}
	if got := f.Used(180); got != 2 {
		t.Errorf("Used(180) = %d, want 2", got)
	}
	if got := f.Cost(180); got != 100+180+200+60 {
		t.Errorf("Cost(180) = %v, want 540", got)
	}
}

func TestForceRemove(t *testing.T) {
	f := mustForce(t,
		Resource{Description: "engine", Arrival: 0, Production: 10},
		Resource{Description: "dozer", Arrival: 10, Production: 30},
		Resource{Description: "engine", Arrival: 20, Production: 10},
		Resource{Description: "crew", Arrival: 30, Production: 15},
	)

	if !f.RemoveFirst("engine") {
		t.Fatal("RemoveFirst(engine) = false")
	}
	if f.Len() != 3 || f.Resource(0).Description != "dozer" {
		t.Fatalf("unexpected resources after RemoveFirst: %+v", f.Resources())
	}
	if f.RemoveFirst("helicopter") {
		t.Error("RemoveFirst(helicopter) = true, want false")
	}

	if err := f.AddResource("engine", 40, 10, 0, SideLeft, 0, 0); err != nil {
		t.Fatalf("AddResource() error = %v", err)
	}
	if n := f.RemoveAll("engine"); n != 2 {
		t.Errorf("RemoveAll(engine) = %d, want 2", n)
	}

	if err := f.RemoveAt(5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("RemoveAt(5) error = %v, want ErrIndexOutOfRange", err)
	}
	if err := f.RemoveAt(0); err != nil {
		t.Fatalf("RemoveAt(0) error = %v", err)
	}
	if f.Len() != 1 || f.Resource(0).Description != "crew" {
		t.Errorf("unexpected resources after RemoveAt: %+v", f.Resources())
	}
}
