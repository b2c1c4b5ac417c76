package scenario

import (
	"context"
	"math"

	"github.com/openfroyo/firecontain/pkg/contain"
	"github.com/openfroyo/firecontain/pkg/firesize"
	"github.com/openfroyo/firecontain/pkg/units"
)

// Outcome reports a simulation in feet, square feet, acres and minutes.
type Outcome struct {
	Scenario string         `json:"scenario" yaml:"scenario"`
	Status   contain.Status `json:"status" yaml:"status"`

	Cost float64 `json:"cost" yaml:"cost"`

	// FirelineLength is the line built on both flanks (ft).
	FirelineLength float64 `json:"fireline_length_ft" yaml:"fireline_length_ft"`

	// PerimeterAtContainment is the contained fire perimeter (ft).
	PerimeterAtContainment float64 `json:"perimeter_at_containment_ft" yaml:"perimeter_at_containment_ft"`

	// FireSize is the final burned area.
	FireSize      float64 `json:"fire_size_sqft" yaml:"fire_size_sqft"`
	FireSizeAcres float64 `json:"fire_size_ac" yaml:"fire_size_ac"`

	// ContainmentArea is the area enclosed by the fireline.
	ContainmentArea      float64 `json:"containment_area_sqft" yaml:"containment_area_sqft"`
	ContainmentAreaAcres float64 `json:"containment_area_ac" yaml:"containment_area_ac"`

	// Time is the minutes since report at which the run resolved.
	Time float64 `json:"time_min" yaml:"time_min"`

	ResourcesUsed int `json:"resources_used" yaml:"resources_used"`
	Passes        int `json:"passes" yaml:"passes"`

	// EffectiveWindSpeed is the wind speed implied by the length-to-width ratio (mi/h).
	EffectiveWindSpeed float64 `json:"effective_wind_speed_mph" yaml:"effective_wind_speed_mph"`

	// PerimeterAtInitialAttack and FireSizeAtInitialAttack describe the free
	// burning fire when the first resource arrives (ft, sq ft).
	PerimeterAtInitialAttack float64 `json:"perimeter_at_initial_attack_ft" yaml:"perimeter_at_initial_attack_ft"`
	FireSizeAtInitialAttack  float64 `json:"fire_size_at_initial_attack_sqft" yaml:"fire_size_at_initial_attack_sqft"`

	// Result is the raw simulator result, nil for unreported fires.
	Result *contain.Result `json:"-" yaml:"-"`
}

// Contained reports whether the fire was contained.
func (o *Outcome) Contained() bool {
	return o.Status == contain.StatusContained
}

// Run simulates s. A scenario without resources or with a zero report size
// is not simulated and yields an Unreported outcome.
func Run(ctx context.Context, s *Scenario, opts ...contain.Option) (*Outcome, error) {
	m, err := s.Normalize()
	if err != nil {
		return nil, err
	}
	return m.Run(ctx, s.Name, opts...)
}

// Run simulates the model and converts the result.
func (m *Model) Run(ctx context.Context, name string, opts ...contain.Option) (*Outcome, error) {
	out := &Outcome{Scenario: name, Status: contain.StatusUnreported}
	if m.Force.Len() == 0 || m.Config.Report.Size == 0 {
		return out, nil
	}

	res, err := contain.Simulate(ctx, m.Config, m.Force, opts...)
	if err != nil {
		return nil, err
	}

	out.Result = res
	out.Status = res.Status
	out.Cost = res.Cost
	out.FirelineLength = units.ChainsToFeet(res.Line)
	out.PerimeterAtContainment = units.ChainsToFeet(res.Perimeter)
	out.FireSizeAcres = res.Size
	out.FireSize = units.AcresToSquareFeet(res.Size)
	out.ContainmentAreaAcres = res.Sweep
	out.ContainmentArea = units.AcresToSquareFeet(res.Sweep)
	out.Time = res.Time
	out.ResourcesUsed = res.Used
	out.Passes = res.Passes

	m.initialAttack(out)
	return out, nil
}

// initialAttack grows the reported fire as a free-burning ellipse until the
// first resource arrives.
func (m *Model) initialAttack(out *Outcome) {
	lw := m.Config.Report.LWRatio
	out.EffectiveWindSpeed = firesize.EffectiveWindSpeed(lw)

	rate := units.ChainsPerHourToFeetPerMinute(m.Config.Report.Rate)
	fire := firesize.FromWindSpeed(rate, out.EffectiveWindSpeed)

	elapsed := fire.TimeToSize(m.ReportSizeSqFt)
	if elapsed == 0 {
		return
	}
	total := elapsed + math.Max(m.Force.FirstArrival(contain.SideLeft), 0)
	out.PerimeterAtInitialAttack = fire.Perimeter(total)
	out.FireSizeAtInitialAttack = fire.Area(total)
}
