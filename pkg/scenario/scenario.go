// Package scenario runs containment simulations described in field units
// and reports their outcomes in feet, square feet and acres.
package scenario

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/firecontain/pkg/contain"
	"github.com/openfroyo/firecontain/pkg/units"
)

// minReportRate is the smallest report spread rate the simulator accepts (ch/h).
const minReportRate = 1e-5

// Units names the units a Scenario is expressed in. Empty fields take the
// defaults of DefaultUnits.
type Units struct {
	Length string `json:"length,omitempty" yaml:"length,omitempty"`
	Area   string `json:"area,omitempty" yaml:"area,omitempty"`
	Speed  string `json:"speed,omitempty" yaml:"speed,omitempty"`
	Time   string `json:"time,omitempty" yaml:"time,omitempty"`
}

// DefaultUnits are feet, acres, feet per minute and hours.
func DefaultUnits() Units {
	return Units{
		Length: string(units.Feet),
		Area:   string(units.Acres),
		Speed:  string(units.FeetPerMinute),
		Time:   string(units.Hours),
	}
}

type resolvedUnits struct {
	length units.LengthUnit
	area   units.AreaUnit
	speed  units.SpeedUnit
	time   units.TimeUnit
}

func (u Units) resolve() (resolvedUnits, error) {
	def := DefaultUnits()
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}

	var (
		r   resolvedUnits
		err error
	)
	if r.length, err = units.ParseLength(pick(u.Length, def.Length)); err != nil {
		return r, err
	}
	if r.area, err = units.ParseArea(pick(u.Area, def.Area)); err != nil {
		return r, err
	}
	if r.speed, err = units.ParseSpeed(pick(u.Speed, def.Speed)); err != nil {
		return r, err
	}
	if r.time, err = units.ParseTime(pick(u.Time, def.Time)); err != nil {
		return r, err
	}
	return r, nil
}

// ResourceSpec is one firefighting resource in scenario units.
type ResourceSpec struct {
	Description string `json:"description" yaml:"description" validate:"required"`

	// Arrival is the time since report at which the resource starts building line.
	Arrival float64 `json:"arrival" yaml:"arrival" validate:"gte=0"`

	// Duration is the shift length; zero means eight hours.
	Duration float64 `json:"duration,omitempty" yaml:"duration,omitempty" validate:"gte=0"`

	// Production is the fireline production rate.
	Production float64 `json:"production" yaml:"production" validate:"gte=0"`

	BaseCost float64 `json:"base_cost,omitempty" yaml:"base_cost,omitempty" validate:"gte=0"`
	HourCost float64 `json:"hour_cost,omitempty" yaml:"hour_cost,omitempty" validate:"gte=0"`

	// Side is left, right or both. Empty means left.
	Side contain.Side `json:"side,omitempty" yaml:"side,omitempty" validate:"omitempty,oneof=left right both neither"`
}

// Scenario is a complete containment problem in caller units.
type Scenario struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Units       Units  `json:"units,omitempty" yaml:"units,omitempty"`

	// ReportSize is the fire area at report, in area units.
	ReportSize float64 `json:"report_size" yaml:"report_size" validate:"gte=0"`

	// ReportRate is the head spread rate at report, in speed units.
	ReportRate float64 `json:"report_rate" yaml:"report_rate" validate:"gte=0"`

	// LWRatio is the fire length-to-width ratio; zero means 1.
	LWRatio float64 `json:"lw_ratio,omitempty" yaml:"lw_ratio,omitempty" validate:"gte=0"`

	// Diurnal optionally gives the head spread rate for each hour of the day,
	// in speed units.
	Diurnal []float64 `json:"diurnal,omitempty" yaml:"diurnal,omitempty" validate:"omitempty,len=24,dive,gte=0"`

	// StartMinute is the minute of day at report, used with Diurnal.
	StartMinute float64 `json:"start_minute,omitempty" yaml:"start_minute,omitempty" validate:"gte=0,lt=1440"`

	Tactic contain.Tactic `json:"tactic,omitempty" yaml:"tactic,omitempty" validate:"omitempty,oneof=head rear"`

	// AttackDistance is the parallel attack offset, in length units.
	AttackDistance float64 `json:"attack_distance,omitempty" yaml:"attack_distance,omitempty" validate:"gte=0"`

	// Retry delays an overrun attack to the next production change. Nil means true.
	Retry *bool `json:"retry,omitempty" yaml:"retry,omitempty"`

	MinSteps  int `json:"min_steps,omitempty" yaml:"min_steps,omitempty" validate:"gte=0"`
	MaxSteps  int `json:"max_steps,omitempty" yaml:"max_steps,omitempty" validate:"gte=0"`
	MaxPasses int `json:"max_passes,omitempty" yaml:"max_passes,omitempty" validate:"gte=0"`

	// MaxFireSize is the escape size in area units; zero means 1000 acres.
	MaxFireSize float64 `json:"max_fire_size,omitempty" yaml:"max_fire_size,omitempty" validate:"gte=0"`

	// MaxFireTime is the escape time in time units; zero means 18 hours.
	MaxFireTime float64 `json:"max_fire_time,omitempty" yaml:"max_fire_time,omitempty" validate:"gte=0"`

	Resources []ResourceSpec `json:"resources" yaml:"resources" validate:"dive"`

	// Anchor places the ignition point on the globe for exports.
	Anchor *Anchor `json:"anchor,omitempty" yaml:"anchor,omitempty"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field ranges and units.
func (s *Scenario) Validate() error {
	if err := validatorInstance().Struct(s); err != nil {
		return contain.NewInvalidInputError(formatValidationError(err), err).
			WithOp("scenario.validate").
			WithDetail("scenario", s.Name)
	}
	if _, err := s.Units.resolve(); err != nil {
		return contain.NewInvalidInputError(err.Error(), err).
			WithOp("scenario.validate").
			WithDetail("scenario", s.Name)
	}
	if s.Anchor != nil {
		if err := s.Anchor.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func formatValidationError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// Model is a scenario converted to simulator units.
type Model struct {
	Config contain.Config
	Force  *contain.Force

	// ReportSizeSqFt is the reported area in square feet.
	ReportSizeSqFt float64
}

// Normalize validates the scenario and converts it to simulator units:
// acres, chains, chains per hour and minutes.
func (s *Scenario) Normalize() (*Model, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	u, _ := s.Units.resolve()

	toChainsPerHour := func(v float64) float64 {
		return units.FeetPerMinuteToChainsPerHour(u.speed.ToFeetPerMinute(v))
	}

	force := &contain.Force{}
	for i, r := range s.Resources {
		err := force.AddResource(
			r.Description,
			u.time.ToMinutes(r.Arrival),
			toChainsPerHour(r.Production),
			u.time.ToMinutes(r.Duration),
			r.Side,
			r.BaseCost,
			r.HourCost,
		)
		if err != nil {
			return nil, fmt.Errorf("resource %d (%s): %w", i, r.Description, err)
		}
	}

	sizeSqFt := u.area.ToSquareFeet(s.ReportSize)
	cfg := contain.DefaultConfig()
	cfg.Report = contain.Report{
		Size:        units.SquareFeetToAcres(sizeSqFt),
		Rate:        math.Max(toChainsPerHour(s.ReportRate), minReportRate),
		LWRatio:     math.Max(s.LWRatio, 1),
		StartMinute: s.StartMinute,
	}
	if len(s.Diurnal) > 0 {
		cfg.Report.Diurnal = make([]float64, len(s.Diurnal))
		for i, v := range s.Diurnal {
			cfg.Report.Diurnal[i] = math.Max(toChainsPerHour(v), minReportRate)
		}
	}
	if s.Tactic != "" {
		cfg.Tactic = s.Tactic
	}
	cfg.AttackDistance = units.FeetToChains(u.length.ToFeet(s.AttackDistance))
	if s.Retry != nil {
		cfg.Retry = *s.Retry
	}
	if s.MinSteps > 0 {
		cfg.MinSteps = s.MinSteps
	}
	if s.MaxSteps > 0 {
		cfg.MaxSteps = s.MaxSteps
	}
	cfg.MaxPasses = s.MaxPasses
	if s.MaxFireSize > 0 {
		cfg.MaxFireSize = units.SquareFeetToAcres(u.area.ToSquareFeet(s.MaxFireSize))
	}
	if s.MaxFireTime > 0 {
		cfg.MaxFireTime = u.time.ToMinutes(s.MaxFireTime)
	}

	return &Model{Config: cfg, Force: force, ReportSizeSqFt: sizeSqFt}, nil
}
