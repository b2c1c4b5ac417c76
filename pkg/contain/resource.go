package contain

import (
	"fmt"
	"math"
)

const (
	// DefaultDuration is the shift length of a resource when none is given (min).
	DefaultDuration = 480.0

	// NoArrival is returned by FirstArrival when no resource covers a flank.
	NoArrival = 99999999.0

	// arrivalTolerance widens the lower bound of a resource's working window (min).
	arrivalTolerance = 0.001
)

// Resource is one suppression asset: an engine crew, a dozer, a helicopter.
// Times are minutes since the fire was reported; production is chains per
// hour of holdable line for both flanks combined.
type Resource struct {
	// Description identifies the resource, e.g. "Engine 12".
	Description string `json:"description" yaml:"description"`

	// Arrival is when the resource starts building line (min since report).
	Arrival float64 `json:"arrival" yaml:"arrival"`

	// Duration is how long the resource keeps working after arrival (min).
	Duration float64 `json:"duration" yaml:"duration"`

	// Production is the full line production rate (ch/h).
	Production float64 `json:"production" yaml:"production"`

	// BaseCost is the fixed cost charged once the resource arrives.
	BaseCost float64 `json:"base_cost" yaml:"base_cost"`

	// HourCost is the cost per hour worked.
	HourCost float64 `json:"hour_cost" yaml:"hour_cost"`

	// Side is the flank the resource is assigned to.
	Side Side `json:"side" yaml:"side"`
}

// NewResource builds and validates a resource. A zero duration becomes
// DefaultDuration and an empty side becomes SideLeft.
func NewResource(description string, arrival, production, duration float64, side Side, baseCost, hourCost float64) (Resource, error) {
	r := Resource{
		Description: description,
		Arrival:     arrival,
		Duration:    duration,
		Production:  production,
		BaseCost:    baseCost,
		HourCost:    hourCost,
		Side:        side,
	}
	r.applyDefaults()
	if err := r.Validate(); err != nil {
		return Resource{}, err
	}
	return r, nil
}

func (r *Resource) applyDefaults() {
	if r.Duration == 0 {
		r.Duration = DefaultDuration
	}
	if r.Side == "" {
		r.Side = SideLeft
	}
}

// Validate checks the resource fields.
func (r Resource) Validate() error {
	switch {
	case math.IsNaN(r.Arrival) || r.Arrival < 0:
		return &Error{
			Class:   ErrorClassInvalidInput,
			Code:    ErrCodeNegativeArrival,
			Message: fmt.Sprintf("resource %q has negative arrival time %g", r.Description, r.Arrival),
		}
	case math.IsNaN(r.Duration) || r.Duration < 0:
		return NewInvalidInputError(fmt.Sprintf("resource %q has negative duration %g", r.Description, r.Duration), nil)
	case math.IsNaN(r.Production) || r.Production < 0:
		return NewInvalidInputError(fmt.Sprintf("resource %q has negative production rate %g", r.Description, r.Production), nil)
	case r.BaseCost < 0 || r.HourCost < 0:
		return NewInvalidInputError(fmt.Sprintf("resource %q has negative cost", r.Description), nil)
	}
	return r.Side.Validate()
}

// Done returns the time the resource stops working (min since report).
func (r Resource) Done() float64 {
	return r.Arrival + r.Duration
}

// WorkingAt returns true if the resource is building line at minute t.
func (r Resource) WorkingAt(t float64) bool {
	return r.Arrival <= t+arrivalTolerance && r.Done() >= t
}

// Cost returns what the resource costs if the fire is resolved at finalTime.
func (r Resource) Cost(finalTime float64) float64 {
	if finalTime <= r.Arrival {
		return 0
	}
	worked := math.Min(finalTime-r.Arrival, r.Duration)
	return r.BaseCost + r.HourCost*worked/60
}
