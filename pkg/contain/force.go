package contain

import (
	"fmt"
	"math"
)

// rateTolerance is the smallest production change NextArrival reports (ch/h).
const rateTolerance = 0.001

// ForceReader is the read-only view of a Force used by Flank and Simulator.
// Every method must be free of side effects so that one force can be shared
// by concurrent simulations.
type ForceReader interface {
	// Len returns the number of resources.
	Len() int

	// Resource returns the resource at index i.
	Resource(i int) Resource

	// FirstArrival returns the earliest arrival on a flank, or NoArrival.
	FirstArrival(side Side) float64

	// Exhausted returns the last minute any resource on a flank is working.
	Exhausted(side Side) float64

	// NextArrival returns the next minute after `after` and before `until`
	// at which the flank production rate changes, or 0 if it never does.
	NextArrival(after, until float64, side Side) float64

	// ProductionRate returns the flank production rate at minute t (ch/h).
	ProductionRate(t float64, side Side) float64

	// ResourceCost returns the cost of resource i at finalTime.
	ResourceCost(i int, finalTime float64) float64
}

// Force is an ordered set of resources. The zero value is an empty force
// ready to use. A Force must not be mutated while simulations read it.
type Force struct {
	resources []Resource
}

var _ ForceReader = (*Force)(nil)

// NewForce creates a force from the given resources.
func NewForce(resources ...Resource) (*Force, error) {
	f := &Force{}
	for _, r := range resources {
		if err := f.Add(r); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Add validates and appends a resource.
func (f *Force) Add(r Resource) error {
	r.applyDefaults()
	if err := r.Validate(); err != nil {
		return err
	}
	f.resources = append(f.resources, r)
	return nil
}

// AddResource builds a resource from its fields and appends it.
func (f *Force) AddResource(description string, arrival, production, duration float64, side Side, baseCost, hourCost float64) error {
	r, err := NewResource(description, arrival, production, duration, side, baseCost, hourCost)
	if err != nil {
		return err
	}
	f.resources = append(f.resources, r)
	return nil
}

// Len returns the number of resources.
func (f *Force) Len() int {
	return len(f.resources)
}

// Resource returns the resource at index i. It panics if i is out of range.
func (f *Force) Resource(i int) Resource {
	return f.resources[i]
}

// Resources returns a copy of all resources in insertion order.
func (f *Force) Resources() []Resource {
	out := make([]Resource, len(f.resources))
	copy(out, f.resources)
	return out
}

// RemoveAt removes the resource at index i.
func (f *Force) RemoveAt(i int) error {
	if i < 0 || i >= len(f.resources) {
		return &Error{
			Class:   ErrorClassInvalidInput,
			Code:    ErrCodeIndexOutOfRange,
			Message: fmt.Sprintf("resource index %d out of range [0,%d)", i, len(f.resources)),
		}
	}
	f.resources = append(f.resources[:i], f.resources[i+1:]...)
	return nil
}

// RemoveFirst removes the first resource with the given description and
// reports whether one was found.
func (f *Force) RemoveFirst(description string) bool {
	for i, r := range f.resources {
		if r.Description == description {
			f.resources = append(f.resources[:i], f.resources[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAll removes every resource with the given description and returns
// how many were removed.
func (f *Force) RemoveAll(description string) int {
	kept := f.resources[:0]
	for _, r := range f.resources {
		if r.Description != description {
			kept = append(kept, r)
		}
	}
	removed := len(f.resources) - len(kept)
	f.resources = kept
	return removed
}

// FirstArrival returns the earliest arrival among resources covering side,
// or NoArrival if there are none.
func (f *Force) FirstArrival(side Side) float64 {
	first := NoArrival
	for _, r := range f.resources {
		if r.Side.Covers(side) && r.Arrival < first {
			first = r.Arrival
		}
	}
	return first
}

// Exhausted returns the latest arrival+duration among resources covering side.
func (f *Force) Exhausted(side Side) float64 {
	var last float64
	for _, r := range f.resources {
		if r.Side.Covers(side) && r.Done() > last {
			last = r.Done()
		}
	}
	return last
}

// NextArrival scans whole minutes after `after` up to `until` and returns
// the first one at which the production rate differs from the rate at
// `after`. It returns 0 if the rate never changes.
func (f *Force) NextArrival(after, until float64, side Side) float64 {
	base := f.ProductionRate(after, side)
	for t := math.Floor(after) + 1; t < until; t++ {
		if math.Abs(f.ProductionRate(t, side)-base) > rateTolerance {
			return t
		}
	}
	return 0
}

// ProductionRate returns the flank production rate at minute t. Each working
// resource contributes half its production, the other half going to the
// mirrored flank.
func (f *Force) ProductionRate(t float64, side Side) float64 {
	var rate float64
	for _, r := range f.resources {
		if r.Side.Covers(side) && r.WorkingAt(t) {
			rate += 0.5 * r.Production
		}
	}
	return rate
}

// ResourceCost returns the cost of resource i if the fire is resolved at finalTime.
func (f *Force) ResourceCost(i int, finalTime float64) float64 {
	return f.resources[i].Cost(finalTime)
}

// Cost returns the total cost of every resource that arrived before finalTime.
func (f *Force) Cost(finalTime float64) float64 {
	cost, _ := costAndUsed(f, finalTime)
	return cost
}

// Used returns how many resources arrived before finalTime.
func (f *Force) Used(finalTime float64) int {
	_, used := costAndUsed(f, finalTime)
	return used
}

func costAndUsed(f ForceReader, finalTime float64) (float64, int) {
	var cost float64
	var used int
	for i := 0; i < f.Len(); i++ {
		if f.Resource(i).Arrival < finalTime {
			used++
			cost += f.ResourceCost(i, finalTime)
		}
	}
	return cost, used
}
