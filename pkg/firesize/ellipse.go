// Package firesize models free-burning fire growth as an ellipse, after the
// BEHAVE fire size module. Rates are in feet per minute, times in minutes,
// lengths in feet and areas in square feet.
package firesize

import "math"

const minDimension = 1e-7

// EffectiveWindSpeed returns the effective midflame wind speed (mi/h) that
// yields the length-to-width ratio lw.
func EffectiveWindSpeed(lw float64) float64 {
	return 4 * (lw - 1)
}

// LengthToWidth returns the length-to-width ratio produced by an effective
// wind speed (mi/h). Calm or negative wind gives a circle.
func LengthToWidth(effectiveWindSpeed float64) float64 {
	if effectiveWindSpeed > minDimension {
		return 1 + 0.25*effectiveWindSpeed
	}
	return 1
}

// Ellipse is a fire spreading from a point ignition.
type Ellipse struct {
	// ForwardRate is the heading spread rate (ft/min).
	ForwardRate float64

	// LWRatio is the length-to-width ratio. Values below 1 are read as 1.
	LWRatio float64
}

// FromWindSpeed builds the ellipse the fire size module derives from an
// effective wind speed.
func FromWindSpeed(forwardRate, effectiveWindSpeed float64) Ellipse {
	return Ellipse{ForwardRate: forwardRate, LWRatio: LengthToWidth(effectiveWindSpeed)}
}

func (e Ellipse) lw() float64 {
	return math.Max(e.LWRatio, 1)
}

// Eccentricity returns sqrt(lw²-1)/lw.
func (e Ellipse) Eccentricity() float64 {
	lw := e.lw()
	x := lw*lw - 1
	if x <= 0 {
		return 0
	}
	return math.Sqrt(x) / lw
}

// BackingRate returns the spread rate at the rear of the fire (ft/min).
func (e Ellipse) BackingRate() float64 {
	ecc := e.Eccentricity()
	return e.ForwardRate * (1 - ecc) / (1 + ecc)
}

// Dimensions describes the ellipse after some minutes of growth.
type Dimensions struct {
	// Minor is the semi-minor axis (ft).
	Minor float64 `json:"minor_ft"`

	// Major is the semi-major axis (ft).
	Major float64 `json:"major_ft"`

	// Offset is the distance from the ignition point to the ellipse centre (ft).
	Offset float64 `json:"offset_ft"`

	// Forward and Backing are the spread distances from ignition (ft).
	Forward float64 `json:"forward_ft"`
	Backing float64 `json:"backing_ft"`
}

// Axes returns the ellipse dimensions after minutes of growth.
func (e Ellipse) Axes(minutes float64) Dimensions {
	d := Dimensions{
		Forward: e.ForwardRate * minutes,
		Backing: e.BackingRate() * minutes,
	}
	d.Major = (d.Forward + d.Backing) / 2
	d.Minor = d.Major / e.lw()
	d.Offset = d.Major - d.Backing
	return d
}

// Perimeter returns the fire perimeter after minutes of growth (ft), using
// Ramanujan's series for the ellipse circumference.
func (e Ellipse) Perimeter(minutes float64) float64 {
	d := e.Axes(minutes)
	sum := d.Minor + d.Major
	if sum <= minDimension {
		return 0
	}
	diff := d.Minor - d.Major
	h := diff * diff / (sum * sum)
	return math.Pi * sum * (1 + h/4 + h*h/64)
}

// Area returns the burned area after minutes of growth (sq ft).
func (e Ellipse) Area(minutes float64) float64 {
	d := e.Axes(minutes)
	return math.Pi * d.Minor * d.Major
}

// TimeToSize returns the minutes of growth needed to reach area square feet,
// or 0 when the fire does not grow.
func (e Ellipse) TimeToSize(area float64) float64 {
	unit := e.Area(1)
	if unit <= minDimension || area <= 0 {
		return 0
	}
	return math.Sqrt(area / unit)
}
