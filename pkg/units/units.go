// Package units converts the lengths, areas, speeds and times accepted in
// scenario files to the base units used by the containment model.
//
// Base units are feet, square feet, feet per minute and minutes. The
// simulator itself works in chains, acres and chains per hour; the helpers
// at the bottom of this file cover those conversions.
package units

import (
	"fmt"
	"strings"
)

// LengthUnit names a unit of length.
type LengthUnit string

// Length units.
const (
	Feet        LengthUnit = "ft"
	Inches      LengthUnit = "in"
	Meters      LengthUnit = "m"
	Centimeters LengthUnit = "cm"
	Chains      LengthUnit = "ch"
	Miles       LengthUnit = "mi"
	Kilometers  LengthUnit = "km"
)

var feetPer = map[LengthUnit]float64{
	Feet:        1,
	Inches:      1.0 / 12.0,
	Meters:      1 / 0.3048,
	Centimeters: 1 / 30.48,
	Chains:      66,
	Miles:       5280,
	Kilometers:  1000 / 0.3048,
}

// AreaUnit names a unit of area.
type AreaUnit string

// Area units.
const (
	SquareFeet       AreaUnit = "ft2"
	SquareMeters     AreaUnit = "m2"
	Acres            AreaUnit = "ac"
	Hectares         AreaUnit = "ha"
	SquareMiles      AreaUnit = "mi2"
	SquareKilometers AreaUnit = "km2"
)

const squareFeetPerAcre = 43560.0

var squareFeetPer = map[AreaUnit]float64{
	SquareFeet:       1,
	SquareMeters:     1 / (0.3048 * 0.3048),
	Acres:            squareFeetPerAcre,
	Hectares:         10000 / (0.3048 * 0.3048),
	SquareMiles:      5280 * 5280,
	SquareKilometers: 1e6 / (0.3048 * 0.3048),
}

// SpeedUnit names a unit of speed.
type SpeedUnit string

// Speed units.
const (
	FeetPerMinute     SpeedUnit = "ft/min"
	ChainsPerHour     SpeedUnit = "ch/h"
	MetersPerSecond   SpeedUnit = "m/s"
	MetersPerMinute   SpeedUnit = "m/min"
	MilesPerHour      SpeedUnit = "mi/h"
	KilometersPerHour SpeedUnit = "km/h"
)

var feetPerMinutePer = map[SpeedUnit]float64{
	FeetPerMinute:     1,
	ChainsPerHour:     66.0 / 60.0,
	MetersPerSecond:   60 / 0.3048,
	MetersPerMinute:   1 / 0.3048,
	MilesPerHour:      5280.0 / 60.0,
	KilometersPerHour: 1000 / 0.3048 / 60,
}

// TimeUnit names a unit of time.
type TimeUnit string

// Time units.
const (
	Minutes TimeUnit = "min"
	Hours   TimeUnit = "h"
	Days    TimeUnit = "d"
)

var minutesPer = map[TimeUnit]float64{
	Minutes: 1,
	Hours:   60,
	Days:    1440,
}

// ParseLength resolves a length unit symbol or a common long name.
func ParseLength(s string) (LengthUnit, error) {
	switch u := LengthUnit(normalize(s)); u {
	case "feet", "foot":
		return Feet, nil
	case "meters", "metres", "meter":
		return Meters, nil
	case "chains", "chain":
		return Chains, nil
	case "miles", "mile":
		return Miles, nil
	case "kilometers", "kilometres":
		return Kilometers, nil
	default:
		if _, ok := feetPer[u]; ok {
			return u, nil
		}
		return "", fmt.Errorf("unknown length unit %q", s)
	}
}

// ParseArea resolves an area unit symbol or a common long name.
func ParseArea(s string) (AreaUnit, error) {
	switch u := AreaUnit(normalize(s)); u {
	case "acres", "acre":
		return Acres, nil
	case "hectares", "hectare":
		return Hectares, nil
	case "sqft", "square_feet":
		return SquareFeet, nil
	case "sqm", "square_meters":
		return SquareMeters, nil
	default:
		if _, ok := squareFeetPer[u]; ok {
			return u, nil
		}
		return "", fmt.Errorf("unknown area unit %q", s)
	}
}

// ParseSpeed resolves a speed unit symbol or a common alias.
func ParseSpeed(s string) (SpeedUnit, error) {
	switch u := SpeedUnit(normalize(s)); u {
	case "fpm", "ft/m":
		return FeetPerMinute, nil
	case "chph", "ch/hr":
		return ChainsPerHour, nil
	case "mph", "mi/hr":
		return MilesPerHour, nil
	case "kph", "km/hr":
		return KilometersPerHour, nil
	default:
		if _, ok := feetPerMinutePer[u]; ok {
			return u, nil
		}
		return "", fmt.Errorf("unknown speed unit %q", s)
	}
}

// ParseTime resolves a time unit symbol or a common long name.
func ParseTime(s string) (TimeUnit, error) {
	switch u := TimeUnit(normalize(s)); u {
	case "minutes", "minute", "m":
		return Minutes, nil
	case "hours", "hour", "hr":
		return Hours, nil
	case "days", "day":
		return Days, nil
	default:
		if _, ok := minutesPer[u]; ok {
			return u, nil
		}
		return "", fmt.Errorf("unknown time unit %q", s)
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ToFeet converts v in u to feet. Unknown units panic.
func (u LengthUnit) ToFeet(v float64) float64 { return v * mustFactor(feetPer, u) }

// FromFeet converts v feet to u.
func (u LengthUnit) FromFeet(v float64) float64 { return v / mustFactor(feetPer, u) }

// ToSquareFeet converts v in u to square feet.
func (u AreaUnit) ToSquareFeet(v float64) float64 { return v * mustFactor(squareFeetPer, u) }

// FromSquareFeet converts v square feet to u.
func (u AreaUnit) FromSquareFeet(v float64) float64 { return v / mustFactor(squareFeetPer, u) }

// ToFeetPerMinute converts v in u to feet per minute.
func (u SpeedUnit) ToFeetPerMinute(v float64) float64 { return v * mustFactor(feetPerMinutePer, u) }

// FromFeetPerMinute converts v feet per minute to u.
func (u SpeedUnit) FromFeetPerMinute(v float64) float64 { return v / mustFactor(feetPerMinutePer, u) }

// ToMinutes converts v in u to minutes.
func (u TimeUnit) ToMinutes(v float64) float64 { return v * mustFactor(minutesPer, u) }

// FromMinutes converts v minutes to u.
func (u TimeUnit) FromMinutes(v float64) float64 { return v / mustFactor(minutesPer, u) }

func mustFactor[K ~string](table map[K]float64, u K) float64 {
	f, ok := table[u]
	if !ok {
		panic(fmt.Sprintf("units: unknown unit %q", string(u)))
	}
	return f
}

// FeetToChains converts feet to chains.
func FeetToChains(ft float64) float64 { return ft / 66 }

// ChainsToFeet converts chains to feet.
func ChainsToFeet(ch float64) float64 { return ch * 66 }

// SquareFeetToAcres converts square feet to acres.
func SquareFeetToAcres(sqft float64) float64 { return sqft / squareFeetPerAcre }

// AcresToSquareFeet converts acres to square feet.
func AcresToSquareFeet(ac float64) float64 { return ac * squareFeetPerAcre }

// FeetPerMinuteToChainsPerHour converts ft/min to ch/h.
func FeetPerMinuteToChainsPerHour(v float64) float64 { return v * 60 / 66 }

// ChainsPerHourToFeetPerMinute converts ch/h to ft/min.
func ChainsPerHourToFeetPerMinute(v float64) float64 { return v * 66 / 60 }
