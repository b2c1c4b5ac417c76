package contain

import "math"

// shape holds the elliptical constants derived from a length-to-width ratio.
type shape struct {
	// eps is the eccentricity, eps2 its square.
	eps, eps2 float64
	// a is sqrt((1-eps)/(1+eps)), the minor-axis scale of the growth curve.
	a float64
}

func newShape(lw float64) shape {
	r := 1 / lw
	eps2 := 1 - r*r
	var eps float64
	if eps2 > 1e-5 {
		eps = math.Sqrt(eps2)
	}
	return shape{
		eps:  eps,
		eps2: eps2,
		a:    math.Sqrt((1 - eps) / (1 + eps)),
	}
}

// backRatio returns the ratio of backing distance to heading distance.
func (s shape) backRatio() float64 {
	return (1 - s.eps) / (1 + s.eps)
}

// psi maps the attack angle u onto the outward normal angle used to offset
// parallel attack lines. The result is always in [0, pi).
func psi(u, eps2 float64) float64 {
	const fudge = 1e-5
	if ro := u - math.Pi/2; math.Abs(ro) < fudge {
		if ro > 0 {
			u = math.Pi/2 + fudge
		} else {
			u = math.Pi/2 - fudge
		}
	}
	v := math.Atan(math.Tan(u) / math.Sqrt(1-eps2))
	if v < 0 {
		v += math.Pi
	}
	return v
}

// UncontainedArea returns the area (ch^2) of the free-burning elliptical
// sector between the attack point (x, y) and the fire head at distance head
// from the origin. For a head attack the complement half-ellipse is used.
func UncontainedArea(head, lw, x, y float64, tactic Tactic) float64 {
	if lw < 1 {
		lw = 1.00000001
	}
	ecc := math.Sqrt(1 - 1/(lw*lw))
	a := head / (1 + ecc)
	b := a / lw

	xc := x - a*ecc
	if xc < -a {
		xc, y = -a, 0
	}
	if xc > a {
		xc, y = a, 0
	}

	var theta float64
	if r := math.Hypot(xc, y); r > 0 {
		if xc >= 0 {
			theta = math.Acos(xc / r)
		} else {
			theta = math.Pi - math.Acos(-xc/r)
		}
	}

	var sector float64
	if den := (a + b) + (b-a)*math.Cos(2*theta); math.Abs(den) > 1e-12 {
		sector = (a * b / 2) * (theta - math.Atan((b-a)*math.Sin(2*theta)/den))
	} else {
		sector = (a * b / 2) * theta
	}

	area := sector - xc*y/2
	if tactic == TacticHead {
		area = math.Pi*a*b/2 - area
	}
	if area < 0 {
		return 0
	}
	return area
}
