package contain

import (
	"fmt"
	"math"
)

const (
	// MinSpreadRate is the smallest report spread rate the model accepts (ch/h).
	// Lower rates, including zero, are raised to it.
	MinSpreadRate = 1e-5

	// minFireRate floors the diurnal spread rate in the production ratio (ch/h).
	minFireRate = 1e-4

	// maxTimeIncrement caps the minutes covered by one step so that resource
	// arrivals on whole minutes are not stepped over.
	maxTimeIncrement = 1.0

	// radicalTolerance bounds the du/dh radical. Below -radicalTolerance the
	// line cannot keep up with the fire; inside the band it is treated as zero.
	radicalTolerance = 1e-10

	// minParallelDistance is the smallest attack offset treated as parallel attack (ch).
	minParallelDistance = 0.001
)

// Report describes the fire when it was reported.
type Report struct {
	// Size is the fire area at report (ac).
	Size float64

	// Rate is the head spread rate at report (ch/h).
	Rate float64

	// LWRatio is the fire length-to-width ratio. Values below 1 are raised to 1.
	LWRatio float64

	// Diurnal holds the head spread rate for each hour of the day (ch/h).
	// When empty every hour uses Rate.
	Diurnal []float64

	// StartMinute is the minute of the day at which the fire was reported.
	// It selects the Diurnal entry for each simulated minute.
	StartMinute float64
}

// Attack describes how the force engages one flank.
type Attack struct {
	// Side is the flank under attack.
	Side Side

	// Force supplies line production.
	Force ForceReader

	// Time is when line construction begins (min since report).
	Time float64

	// Tactic selects head or rear attack.
	Tactic Tactic

	// Distance is the offset of a parallel attack line from the fire edge (ch).
	Distance float64
}

// Flank simulates the free-burning head of one fire flank and the point of
// active line construction chasing it. The angle u is measured from the fire
// origin to the construction point, h is the head distance from the origin.
type Flank struct {
	reportSize float64
	reportRate float64
	lwRatio    float64
	diurnal    [24]float64
	startTime  float64

	side       Side
	force      ForceReader
	attackTime float64
	tactic     Tactic
	attackDist float64
	exhausted  float64
	distStep   float64

	shape      shape
	reportHead float64
	reportBack float64
	reportTime float64
	backRate   float64
	attackHead float64
	attackBack float64

	u, h, x, y    float64
	u0, h0        float64
	step          int
	time          float64
	timeAtHead    float64
	timeIncrement float64
	currentTime   float64
	status        Status
}

// NewFlank validates the report and attack inputs and returns a flank reset
// to its initial attack state. The distance step defaults to the distance the
// head covers in one minute at the report rate.
func NewFlank(report Report, attack Attack) (*Flank, error) {
	if attack.Force == nil {
		return nil, ErrMissingForce
	}
	if err := checkAttackTime(attack.Time); err != nil {
		return nil, err
	}
	if math.IsNaN(report.Size) || report.Size < 0 {
		return nil, NewInvalidInputError(fmt.Sprintf("report size must be non-negative, got %g", report.Size), nil)
	}
	if math.IsNaN(report.Rate) || report.Rate < 0 {
		return nil, NewInvalidInputError(fmt.Sprintf("report rate must be non-negative, got %g", report.Rate), nil)
	}
	if n := len(report.Diurnal); n != 0 && n != 24 {
		return nil, NewInvalidInputError(fmt.Sprintf("diurnal table needs 24 hourly rates, got %d", n), nil)
	}
	if attack.Distance < 0 {
		return nil, NewInvalidInputError(fmt.Sprintf("attack distance must be non-negative, got %g", attack.Distance), nil)
	}
	if attack.Tactic == "" {
		attack.Tactic = TacticHead
	}
	if err := attack.Tactic.Validate(); err != nil {
		return nil, NewInvalidInputError("invalid attack", err)
	}
	if attack.Side == "" {
		attack.Side = SideLeft
	}

	f := &Flank{
		reportSize: report.Size,
		reportRate: math.Max(report.Rate, MinSpreadRate),
		lwRatio:    math.Max(report.LWRatio, 1),
		startTime:  report.StartMinute,
		side:       attack.Side,
		force:      attack.Force,
		attackTime: attack.Time,
		tactic:     attack.Tactic,
		attackDist: attack.Distance,
		status:     StatusUnreported,
	}
	if len(report.Diurnal) == 0 {
		for i := range f.diurnal {
			f.diurnal[i] = f.reportRate
		}
	} else {
		copy(f.diurnal[:], report.Diurnal)
	}
	f.distStep = f.reportRate / 60
	f.exhausted = f.force.Exhausted(f.side)
	f.Reset()
	return f, nil
}

func checkAttackTime(t float64) error {
	if math.IsNaN(t) || t < 0 || t >= NoArrival {
		return &Error{
			Class:   ErrorClassInvalidInput,
			Code:    ErrCodeInvalidAttackTime,
			Message: fmt.Sprintf("attack time %g is not a usable time since report", t),
		}
	}
	return nil
}

// Reset returns the flank to its state at the attack time. The distance step
// is left as is so a pass can be repeated at a different precision.
func (f *Flank) Reset() {
	f.timeAtHead = 0
	f.timeIncrement = 0
	f.currentTime = f.attackTime

	f.shape = newShape(f.lwRatio)
	eps := f.shape.eps
	f.reportHead = (1 + eps) * math.Sqrt(10*f.reportSize/(math.Pi*math.Sqrt(1-f.shape.eps2)))
	if f.reportRate > minFireRate {
		f.reportTime = 60 * f.reportHead / f.reportRate
	}
	f.backRate = f.reportRate * f.shape.backRatio()
	f.reportBack = f.reportHead * f.shape.backRatio()
	f.attackHead = f.headPosition(f.attackTime)
	f.attackBack = f.attackHead * f.shape.backRatio()

	if f.tactic == TacticRear {
		f.u = math.Pi
		f.x = -f.attackBack - f.attackDist
	} else {
		f.u = 0
		f.x = f.attackHead + f.attackDist
	}
	f.u0 = f.u
	f.h = f.attackHead
	f.h0 = f.h
	f.y = 0
	f.step = 0
	f.time = 0
	f.status = StatusReported
}

// Step advances the flank by one distance step and returns the new status.
// Stepping a flank that already reached a terminal status is a no-op.
func (f *Flank) Step() Status {
	if f.status.IsTerminal() {
		return f.status
	}
	taken, ok := f.advance()
	f.step++
	f.time = f.timeSinceReport(f.h)
	if !ok {
		return f.status
	}

	switch {
	case f.tactic == TacticHead && f.u >= math.Pi:
		f.closeLine(taken, (math.Pi-f.u0)/(f.u-f.u0), math.Pi)
	case f.tactic == TacticRear && f.u <= 0:
		f.closeLine(taken, f.u0/(f.u0-f.u), 0)
	}
	f.coordinates()
	f.timeAtHead += f.timeIncrement
	f.currentTime = f.timeAtHead + f.attackTime
	return f.status
}

// closeLine interpolates the head position at which u crossed its closing
// angle and marks the flank contained.
func (f *Flank) closeLine(taken, frac, closing float64) {
	if math.IsNaN(frac) || frac < 0 || frac > 1 {
		frac = 1
	}
	f.h = f.h0 + taken*frac
	f.timeIncrement *= frac
	f.u = closing
	f.status = StatusContained
}

// advance integrates du/dh over one distance step with a fourth order
// Runge-Kutta scheme. The step is halved until it spans at most one minute of
// fire spread. It returns the distance actually taken and false if the
// resources were overrun.
func (f *Flank) advance() (float64, bool) {
	f.u0, f.h0 = f.u, f.h
	f.status = StatusAttacked

	ds := f.distStep
	start := f.timeAtHead + f.attackTime
	inc := ds / f.fireRate(start) * 60
	for inc > maxTimeIncrement+1e-9 {
		ds /= 2
		inc /= 2
	}
	p0 := f.productionRatio(start)
	p1 := f.productionRatio(start + inc/2)
	p2 := f.productionRatio(start + inc)

	var rk [4]float64
	d, ok := f.dudh(p0, f.h0, f.u0)
	if !ok {
		return 0, false
	}
	rk[0] = ds * d
	if d, ok = f.dudh(p1, f.h0+ds/2, f.u0+rk[0]/2); !ok {
		return 0, false
	}
	rk[1] = ds * d
	if d, ok = f.dudh(p1, f.h0+ds/2, f.u0+rk[1]/2); !ok {
		return 0, false
	}
	rk[2] = ds * d
	if d, ok = f.dudh(p2, f.h0+ds, f.u0+rk[2]); !ok {
		return 0, false
	}
	rk[3] = ds * d

	f.u = f.u0 + (rk[0]+rk[3]+2*(rk[1]+rk[2]))/6
	f.h = f.h0 + ds
	f.timeIncrement = inc
	return ds, true
}

// dudh returns the rate of change of the attack angle with head distance for
// production ratio p. It marks the flank overrun and returns false when the
// line cannot keep pace with the fire edge.
func (f *Flank) dudh(p, h, u float64) (float64, bool) {
	eps, eps2, a := f.shape.eps, f.shape.eps2, f.shape.a
	cosU, sinU := math.Cos(u), math.Sin(u)

	x := 1 - eps*cosU
	radical := p*p*x/(1+eps*cosU) - a*a
	if radical < -radicalTolerance {
		f.status = StatusOverrun
		return 0, false
	}
	if radical < radicalTolerance {
		radical = 0
	}

	dh := x * h
	if f.attackDist > minParallelDistance {
		dh = x * (h + (1-eps)*(f.attackDist*math.Sqrt(1-eps2)/math.Pow(1-eps2*cosU*cosU, 1.5)))
	}
	if dh < 1e-10 {
		dh = 1e-10
	}

	du := eps * sinU
	if f.tactic == TacticRear {
		du -= (1 + eps) * math.Sqrt(radical)
	} else {
		du += (1 + eps) * math.Sqrt(radical)
	}
	return du / dh, true
}

func (f *Flank) coordinates() {
	eps := f.shape.eps
	f.y = math.Sin(f.u) * f.h * f.shape.a
	f.x = (math.Cos(f.u) + eps) * f.h / (1 + eps)
	if f.attackDist > minParallelDistance {
		v := psi(f.u, f.shape.eps2)
		f.y += f.attackDist * math.Sin(v)
		f.x += f.attackDist * math.Cos(v)
	}
}

// productionRatio returns the ratio of flank line production to head spread
// rate at minute t since report.
func (f *Flank) productionRatio(t float64) float64 {
	return f.force.ProductionRate(t, f.side) / f.fireRate(t)
}

func (f *Flank) fireRate(t float64) float64 {
	return math.Max(f.diurnalRate(t), minFireRate)
}

// diurnalRate returns the tabled head spread rate for minute t since report.
func (f *Flank) diurnalRate(t float64) float64 {
	clock := math.Mod(t+f.startTime, 1440)
	if clock < 0 {
		clock += 1440
	}
	hour := int(clock / 60)
	if hour > 23 {
		hour = 23
	}
	return f.diurnal[hour]
}

// headPosition returns the free-burning head distance from the origin at
// minute t since report, integrating the diurnal rates hour by hour.
func (f *Flank) headPosition(t float64) float64 {
	head := f.reportHead

	first := 60 - math.Mod(f.startTime, 60)
	if t < first {
		first = t
	}
	head += f.diurnalRate(0) * first / 60
	t -= first
	elapsed := first

	hours := int(t/60) + 1
	rem := t - float64(hours-1)*60
	for i := 0; i < hours; i++ {
		inc := 60.0
		if i == hours-1 {
			inc = rem
		}
		head += f.diurnalRate(elapsed) * inc / 60
		elapsed += inc
	}
	return head
}

func (f *Flank) timeSinceReport(head float64) float64 {
	if f.reportRate > MinSpreadRate {
		return 60 * (head - f.reportHead) / f.reportRate
	}
	return 0
}

// Status returns the current flank status.
func (f *Flank) Status() Status { return f.status }

// StepIndex returns the number of steps taken in the current pass.
func (f *Flank) StepIndex() int { return f.step }

// U returns the current attack angle (rad).
func (f *Flank) U() float64 { return f.u }

// H returns the current free-burning head distance (ch).
func (f *Flank) H() float64 { return f.h }

// X returns the current attack point x coordinate (ch).
func (f *Flank) X() float64 { return f.x }

// Y returns the current attack point y coordinate (ch).
func (f *Flank) Y() float64 { return f.y }

// Elapsed returns the minutes since report at which the head reached H.
func (f *Flank) Elapsed() float64 { return f.time }

// CurrentTime returns the simulated minutes since report.
func (f *Flank) CurrentTime() float64 { return f.currentTime }

// AttackTime returns when line construction begins (min since report).
func (f *Flank) AttackTime() float64 { return f.attackTime }

// Exhausted returns when the last resource on the flank stops working.
func (f *Flank) Exhausted() float64 { return f.exhausted }

// DistStep returns the nominal head distance covered per step (ch).
func (f *Flank) DistStep() float64 { return f.distStep }

// SetDistStep changes the nominal distance step. Non-positive values are ignored.
func (f *Flank) SetDistStep(ds float64) {
	if ds > 0 {
		f.distStep = ds
	}
}

// Eccentricity returns the fire ellipse eccentricity.
func (f *Flank) Eccentricity() float64 { return f.shape.eps }

// LWRatio returns the length-to-width ratio in use.
func (f *Flank) LWRatio() float64 { return f.lwRatio }

// Tactic returns the attack tactic.
func (f *Flank) Tactic() Tactic { return f.tactic }

// AttackDistance returns the parallel attack offset (ch).
func (f *Flank) AttackDistance() float64 { return f.attackDist }

// ReportRate returns the report spread rate after clamping (ch/h).
func (f *Flank) ReportRate() float64 { return f.reportRate }

// BackRate returns the backing spread rate (ch/h).
func (f *Flank) BackRate() float64 { return f.backRate }

// ReportHead returns the head distance from the origin at report (ch).
func (f *Flank) ReportHead() float64 { return f.reportHead }

// ReportBack returns the back distance from the origin at report (ch).
func (f *Flank) ReportBack() float64 { return f.reportBack }

// ReportTime returns the minutes from ignition to report at the report rate.
func (f *Flank) ReportTime() float64 { return f.reportTime }

// AttackHead returns the head distance from the origin at attack (ch).
func (f *Flank) AttackHead() float64 { return f.attackHead }

// AttackBack returns the back distance from the origin at attack (ch).
func (f *Flank) AttackBack() float64 { return f.attackBack }
