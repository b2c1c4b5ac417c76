package contain

import (
	"context"
	"fmt"
	"math"
)

// Simulator defaults.
const (
	DefaultMinSteps    = 250
	DefaultMaxSteps    = 1000
	DefaultMaxFireSize = 1000.0 // ac
	DefaultMaxFireTime = 1080.0 // min

	// minMaxSteps is the floor applied to Config.MaxSteps.
	minMaxSteps = 10

	// minRetryDelay is the smallest attack delay worth a retry (min).
	minRetryDelay = 0.01
)

// Config holds the inputs of a containment run in model units: acres,
// chains, chains per hour and minutes since report.
type Config struct {
	// Report describes the fire at report time.
	Report Report

	// Tactic selects head or rear attack.
	Tactic Tactic

	// AttackDistance is the parallel attack offset (ch).
	AttackDistance float64

	// Retry delays the attack to the next production change after an overrun.
	Retry bool

	// MinSteps is the smallest step count accepted for a contained pass.
	MinSteps int

	// MaxSteps caps the steps of a pass. Values below 10 are raised to 10.
	MaxSteps int

	// MaxFireSize is the fire size at which the fire escapes (ac).
	MaxFireSize float64

	// MaxFireTime is the time since report at which the fire escapes (min).
	MaxFireTime float64

	// MaxPasses caps the number of passes; 0 means unbounded.
	MaxPasses int
}

// DefaultConfig returns a Config with the standard limits and a head attack.
func DefaultConfig() Config {
	return Config{
		Tactic:      TacticHead,
		Retry:       true,
		MinSteps:    DefaultMinSteps,
		MaxSteps:    DefaultMaxSteps,
		MaxFireSize: DefaultMaxFireSize,
		MaxFireTime: DefaultMaxFireTime,
	}
}

// Validate checks the run limits.
func (c Config) Validate() error {
	switch {
	case c.MinSteps < 0:
		return NewInvalidInputError(fmt.Sprintf("min steps must be non-negative, got %d", c.MinSteps), nil)
	case c.MaxSteps < 0:
		return NewInvalidInputError(fmt.Sprintf("max steps must be non-negative, got %d", c.MaxSteps), nil)
	case math.IsNaN(c.MaxFireSize) || c.MaxFireSize < 0:
		return NewInvalidInputError(fmt.Sprintf("max fire size must be non-negative, got %g", c.MaxFireSize), nil)
	case math.IsNaN(c.MaxFireTime) || c.MaxFireTime < 0:
		return NewInvalidInputError(fmt.Sprintf("max fire time must be non-negative, got %g", c.MaxFireTime), nil)
	case c.MaxPasses < 0:
		return NewInvalidInputError(fmt.Sprintf("max passes must be non-negative, got %d", c.MaxPasses), nil)
	}
	return nil
}

// StepRecord is the flank state after one step of a pass.
type StepRecord struct {
	// U is the attack angle (rad).
	U float64 `json:"u"`

	// H is the free-burning head distance (ch).
	H float64 `json:"h"`

	// X and Y locate the attack point (ch).
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// Segment is the line built on one flank during the step (ch).
	Segment float64 `json:"segment"`

	// Area is the fire size for both flanks after the step (ac).
	Area float64 `json:"area"`
}

// Result is the outcome of a containment run.
type Result struct {
	Status Status `json:"status"`

	// Cost is the summed cost of every resource that arrived before Time.
	Cost float64 `json:"cost"`

	// Line is the fireline built on both flanks (ch).
	Line float64 `json:"line"`

	// Perimeter is the contained fire perimeter (ch).
	Perimeter float64 `json:"perimeter"`

	// Size is the contained fire size (ac).
	Size float64 `json:"size"`

	// Sweep is the area enclosed by the fireline (ac).
	Sweep float64 `json:"sweep"`

	// Time is the minutes since report at which the run resolved.
	Time float64 `json:"time"`

	// Used counts resources that arrived before Time.
	Used int `json:"used"`

	// Passes counts the simulation passes run.
	Passes int `json:"passes"`

	// DistStep is the nominal distance step of the final pass (ch).
	DistStep float64 `json:"dist_step"`

	// AttackTime is the attack time of the final pass (min since report).
	AttackTime float64 `json:"attack_time"`

	// Fire geometry from the final pass (ch).
	ReportHead float64 `json:"report_head"`
	ReportBack float64 `json:"report_back"`
	AttackHead float64 `json:"attack_head"`
	AttackBack float64 `json:"attack_back"`

	// Steps holds the final pass, index 0 being the attack point.
	Steps []StepRecord `json:"steps,omitempty"`
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithObserver installs an observer for step and pass events.
func WithObserver(o Observer) Option {
	return func(s *Simulator) {
		if o != nil {
			s.observer = o
		}
	}
}

// Simulator drives a flank simulation through as many passes as it takes to
// reach a terminal status. One flank is simulated and mirrored for the other.
// A Simulator is not safe for concurrent use; the Force it reads may be shared.
type Simulator struct {
	cfg      Config
	force    ForceReader
	flank    *Flank
	observer Observer

	initialAttack float64
	initialStep   float64

	pass  int
	steps []StepRecord
}

// NewSimulator validates cfg and prepares a flank attacked at the force's
// first arrival on the left flank. It fails if the force is empty or its
// first arrival is not a valid attack time.
func NewSimulator(cfg Config, force ForceReader, opts ...Option) (*Simulator, error) {
	if force == nil {
		return nil, ErrMissingForce
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxSteps < minMaxSteps {
		cfg.MaxSteps = minMaxSteps
	}

	attackTime := force.FirstArrival(SideLeft)
	flank, err := NewFlank(cfg.Report, Attack{
		Side:     SideLeft,
		Force:    force,
		Time:     attackTime,
		Tactic:   cfg.Tactic,
		Distance: cfg.AttackDistance,
	})
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg:           cfg,
		force:         force,
		flank:         flank,
		observer:      NopObserver{},
		initialAttack: attackTime,
		initialStep:   flank.DistStep(),
		steps:         make([]StepRecord, 0, cfg.MaxSteps+1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Flank returns the simulated flank.
func (s *Simulator) Flank() *Flank {
	return s.flank
}

// passTotals are the accumulated outputs of one pass.
type passTotals struct {
	line  float64
	sweep float64
	size  float64
}

// Run simulates until a terminal status is reached and returns the final
// outputs. The context is checked between passes; a pass is never
// interrupted. Run starts over from the first arrival on every call.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	f := s.flank
	f.attackTime = s.initialAttack
	f.distStep = s.initialStep
	f.Reset()

	var (
		totals    passTotals
		coarsened bool
		anomalies int
	)
	s.pass = 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, NewCancelledError("containment run cancelled", err).
				WithOp("run").
				WithDetail("pass", s.pass)
		}

		totals = s.runPass()
		attackTime, distStep := f.attackTime, f.distStep
		reason, rerun := s.resolve(totals, &coarsened)
		if reason == PassAnomaly {
			anomalies++
			// A repeated anomaly would repeat forever; nothing changed between passes.
			if anomalies > 1 {
				f.status = StatusOverflow
				rerun = false
			}
		} else {
			anomalies = 0
		}
		if rerun && s.cfg.MaxPasses > 0 && s.pass+1 >= s.cfg.MaxPasses {
			reason = PassLimit
			f.attackTime, f.distStep = attackTime, distStep
			f.status = StatusOverflow
			rerun = false
		}

		s.observer.ObservePass(PassEvent{
			Pass:       s.pass,
			Steps:      len(s.steps) - 1,
			Elapsed:    f.currentTime,
			Status:     f.status,
			Reason:     reason,
			Rerun:      rerun,
			DistStep:   f.distStep,
			AttackTime: f.attackTime,
			Area:       totals.size,
		})
		if !rerun {
			break
		}
		s.pass++
		f.Reset()
	}

	if f.currentTime > s.cfg.MaxFireTime-1 {
		f.currentTime = s.cfg.MaxFireTime
		f.status = StatusTimeLimitExceeded
	}
	return s.finalize(totals), nil
}

// runPass steps the flank from its reset state until it stops or a limit is
// reached, recording every step.
func (s *Simulator) runPass() passTotals {
	f := s.flank
	s.steps = append(s.steps[:0], StepRecord{U: f.u, H: f.h, X: f.x, Y: f.y})

	var (
		totals passTotals
		trap   float64
	)
	for f.status != StatusOverrun &&
		f.status != StatusContained &&
		f.step < s.cfg.MaxSteps &&
		totals.size < s.cfg.MaxFireSize &&
		f.currentTime < s.cfg.MaxFireTime &&
		f.currentTime < f.exhausted {

		f.Step()
		prev := s.steps[len(s.steps)-1]
		rec := StepRecord{U: f.u, H: f.h, X: f.x, Y: f.y}
		rec.Segment = math.Hypot(rec.X-prev.X, rec.Y-prev.Y)
		// Line and area cover both flanks; 10 ch^2 per acre.
		totals.line += 2 * rec.Segment
		trap += (rec.X - prev.X) * (rec.Y + prev.Y)
		rec.Area = 0.2 * (0.5*math.Abs(trap) + UncontainedArea(rec.H, f.lwRatio, rec.X, rec.Y, f.tactic))
		totals.size = rec.Area
		s.steps = append(s.steps, rec)

		s.observer.ObserveStep(StepEvent{
			Pass:    s.pass,
			Step:    f.step,
			Elapsed: f.currentTime,
			Status:  f.status,
			U:       f.u,
			H:       f.h,
		})
	}

	last := &s.steps[len(s.steps)-1]
	if f.status == StatusContained && f.tactic == TacticHead {
		last.X -= 2 * f.attackDist
	}
	totals.sweep = 0.2 * (0.5*math.Abs(trapezoid(s.steps)) +
		UncontainedArea(last.H, f.lwRatio, last.X, last.Y, f.tactic))
	return totals
}

// resolve applies the retry policy to a finished pass. It returns why the
// pass ended and whether another pass is needed, adjusting the flank for it.
func (s *Simulator) resolve(t passTotals, coarsened *bool) (PassReason, bool) {
	f := s.flank
	switch {
	case f.status == StatusOverrun:
		if !s.cfg.Retry {
			return PassOverrun, false
		}
		if at := s.force.NextArrival(f.attackTime, f.exhausted, SideLeft); at > minRetryDelay {
			f.attackTime = at
			return PassRetryLater, true
		}
		f.status = StatusExhausted
		return PassExhausted, false

	case f.currentTime >= f.exhausted:
		f.status = StatusExhausted
		return PassExhausted, false

	case f.step >= s.cfg.MaxSteps:
		if *coarsened {
			f.status = StatusOverflow
			return PassStepLimit, false
		}
		f.distStep *= 2
		*coarsened = true
		return PassCoarsen, true

	case f.status == StatusContained:
		if f.step < s.cfg.MinSteps && !*coarsened {
			f.distStep *= 0.5
			return PassRefine, true
		}
		return PassContained, false

	case t.size >= s.cfg.MaxFireSize:
		f.status = StatusSizeLimitExceeded
		return PassSizeLimit, false

	case f.currentTime > s.cfg.MaxFireTime-1:
		f.currentTime = s.cfg.MaxFireTime
		f.status = StatusTimeLimitExceeded
		return PassTimeLimit, false
	}
	return PassAnomaly, true
}

// finalize builds the Result. Geometry is only reported for contained fires.
func (s *Simulator) finalize(t passTotals) *Result {
	f := s.flank
	res := &Result{
		Status:     f.status,
		Time:       f.currentTime,
		Passes:     s.pass + 1,
		DistStep:   f.distStep,
		AttackTime: f.attackTime,
		ReportHead: f.reportHead,
		ReportBack: f.reportBack,
		AttackHead: f.attackHead,
		AttackBack: f.attackBack,
		Steps:      append([]StepRecord(nil), s.steps...),
	}
	if f.status == StatusContained {
		res.Line = t.line
		res.Perimeter = t.line
		res.Size = t.sweep
		res.Sweep = t.sweep
	}
	res.Cost, res.Used = costAndUsed(s.force, res.Time)
	return res
}

// trapezoid returns the signed trapezoid sum of the step path against the x axis.
func trapezoid(steps []StepRecord) float64 {
	var sum float64
	for i := 1; i < len(steps); i++ {
		sum += (steps[i].X - steps[i-1].X) * (steps[i].Y + steps[i-1].Y)
	}
	return sum
}

// Simulate is a convenience wrapper that builds a Simulator and runs it.
func Simulate(ctx context.Context, cfg Config, force ForceReader, opts ...Option) (*Result, error) {
	sim, err := NewSimulator(cfg, force, opts...)
	if err != nil {
		return nil, err
	}
	return sim.Run(ctx)
}
