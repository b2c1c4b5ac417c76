package contain

// PassReason explains how the Simulator resolved a pass.
type PassReason string

const (
	// PassOverrun ends the run because resources were overrun and retry is off.
	PassOverrun PassReason = "overrun"

	// PassRetryLater reruns with the attack delayed to the next production change.
	PassRetryLater PassReason = "retry_later"

	// PassExhausted ends the run because every resource finished its shift.
	PassExhausted PassReason = "exhausted"

	// PassCoarsen reruns with a doubled distance step after hitting the step limit.
	PassCoarsen PassReason = "coarsen"

	// PassStepLimit ends the run after the step limit was hit a second time.
	PassStepLimit PassReason = "step_limit"

	// PassRefine reruns with a halved distance step to reach the minimum step count.
	PassRefine PassReason = "refine"

	// PassContained accepts a contained pass.
	PassContained PassReason = "contained"

	// PassSizeLimit ends the run because the fire outgrew the size limit.
	PassSizeLimit PassReason = "size_limit"

	// PassTimeLimit ends the run because the fire outlasted the time limit.
	PassTimeLimit PassReason = "time_limit"

	// PassAnomaly marks a pass that matched none of the known outcomes.
	PassAnomaly PassReason = "anomaly"

	// PassLimit ends the run because the pass budget was spent.
	PassLimit PassReason = "pass_limit"
)

// StepEvent is emitted after every flank step.
type StepEvent struct {
	Pass    int
	Step    int
	Elapsed float64
	Status  Status
	U       float64
	H       float64
}

// PassEvent is emitted once a pass has been resolved.
type PassEvent struct {
	Pass       int
	Steps      int
	Elapsed    float64
	Status     Status
	Reason     PassReason
	Rerun      bool
	DistStep   float64
	AttackTime float64
	Area       float64
}

// Observer receives simulation progress. Implementations must be cheap:
// ObserveStep runs inside the step loop.
type Observer interface {
	ObserveStep(StepEvent)
	ObservePass(PassEvent)
}

// NopObserver discards all events.
type NopObserver struct{}

// ObserveStep implements Observer.
func (NopObserver) ObserveStep(StepEvent) {}

// ObservePass implements Observer.
func (NopObserver) ObservePass(PassEvent) {}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Step func(StepEvent)
	Pass func(PassEvent)
}

// ObserveStep implements Observer.
func (o ObserverFuncs) ObserveStep(e StepEvent) {
	if o.Step != nil {
		o.Step(e)
	}
}

// ObservePass implements Observer.
func (o ObserverFuncs) ObservePass(e PassEvent) {
	if o.Pass != nil {
		o.Pass(e)
	}
}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

// ObserveStep implements Observer.
func (m MultiObserver) ObserveStep(e StepEvent) {
	for _, o := range m {
		o.ObserveStep(e)
	}
}

// ObservePass implements Observer.
func (m MultiObserver) ObservePass(e PassEvent) {
	for _, o := range m {
		o.ObservePass(e)
	}
}
