package telemetry

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/firecontain/pkg/contain"
)

// SimObserver reports simulator progress through logs, metrics, span events
// and published events. Steps are only logged at trace level.
type SimObserver struct {
	tel    *Telemetry
	logger *Logger
	runID  string
	span   trace.Span
	steps  bool
}

var _ contain.Observer = (*SimObserver)(nil)

// NewSimObserver creates an observer for runID. tel and span may be nil.
func NewSimObserver(tel *Telemetry, logger *Logger, runID string, span trace.Span) *SimObserver {
	return &SimObserver{
		tel:    tel,
		logger: logger,
		runID:  runID,
		span:   span,
		steps:  logger.Enabled(zerolog.TraceLevel),
	}
}

// ObserveStep implements contain.Observer.
func (o *SimObserver) ObserveStep(e contain.StepEvent) {
	if !o.steps {
		return
	}
	o.logger.Event(zerolog.TraceLevel).
		Int("pass", e.Pass).
		Int("step", e.Step).
		Float64("elapsed", e.Elapsed).
		Str("status", string(e.Status)).
		Float64("u", e.U).
		Float64("h", e.H).
		Msg("step")
}

// ObservePass implements contain.Observer.
func (o *SimObserver) ObservePass(e contain.PassEvent) {
	level := zerolog.DebugLevel
	if e.Reason == contain.PassAnomaly || e.Reason == contain.PassLimit {
		level = zerolog.WarnLevel
	}
	o.logger.Event(level).
		Int("pass", e.Pass).
		Int("steps", e.Steps).
		Float64("elapsed", e.Elapsed).
		Str("status", string(e.Status)).
		Str("reason", string(e.Reason)).
		Bool("rerun", e.Rerun).
		Float64("dist_step", e.DistStep).
		Float64("attack_time", e.AttackTime).
		Msg("pass resolved")

	if o.span != nil {
		AddEvent(o.span, "pass",
			AttrPass.Int(e.Pass),
			AttrPassReason.String(string(e.Reason)),
			AttrPassSteps.Int(e.Steps),
			AttrDistStep.Float64(e.DistStep),
			AttrAttackTime.Float64(e.AttackTime),
		)
	}

	if o.tel == nil {
		return
	}
	o.tel.Metrics.RecordPass(string(e.Reason), e.Steps)
	if err := o.tel.Events.PublishPass(o.runID, e.Pass, e.Steps, string(e.Status), string(e.Reason), e.Rerun); err != nil {
		o.logger.WithError(err).Debug("pass event not published")
	}
}

func levelForStatus(s contain.Status) zerolog.Level {
	switch s {
	case contain.StatusContained, contain.StatusUnreported:
		return zerolog.InfoLevel
	case contain.StatusOverflow:
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}
