package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/firecontain/pkg/contain"
)

// Telemetry bundles the logger, tracer, metrics and event publisher.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry builds every component from cfg.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment, cfg.ResourceAttributes)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext stores the telemetry and its logger in ctx.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext returns the telemetry stored in ctx, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown stops the components in reverse order of construction.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if err := t.Events.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.Metrics.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := t.Logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Flush exports pending spans.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer serves metrics if enabled, logging serve errors.
func (t *Telemetry) StartMetricsServer() error {
	log := t.Logger.NewComponentLogger("metrics")
	return t.Metrics.StartMetricsServer(func(err error) {
		log.WithError(err).Error("metrics server stopped")
	})
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins a traced and timed operation. Without telemetry in
// ctx only the logger and timer are populated.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)
	logger := FromContext(ctx).WithField("operation", operation)
	if sc := span.SpanContext(); sc.IsValid() {
		logger = logger.WithField("trace_id", sc.TraceID().String())
	}

	return &InstrumentedContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the operation, marking the span with err.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span == nil {
		return
	}
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}

// RunContext tracks the telemetry of a single simulation run.
type RunContext struct {
	ID       string
	Scenario string

	tel    *Telemetry
	span   trace.Span
	logger *Logger
	timer  *Timer
}

// StartRun opens the span, logger and counters of a run. The returned
// context carries the run logger; the RunContext must be ended with End.
func StartRun(ctx context.Context, runID, scenario, source string) (context.Context, *RunContext) {
	rc := &RunContext{
		ID:       runID,
		Scenario: scenario,
		timer:    NewTimer(),
	}

	tel := FromTelemetryContext(ctx)
	rc.tel = tel
	rc.logger = FromContext(ctx).WithRunID(runID).WithScenario(scenario)
	if tel == nil {
		return rc.logger.WithContext(ctx), rc
	}

	ctx, rc.span = tel.Tracer.StartRunSpan(ctx, runID, scenario)
	tel.Metrics.RecordRunStarted(source)
	if err := tel.Events.PublishRunStarted(runID, scenario, source); err != nil {
		rc.logger.WithError(err).Debug("run started event not published")
	}

	return rc.logger.WithContext(ctx), rc
}

// Logger returns the run logger.
func (rc *RunContext) Logger() *Logger {
	return rc.logger
}

// Observer returns a contain.Observer reporting passes of this run.
func (rc *RunContext) Observer() contain.Observer {
	return NewSimObserver(rc.tel, rc.logger, rc.ID, rc.span)
}

// End records the outcome of the run. A non-nil err takes precedence over
// result.
func (rc *RunContext) End(result *contain.Result, err error) {
	duration := rc.timer.Duration()

	if err != nil {
		rc.logger.WithError(err).Error("simulation failed")
	} else if result != nil {
		rc.logger.Event(levelForStatus(result.Status)).
			Str("status", string(result.Status)).
			Int("passes", result.Passes).
			Float64("time_min", result.Time).
			Float64("size_ac", result.Size).
			Float64("cost", result.Cost).
			Dur("elapsed", duration).
			Msg("simulation finished")
	}

	if rc.tel == nil {
		return
	}

	if err != nil {
		var cerr *contain.Error
		if errors.As(err, &cerr) {
			rc.tel.Metrics.RecordError(string(cerr.Class), cerr.Code)
			rc.span.SetAttributes(AttrErrorClass.String(string(cerr.Class)), AttrErrorCode.String(cerr.Code))
		} else {
			rc.tel.Metrics.RecordError(string(contain.ErrorClassInternal), "")
		}
		rc.tel.Metrics.RecordRunCompleted("error", 0, duration)
		RecordError(rc.span, err)
		_ = rc.tel.Events.PublishRunFailed(rc.ID, rc.Scenario, err)
	} else if result != nil {
		rc.tel.Metrics.RecordRunCompleted(string(result.Status), result.Passes, duration)
		if result.Status == contain.StatusContained {
			rc.tel.Metrics.RecordContainedSize(result.Size)
		}
		rc.span.SetAttributes(
			AttrRunStatus.String(string(result.Status)),
			AttrFireTime.Float64(result.Time),
			AttrFireSize.Float64(result.Size),
			AttrFireCost.Float64(result.Cost),
		)
		RecordSuccess(rc.span)
		_ = rc.tel.Events.PublishRunCompleted(rc.ID, rc.Scenario, string(result.Status), result.Passes, duration)
	}
	rc.span.End()
}
