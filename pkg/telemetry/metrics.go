package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for simulation runs. A Metrics
// built from a disabled config records nothing.
type Metrics struct {
	config MetricsConfig

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	passesPerRun  prometheus.Histogram
	containedSize prometheus.Histogram

	passes       *prometheus.CounterVec
	stepsPerPass *prometheus.HistogramVec

	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	policyViolations *prometheus.CounterVec

	activeRuns      prometheus.Gauge
	queuedScenarios prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates the collectors and registers them on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	durationBuckets := cfg.RunDurationBuckets
	if len(durationBuckets) == 0 {
		durationBuckets = prometheus.DefBuckets
	}
	stepBuckets := cfg.StepBuckets
	if len(stepBuckets) == 0 {
		stepBuckets = prometheus.LinearBuckets(100, 100, 10)
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Simulation runs started, by entry point",
			},
			[]string{"source"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Simulation runs finished, by final status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock time spent simulating one scenario",
				Buckets:   durationBuckets,
			},
			[]string{"status"},
		),
		passesPerRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "passes_per_run",
				Help:      "Integration passes needed to resolve a run",
				Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16, 32},
			},
		),
		containedSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "contained_size_acres",
				Help:      "Final burned area of contained fires",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passes_total",
				Help:      "Integration passes, by how the pass was resolved",
			},
			[]string{"reason"},
		),
		stepsPerPass: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "steps_per_pass",
				Help:      "Integration steps taken in one pass",
				Buckets:   stepBuckets,
			},
			[]string{"reason"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Errors returned by the simulator, by class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Errors returned by the simulator, by code",
			},
			[]string{"code"},
		),
		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Outcome policy violations",
			},
			[]string{"policy", "severity"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Simulations currently executing",
			},
		),
		queuedScenarios: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_scenarios",
				Help:      "Batch scenarios waiting for a worker",
			},
		),
	}

	m.registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.passesPerRun,
		m.containedSize,
		m.passes,
		m.stepsPerPass,
		m.errorsByClass,
		m.errorsByCode,
		m.policyViolations,
		m.activeRuns,
		m.queuedScenarios,
	)

	return m, nil
}

// Enabled reports whether the collectors exist.
func (m *Metrics) Enabled() bool {
	return m.registry != nil
}

// Registry returns the private registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRunStarted counts a run and marks it active.
func (m *Metrics) RecordRunStarted(source string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(source).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records the final status of a run and its pass count.
func (m *Metrics) RecordRunCompleted(status string, passes int, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	if passes > 0 {
		m.passesPerRun.Observe(float64(passes))
	}
	m.activeRuns.Dec()
}

// RecordContainedSize observes the final area of a contained fire.
func (m *Metrics) RecordContainedSize(acres float64) {
	if m.containedSize == nil {
		return
	}
	m.containedSize.Observe(acres)
}

// RecordPass counts one integration pass and its step count.
func (m *Metrics) RecordPass(reason string, steps int) {
	if m.passes == nil {
		return
	}
	m.passes.WithLabelValues(reason).Inc()
	m.stepsPerPass.WithLabelValues(reason).Observe(float64(steps))
}

// RecordError counts an error by class and, when set, by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// RecordPolicyViolation counts a failed outcome policy.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// SetQueuedScenarios sets the number of batch scenarios waiting for a worker.
func (m *Metrics) SetQueuedScenarios(count float64) {
	if m.queuedScenarios == nil {
		return
	}
	m.queuedScenarios.Set(count)
}

// Timer measures the wall-clock duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds on observer.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer serves the metrics endpoint in the background. Serve
// errors are reported through errFn, which may be nil.
func (m *Metrics) StartMetricsServer(errFn func(error)) error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := m.server
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && errFn != nil {
			errFn(err)
		}
	}()

	return nil
}

// Shutdown stops the metrics server if it was started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
