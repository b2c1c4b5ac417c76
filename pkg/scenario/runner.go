package scenario

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/firecontain/pkg/contain"
	"github.com/openfroyo/firecontain/pkg/telemetry"
)

// Record is one executed scenario.
type Record struct {
	RunID     string        `json:"run_id"`
	BatchID   string        `json:"batch_id,omitempty"`
	Scenario  *Scenario     `json:"scenario"`
	Outcome   *Outcome      `json:"outcome,omitempty"`
	Err       error         `json:"-"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Error returns the run error message, or "".
func (r *Record) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Recorder persists executed scenarios.
type Recorder interface {
	SaveRecord(ctx context.Context, rec *Record) error
}

// Runner executes scenarios with telemetry and optional persistence.
type Runner struct {
	source    string
	recorder  Recorder
	observers []contain.Observer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSource labels runs in metrics and events (cli, batch, watch).
func WithSource(source string) RunnerOption {
	return func(r *Runner) { r.source = source }
}

// WithRecorder saves every record after it completes.
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// WithRunObserver adds an observer to every simulation.
func WithRunObserver(o contain.Observer) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// NewRunner creates a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{source: "cli"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes s under a fresh run ID. Simulation errors are reported in
// Record.Err; the returned error is non-nil only when saving failed.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Record, error) {
	return r.run(ctx, s, "")
}

func (r *Runner) run(ctx context.Context, s *Scenario, batchID string) (*Record, error) {
	rec := &Record{
		RunID:     uuid.New().String(),
		BatchID:   batchID,
		Scenario:  s,
		StartedAt: time.Now().UTC(),
	}

	ctx, rc := telemetry.StartRun(ctx, rec.RunID, s.Name, r.source)

	observers := make(contain.MultiObserver, 0, len(r.observers)+1)
	observers = append(observers, rc.Observer())
	observers = append(observers, r.observers...)

	rec.Outcome, rec.Err = Run(ctx, s, contain.WithObserver(observers))
	rec.Duration = time.Since(rec.StartedAt)

	var res *contain.Result
	if rec.Outcome != nil {
		res = rec.Outcome.Result
		if res == nil {
			res = &contain.Result{Status: rec.Outcome.Status}
		}
	}
	rc.End(res, rec.Err)

	if r.recorder != nil {
		if err := r.recorder.SaveRecord(ctx, rec); err != nil {
			rc.Logger().WithError(err).Error("failed to save run record")
			return rec, err
		}
	}
	return rec, nil
}
