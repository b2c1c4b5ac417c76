package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/firecontain/pkg/contain"
	"github.com/openfroyo/firecontain/pkg/scenario"
	"github.com/openfroyo/firecontain/pkg/telemetry"
)

// SaveRecord archives an executed scenario. It satisfies scenario.Recorder.
func (s *SQLiteStore) SaveRecord(ctx context.Context, rec *scenario.Record) error {
	run, err := RunFromRecord(rec)
	if err != nil {
		return err
	}
	return s.CreateRun(ctx, run)
}

// RunFromRecord flattens a scenario record into an archive row.
func RunFromRecord(rec *scenario.Record) (*Run, error) {
	if rec == nil || rec.Scenario == nil {
		return nil, fmt.Errorf("record has no scenario")
	}

	doc, err := json.Marshal(rec.Scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scenario: %w", err)
	}

	run := &Run{
		ID:          rec.RunID,
		BatchID:     optional(rec.BatchID),
		Scenario:    rec.Scenario.Name,
		ScenarioDoc: string(doc),
		StartedAt:   rec.StartedAt,
		DurationMs:  rec.Duration.Milliseconds(),
	}

	if rec.Err != nil {
		run.Status = RunStatusError
		run.Error = optional(rec.Err.Error())
		class := "unknown"
		var cerr *contain.Error
		if errors.As(rec.Err, &cerr) {
			class = string(cerr.Class)
		}
		run.ErrorClass = &class
		return run, nil
	}

	out := rec.Outcome
	if out == nil {
		return nil, fmt.Errorf("record %s has neither outcome nor error", rec.RunID)
	}
	outDoc, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outcome: %w", err)
	}
	run.OutcomeDoc = optional(string(outDoc))
	run.Status = string(out.Status)
	run.Cost = out.Cost
	run.FirelineFt = out.FirelineLength
	run.FireSizeAc = out.FireSizeAcres
	run.ContainmentAc = out.ContainmentAreaAcres
	run.TimeMin = out.Time
	run.Passes = out.Passes
	run.ResourcesUsed = out.ResourcesUsed
	return run, nil
}

// Outcome decodes the archived outcome, or returns nil for failed runs.
func (r *Run) Outcome() (*scenario.Outcome, error) {
	if r.OutcomeDoc == nil {
		return nil, nil
	}
	out := &scenario.Outcome{}
	if err := json.Unmarshal([]byte(*r.OutcomeDoc), out); err != nil {
		return nil, fmt.Errorf("failed to decode outcome of run %s: %w", r.ID, err)
	}
	return out, nil
}

// ScenarioSpec decodes the archived scenario so the run can be replayed.
func (r *Run) ScenarioSpec() (*scenario.Scenario, error) {
	s := &scenario.Scenario{}
	if err := json.Unmarshal([]byte(r.ScenarioDoc), s); err != nil {
		return nil, fmt.Errorf("failed to decode scenario of run %s: %w", r.ID, err)
	}
	return s, nil
}

// BatchFromResult summarizes a finished batch.
func BatchFromResult(res *scenario.BatchResult, startedAt time.Time) *Batch {
	return &Batch{
		ID:         res.BatchID,
		Size:       len(res.Records),
		Completed:  res.Completed,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
		StartedAt:  startedAt,
		DurationMs: res.Duration.Milliseconds(),
	}
}

// EventFromTelemetry converts a published telemetry event to an archive row.
func EventFromTelemetry(e telemetry.Event) (*Event, error) {
	ev := &Event{
		EventID:   e.ID,
		RunID:     optional(e.RunID),
		BatchID:   optional(e.BatchID),
		Type:      e.Type,
		Level:     EventLevel(e.Level),
		Message:   e.Message,
		Timestamp: e.Timestamp,
	}
	if len(e.Data) > 0 {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event data: %w", err)
		}
		ev.Details = optional(string(data))
	}
	return ev, nil
}

// EventSink returns a subscriber that archives every delivered event.
// Archive failures are logged and otherwise dropped.
func (s *SQLiteStore) EventSink(logger *telemetry.Logger) telemetry.EventSubscriber {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	logger = logger.NewComponentLogger("stores")

	return func(e telemetry.Event) {
		ev, err := EventFromTelemetry(e)
		if err == nil {
			err = s.AppendEvent(context.Background(), ev)
		}
		if err != nil {
			logger.WithError(err).WithField("event_type", e.Type).Warn("failed to archive event")
		}
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
