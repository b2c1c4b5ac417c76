package stores

import (
	"context"
	"time"

	"github.com/openfroyo/firecontain/pkg/scenario"
)

// RunStatusError marks a run that failed before producing an outcome.
const RunStatusError = "error"

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run is an archived simulation run
type Run struct {
	ID            string    `json:"id"`
	BatchID       *string   `json:"batch_id,omitempty"`
	Scenario      string    `json:"scenario"`
	Status        string    `json:"status"` // contain.Status or "error"
	Error         *string   `json:"error,omitempty"`
	ErrorClass    *string   `json:"error_class,omitempty"`
	Cost          float64   `json:"cost"`
	FirelineFt    float64   `json:"fireline_ft"`
	FireSizeAc    float64   `json:"fire_size_ac"`
	ContainmentAc float64   `json:"containment_ac"`
	TimeMin       float64   `json:"time_min"`
	Passes        int       `json:"passes"`
	ResourcesUsed int       `json:"resources_used"`
	ScenarioDoc   string    `json:"scenario_doc"`          // JSON blob
	OutcomeDoc    *string   `json:"outcome_doc,omitempty"` // JSON blob
	StartedAt     time.Time `json:"started_at"`
	DurationMs    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// Batch summarizes a batch execution
type Batch struct {
	ID         string    `json:"id"`
	Size       int       `json:"size"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event is an archived telemetry event
type Event struct {
	ID        int64      `json:"id"`
	EventID   string     `json:"event_id"`
	RunID     *string    `json:"run_id,omitempty"`
	BatchID   *string    `json:"batch_id,omitempty"`
	Type      string     `json:"type"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// PolicyResult is the verdict of one acceptance policy on a run
type PolicyResult struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Policy    string    `json:"policy"`
	Severity  string    `json:"severity"`
	Allowed   bool      `json:"allowed"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RunFilter narrows ListRuns. Empty fields match everything.
type RunFilter struct {
	Scenario string
	Status   string
	BatchID  string
	Since    time.Time
	Limit    int
	Offset   int
}

// EventFilter narrows GetEvents. Empty fields match everything.
type EventFilter struct {
	RunID   string
	BatchID string
	Type    string
	Level   EventLevel
	Limit   int
	Offset  int
}

// StatusCount is the number of archived runs with a status
type StatusCount struct {
	Status   string  `json:"status"`
	Runs     int     `json:"runs"`
	MeanCost float64 `json:"mean_cost"`
	MeanTime float64 `json:"mean_time_min"`
}

// Store defines the interface for the run archive
type Store interface {
	scenario.Recorder

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
	StatusCounts(ctx context.Context, scenarioName string) ([]StatusCount, error)

	// Batch operations
	SaveBatch(ctx context.Context, batch *Batch) error
	GetBatch(ctx context.Context, id string) (*Batch, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, filter EventFilter) ([]*Event, error)

	// Policy operations
	SavePolicyResults(ctx context.Context, results []*PolicyResult) error
	ListPolicyResults(ctx context.Context, runID string) ([]*PolicyResult, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
