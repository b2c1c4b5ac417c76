package policy

import (
	"time"

	"github.com/openfroyo/firecontain/pkg/scenario"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for outcomes that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError marks an outcome as not acceptable.
	SeverityError Severity = "error"

	// SeverityCritical marks an outcome that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether the severity rejects an outcome.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Its deny set holds the violations.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin is set for the policies shipped with the tool.
	Builtin bool `json:"builtin,omitempty"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation is one entry of a policy's deny set.
type Violation struct {
	Policy   string   `json:"policy"`
	Scenario string   `json:"scenario,omitempty"`
	RunID    string   `json:"run_id,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`

	// Details contains additional violation details.
	Details map[string]interface{} `json:"details,omitempty"`

	DetectedAt time.Time `json:"detected_at"`
}

// Result is the outcome of evaluating every enabled policy against one run.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations, blocking or not.
	Violations []Violation `json:"violations,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated, sorted.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	Duration time.Duration `json:"duration"`

	Context *Context `json:"context,omitempty"`
}

// ViolationsOf returns the violations raised by one policy.
func (r *Result) ViolationsOf(policy string) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Policy == policy {
			out = append(out, v)
		}
	}
	return out
}

// Input is the document a policy sees as input.
type Input struct {
	Scenario *scenario.Scenario `json:"scenario,omitempty"`
	Outcome  *scenario.Outcome  `json:"outcome"`
	Context  *Context           `json:"context"`
}

// Context provides run information for policy evaluation.
type Context struct {
	RunID   string `json:"run_id,omitempty"`
	BatchID string `json:"batch_id,omitempty"`

	// Environment is the deployment label from the settings.
	Environment string `json:"environment,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Metadata contains additional context metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PolicyBundle represents a collection of related policies.
type PolicyBundle struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Policies    []Policy  `json:"policies"`
	CreatedAt   time.Time `json:"created_at"`
}

// Report aggregates the results of a batch.
type Report struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Results     []*Result `json:"results"`
	Summary     *Summary  `json:"summary"`
}

// Summary provides aggregate statistics for policy evaluation.
type Summary struct {
	TotalRuns            int              `json:"total_runs"`
	AllowedRuns          int              `json:"allowed_runs"`
	BlockedRuns          int              `json:"blocked_runs"`
	TotalViolations      int              `json:"total_violations"`
	ViolationsBySeverity map[Severity]int `json:"violations_by_severity"`
	ViolationsByPolicy   map[string]int   `json:"violations_by_policy"`
	EvaluationDuration   time.Duration    `json:"evaluation_duration"`
}

// Summarize aggregates results.
func Summarize(results []*Result) *Summary {
	s := &Summary{
		ViolationsBySeverity: make(map[Severity]int),
		ViolationsByPolicy:   make(map[string]int),
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		s.TotalRuns++
		if r.Allowed {
			s.AllowedRuns++
		} else {
			s.BlockedRuns++
		}
		s.TotalViolations += len(r.Violations)
		for _, v := range r.Violations {
			s.ViolationsBySeverity[v.Severity]++
			s.ViolationsByPolicy[v.Policy]++
		}
		s.EvaluationDuration += r.Duration
	}
	return s
}
