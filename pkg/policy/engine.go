package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/openfroyo/firecontain/pkg/scenario"
	"github.com/openfroyo/firecontain/pkg/stores"
	"github.com/openfroyo/firecontain/pkg/telemetry"
)

// Engine evaluates Rego acceptance policies against simulation outcomes.
type Engine struct {
	mu              sync.RWMutex
	policies        map[string]*compiledPolicy
	store           storage.Store
	logger          zerolog.Logger
	builtinPolicies []Policy
	environment     string
	telemetry       *telemetry.Telemetry
}

// compiledPolicy is a policy with its deny query prepared.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithoutBuiltins starts the engine with no policies loaded.
func WithoutBuiltins() Option {
	return func(e *Engine) { e.builtinPolicies = nil }
}

// WithEnvironment sets Context.Environment for every evaluation.
func WithEnvironment(env string) Option {
	return func(e *Engine) { e.environment = env }
}

// WithTelemetry publishes a policy.violation event and counts a metric for
// every violation found by EvaluateRecord.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(e *Engine) { e.telemetry = tel }
}

// NewEngine creates a new policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		policies:        make(map[string]*compiledPolicy),
		store:           inmem.New(),
		logger:          logger.With().Str("component", "policy-engine").Logger(),
		builtinPolicies: GetBuiltinPolicies(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// Evaluate evaluates every enabled policy against input. A policy that fails
// to evaluate is reported in Result.Errors and does not block.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Result, error) {
	if input == nil || input.Outcome == nil {
		return nil, fmt.Errorf("policy input requires an outcome")
	}
	if input.Context == nil {
		input.Context = &Context{}
	}
	if input.Context.Timestamp.IsZero() {
		input.Context.Timestamp = time.Now().UTC()
	}
	if input.Context.Environment == "" {
		input.Context.Environment = e.environment
	}

	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{
		Allowed:     true,
		EvaluatedAt: time.Now(),
		Context:     input.Context,
	}

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Error().Err(err).
				Str("policy", name).
				Str("scenario", input.Outcome.Scenario).
				Msg("Policy evaluation failed")
			result.Errors = append(result.Errors, fmt.Sprintf("policy %s evaluation failed: %v", name, err))
			continue
		}

		for _, v := range violations {
			if v.Severity.Blocking() {
				result.Allowed = false
			}
		}
		result.Violations = append(result.Violations, violations...)
	}

	result.Duration = time.Since(startTime)
	e.logger.Debug().
		Str("scenario", input.Outcome.Scenario).
		Int("violations", len(result.Violations)).
		Bool("allowed", result.Allowed).
		Dur("duration", result.Duration).
		Msg("Outcome policy evaluation completed")

	return result, nil
}

// EvaluateRecord evaluates the outcome of an executed scenario. Failed runs
// have no outcome and yield a nil result.
func (e *Engine) EvaluateRecord(ctx context.Context, rec *scenario.Record) (*Result, error) {
	if rec == nil || rec.Outcome == nil {
		return nil, nil
	}

	result, err := e.Evaluate(ctx, &Input{
		Scenario: rec.Scenario,
		Outcome:  rec.Outcome,
		Context: &Context{
			RunID:   rec.RunID,
			BatchID: rec.BatchID,
		},
	})
	if err != nil {
		return nil, err
	}

	e.publish(rec.RunID, result)
	return result, nil
}

// EvaluateBatch evaluates every record with an outcome and summarizes.
func (e *Engine) EvaluateBatch(ctx context.Context, records []*scenario.Record) (*Report, error) {
	report := &Report{
		ID:          uuid.New().String(),
		GeneratedAt: time.Now(),
	}
	for _, rec := range records {
		result, err := e.EvaluateRecord(ctx, rec)
		if err != nil {
			return nil, err
		}
		if result != nil {
			report.Results = append(report.Results, result)
		}
	}
	report.Summary = Summarize(report.Results)
	return report, nil
}

func (e *Engine) publish(runID string, result *Result) {
	if e.telemetry == nil {
		return
	}
	for _, v := range result.Violations {
		if e.telemetry.Metrics != nil {
			e.telemetry.Metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
		}
		if e.telemetry.Events != nil {
			if err := e.telemetry.Events.PublishPolicyViolation(runID, v.Policy, string(v.Severity), v.Message); err != nil {
				e.logger.Warn().Err(err).Str("policy", v.Policy).Msg("Failed to publish policy violation")
			}
		}
	}
}

// StoreResults converts a result into archive rows: one per violation and
// one passing row per evaluated policy that raised nothing.
func StoreResults(runID string, result *Result) []*stores.PolicyResult {
	if result == nil {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]*stores.PolicyResult, 0, len(result.EvaluatedPolicies)+len(result.Violations))
	violated := make(map[string]bool)
	for _, v := range result.Violations {
		violated[v.Policy] = true
		rows = append(rows, &stores.PolicyResult{
			RunID:     runID,
			Policy:    v.Policy,
			Severity:  string(v.Severity),
			Allowed:   !v.Severity.Blocking(),
			Message:   v.Message,
			CreatedAt: now,
		})
	}
	for _, name := range result.EvaluatedPolicies {
		if violated[name] {
			continue
		}
		rows = append(rows, &stores.PolicyResult{
			RunID:     runID,
			Policy:    name,
			Severity:  string(SeverityInfo),
			Allowed:   true,
			CreatedAt: now,
		})
	}
	return rows
}

// LoadPolicies loads policy files and directories, replacing policies of
// the same name.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.AddPolicies(ctx, policies)
}

// AddPolicies compiles and adds policies. Nothing is added when any of them
// fails to compile.
func (e *Engine) AddPolicies(ctx context.Context, policies []Policy) error {
	compiled := make([]*compiledPolicy, 0, len(policies))
	for i := range policies {
		cp, err := e.compile(ctx, &policies[i])
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", policies[i].Name).
				Msg("Failed to compile policy")
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		compiled = append(compiled, cp)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cp := range compiled {
		e.policies[cp.policy.Name] = cp
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// ReplacePolicies swaps every non-builtin policy for policies. It is the
// reload function handed to Loader.Watch.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	compiled := make([]*compiledPolicy, 0, len(policies))
	for i := range policies {
		cp, err := e.compile(ctx, &policies[i])
		if err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
		compiled = append(compiled, cp)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for name, cp := range e.policies {
		if !cp.policy.Builtin {
			delete(e.policies, name)
		}
	}
	for _, cp := range compiled {
		e.policies[cp.policy.Name] = cp
	}
	return nil
}

// evaluatePolicy runs the prepared deny query of one policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		if denySet, ok := result.Expressions[0].Value.([]interface{}); ok {
			for _, d := range denySet {
				violations = append(violations, e.createViolation(cp.policy, d, input))
			}
		}
	}

	return violations, nil
}

// createViolation creates a Violation from a deny entry, which is either a
// message string or an object with message, severity and details.
func (e *Engine) createViolation(policy *Policy, entry interface{}, input *Input) Violation {
	violation := Violation{
		Policy:     policy.Name,
		Scenario:   input.Outcome.Scenario,
		RunID:      input.Context.RunID,
		Severity:   policy.Severity,
		DetectedAt: time.Now(),
	}

	switch v := entry.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if details, ok := v["details"].(map[string]interface{}); ok {
			violation.Details = details
		}
	default:
		violation.Message = fmt.Sprintf("%v", entry)
	}

	return violation
}

// compile parses a policy and prepares the query for its deny set.
func (e *Engine) compile(ctx context.Context, policy *Policy) (*compiledPolicy, error) {
	if policy.Name == "" {
		return nil, fmt.Errorf("policy name is required")
	}
	if policy.Severity == "" {
		policy.Severity = SeverityWarning
	}

	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if module == nil {
		return nil, fmt.Errorf("policy %s is empty", policy.Name)
	}

	r := rego.New(
		rego.ParsedModule(module),
		rego.Store(e.store),
		rego.Query(module.Package.Path.String()+".deny"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Msg("Policy compiled successfully")

	return &compiledPolicy{
		policy:   policy,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	for i := range e.builtinPolicies {
		cp, err := e.compile(ctx, &e.builtinPolicies[i])
		if err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", e.builtinPolicies[i].Name, err)
		}
		e.policies[cp.policy.Name] = cp
	}

	e.logger.Debug().
		Int("count", len(e.builtinPolicies)).
		Msg("Built-in policies loaded")

	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// ReloadPolicies drops every loaded policy and reloads the built-in ones.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.policies = make(map[string]*compiledPolicy)
	e.builtinPolicies = GetBuiltinPolicies()
	return e.loadBuiltinPolicies(ctx)
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

// DisablePolicies disables each named policy, failing on the first unknown
// name. Names may be comma separated.
func (e *Engine) DisablePolicies(names []string) error {
	for _, n := range names {
		for _, name := range strings.Split(n, ",") {
			if name = strings.TrimSpace(name); name == "" {
				continue
			}
			if err := e.DisablePolicy(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")

	return nil
}
