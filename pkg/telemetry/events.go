package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notable occurrence during a simulation or batch.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	RunID     string                 `json:"run_id,omitempty"`
	BatchID   string                 `json:"batch_id,omitempty"`
	Scenario  string                 `json:"scenario,omitempty"`
	Message   string                 `json:"message"`
	Level     string                 `json:"level"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeRunStarted      = "run.started"
	EventTypeRunCompleted    = "run.completed"
	EventTypeRunFailed       = "run.failed"
	EventTypePassResolved    = "pass.resolved"
	EventTypeAnomaly         = "simulation.anomaly"
	EventTypeBatchStarted    = "batch.started"
	EventTypeBatchCompleted  = "batch.completed"
	EventTypePolicyViolation = "policy.violation"
	EventTypeScenarioChanged = "scenario.changed"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles a delivered event.
type EventSubscriber func(event Event)

// EventFilter reports whether an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers. In async mode events are
// queued and delivered in order by a single goroutine, in batches of at most
// MaxBatchSize or every FlushInterval.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a publisher and, in async mode, starts its
// delivery goroutine.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish stamps event with an ID and timestamp and hands it to subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if !ep.config.EnableAsync {
		ep.deliverEvent(event)
		return nil
	}

	select {
	case <-ep.ctx.Done():
		return fmt.Errorf("event publisher stopped")
	default:
	}

	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, event %s dropped", event.Type)
	}
}

// PublishRunStarted announces a simulation run.
func (ep *EventPublisher) PublishRunStarted(runID, scenario, source string) error {
	return ep.Publish(Event{
		Type:     EventTypeRunStarted,
		Source:   source,
		RunID:    runID,
		Scenario: scenario,
		Message:  fmt.Sprintf("Run %s started for scenario %q", runID, scenario),
		Level:    EventLevelInfo,
	})
}

// PublishRunCompleted announces the outcome of a run.
func (ep *EventPublisher) PublishRunCompleted(runID, scenario, status string, passes int, duration time.Duration) error {
	level := EventLevelInfo
	if status != "contained" && status != "unreported" {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:     EventTypeRunCompleted,
		Source:   "simulator",
		RunID:    runID,
		Scenario: scenario,
		Message:  fmt.Sprintf("Run %s finished: %s after %d passes", runID, status, passes),
		Level:    level,
		Data: map[string]interface{}{
			"status":   status,
			"passes":   passes,
			"duration": duration.Seconds(),
		},
	})
}

// PublishRunFailed announces a run that returned an error.
func (ep *EventPublisher) PublishRunFailed(runID, scenario string, err error) error {
	return ep.Publish(Event{
		Type:     EventTypeRunFailed,
		Source:   "simulator",
		RunID:    runID,
		Scenario: scenario,
		Message:  fmt.Sprintf("Run %s failed: %v", runID, err),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"error": err.Error(),
		},
	})
}

// PublishPass records how one integration pass was resolved.
func (ep *EventPublisher) PublishPass(runID string, pass, steps int, status, reason string, rerun bool) error {
	level := EventLevelInfo
	typ := EventTypePassResolved
	if reason == "anomaly" {
		level = EventLevelWarning
		typ = EventTypeAnomaly
	}
	return ep.Publish(Event{
		Type:    typ,
		Source:  "simulator",
		RunID:   runID,
		Message: fmt.Sprintf("Pass %d ended %s after %d steps (%s)", pass, status, steps, reason),
		Level:   level,
		Data: map[string]interface{}{
			"pass":   pass,
			"steps":  steps,
			"status": status,
			"reason": reason,
			"rerun":  rerun,
		},
	})
}

// PublishBatchStarted announces a batch of scenarios.
func (ep *EventPublisher) PublishBatchStarted(batchID string, size, workers int) error {
	return ep.Publish(Event{
		Type:    EventTypeBatchStarted,
		Source:  "batch",
		BatchID: batchID,
		Message: fmt.Sprintf("Batch %s started: %d scenarios on %d workers", batchID, size, workers),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"size":    size,
			"workers": workers,
		},
	})
}

// PublishBatchCompleted announces the end of a batch.
func (ep *EventPublisher) PublishBatchCompleted(batchID string, completed, failed int, duration time.Duration) error {
	level := EventLevelInfo
	if failed > 0 {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:    EventTypeBatchCompleted,
		Source:  "batch",
		BatchID: batchID,
		Message: fmt.Sprintf("Batch %s finished: %d completed, %d failed", batchID, completed, failed),
		Level:   level,
		Data: map[string]interface{}{
			"completed": completed,
			"failed":    failed,
			"duration":  duration.Seconds(),
		},
	})
}

// PublishPolicyViolation announces an outcome that failed a policy.
func (ep *EventPublisher) PublishPolicyViolation(runID, policyName, severity, message string) error {
	level := EventLevelWarning
	if severity == "error" || severity == "critical" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy",
		RunID:   runID,
		Message: fmt.Sprintf("Policy %s violated: %s", policyName, message),
		Level:   level,
		Data: map[string]interface{}{
			"policy":   policyName,
			"severity": severity,
		},
	})
}

// PublishScenarioChanged announces that a watched scenario file changed.
func (ep *EventPublisher) PublishScenarioChanged(path, op string) error {
	return ep.Publish(Event{
		Type:     EventTypeScenarioChanged,
		Source:   "watch",
		Scenario: path,
		Message:  fmt.Sprintf("Scenario file %s: %s", path, op),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"op": op,
		},
	})
}

// Subscribe registers a subscriber with an optional filter.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter registers a filter applied to every published event.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	var ticker *time.Ticker
	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker = time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = batch[:0]
			}

		case <-tick:
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					ep.flushBatch(batch)
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops accepting events and waits for queued ones to be delivered.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel keeps events at minLevel or above.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	min := levels[minLevel]
	return func(event Event) bool {
		return levels[event.Level] >= min
	}
}

// FilterByType keeps events of the given types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(event Event) bool {
		return set[event.Type]
	}
}

// FilterByRunID keeps events of one run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
