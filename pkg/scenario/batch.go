package scenario

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/firecontain/pkg/telemetry"
)

// BatchRunner executes many scenarios over a bounded worker pool.
type BatchRunner struct {
	// maxParallel is the maximum number of concurrent workers.
	maxParallel int

	// runner executes individual scenarios.
	runner *Runner

	// failFast stops handing out work after the first failed scenario.
	failFast bool
}

// BatchResult is the result of a batch, in input order.
type BatchResult struct {
	BatchID   string
	Records   []*Record
	Completed int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Errors returns the run errors keyed by input index.
func (b *BatchResult) Errors() map[int]error {
	errs := make(map[int]error)
	for i, rec := range b.Records {
		if rec != nil && rec.Err != nil {
			errs[i] = rec.Err
		}
	}
	return errs
}

// NewBatchRunner creates a batch runner. maxParallel <= 0 uses GOMAXPROCS.
func NewBatchRunner(maxParallel int, runner *Runner, failFast bool) *BatchRunner {
	if maxParallel <= 0 {
		maxParallel = runtime.GOMAXPROCS(0)
	}
	if runner == nil {
		runner = NewRunner(WithSource("batch"))
	}
	return &BatchRunner{
		maxParallel: maxParallel,
		runner:      runner,
		failFast:    failFast,
	}
}

// Run executes every scenario. Scenarios not started because ctx was
// cancelled, or because an earlier one failed in fail-fast mode, leave a nil
// record and count as skipped. The returned error is ctx.Err() or the first
// recorder failure.
func (b *BatchRunner) Run(ctx context.Context, scenarios []*Scenario) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{
		BatchID: uuid.New().String(),
		Records: make([]*Record, len(scenarios)),
	}
	if len(scenarios) == 0 {
		return result, nil
	}

	workerCount := b.maxParallel
	if len(scenarios) < workerCount {
		workerCount = len(scenarios)
	}

	tel := telemetry.FromTelemetryContext(ctx)
	logger := telemetry.FromContext(ctx).WithBatchID(result.BatchID)
	ctx = logger.WithContext(ctx)
	if tel != nil {
		spanCtx, batchSpan := tel.Tracer.StartBatchSpan(ctx, result.BatchID, len(scenarios))
		defer batchSpan.End()
		ctx = spanCtx
		_ = tel.Events.PublishBatchStarted(result.BatchID, len(scenarios), workerCount)
	}
	logger.Infof("running %d scenarios on %d workers", len(scenarios), workerCount)

	// Work queue of input indexes
	workQueue := make(chan int, len(scenarios))
	for i := range scenarios {
		workQueue <- i
	}
	close(workQueue)

	var (
		queued   atomic.Int64
		stop     atomic.Bool
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	queued.Store(int64(len(scenarios)))
	setQueued := func() {
		if tel != nil {
			tel.Metrics.SetQueuedScenarios(float64(queued.Load()))
		}
	}
	setQueued()

	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := range workQueue {
				if ctx.Err() != nil || stop.Load() {
					queued.Add(-1)
					continue
				}
				queued.Add(-1)
				setQueued()

				rec, err := b.runner.run(ctx, scenarios[i], result.BatchID)
				result.Records[i] = rec
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("scenario %d (%s): %w", i, scenarios[i].Name, err)
					}
					errMu.Unlock()
				}
				if rec.Err != nil && b.failFast {
					stop.Store(true)
				}
			}
		}()
	}

	wg.Wait()
	setQueued()

	for _, rec := range result.Records {
		switch {
		case rec == nil:
			result.Skipped++
		case rec.Err != nil:
			result.Failed++
		default:
			result.Completed++
		}
	}
	result.Duration = time.Since(start)

	if tel != nil {
		_ = tel.Events.PublishBatchCompleted(result.BatchID, result.Completed, result.Failed, result.Duration)
	}
	logger.Infof("batch finished: %d completed, %d failed, %d skipped", result.Completed, result.Failed, result.Skipped)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, firstErr
}
