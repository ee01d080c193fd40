// Package engine orchestrates a download run: it seeds the task queue from
// the tracking store, fans references out to workers, supervises them with a
// watchdog, and records progress into the tracking, checkpoint, and metrics
// stores as terminal outcomes land.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dealerops/bookout/internal/config"
	"github.com/dealerops/bookout/internal/metrics"
	"github.com/dealerops/bookout/internal/queue"
	"github.com/dealerops/bookout/internal/state"
)

// ErrRunStuck is the cancellation cause when too many consecutive references
// fail terminally, which almost always means the portal session or site is
// broken rather than the individual vehicles.
var ErrRunStuck = errors.New("run aborted: too many consecutive failures")

// Processor executes the portal procedure for one reference. Implementations
// must be safe for concurrent use by distinct worker IDs.
type Processor interface {
	// Process downloads the PDF for ref and persists it. A nil return means
	// the PDF is on disk.
	Process(ctx context.Context, workerID int, ref string) error
	// Recover resets workerID's resources after Process was cancelled
	// mid-flight.
	Recover(ctx context.Context, workerID int)
}

// Engine runs the worker pool over a seeded queue.
type Engine struct {
	cfg        *config.Config
	logger     *slog.Logger
	queue      *queue.TaskQueue
	tracking   *state.Tracking
	checkpoint *state.Checkpoint
	recorder   *metrics.Recorder
	processor  Processor

	workers int
}

// New assembles an engine. The queue must already be seeded with the pending
// references for this run.
func New(cfg *config.Config, logger *slog.Logger, q *queue.TaskQueue, tr *state.Tracking,
	cp *state.Checkpoint, rec *metrics.Recorder, p Processor) *Engine {

	workers := cfg.Run.ConcurrentContexts
	if workers < 1 {
		workers = 1
	}
	if workers > 7 {
		// More tabs than this and the shared popup gate dominates: workers
		// spend their time queued on the gate, not downloading.
		logger.Warn("high worker count yields diminishing returns past the popup gate",
			"workers", workers)
	}

	return &Engine{
		cfg:        cfg,
		logger:     logger.With("component", "engine"),
		queue:      q,
		tracking:   tr,
		checkpoint: cp,
		recorder:   rec,
		processor:  p,
		workers:    workers,
	}
}

// Run processes the queue to drain or cancellation. It returns nil on a clean
// drain, ErrRunStuck when the consecutive-failure threshold tripped, or the
// context's cancellation cause.
func (e *Engine) Run(ctx context.Context) error {
	stats := e.queue.Stats()
	e.logger.Info("starting run",
		"pending", stats.Pending,
		"workers", e.workers,
		"max_retries", e.cfg.Run.MaxRetries)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var workers sync.WaitGroup
	for i := 1; i <= e.workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			e.worker(runCtx, cancel, id)
		}(i)
	}

	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		e.watchdog(runCtx, cancel)
	}()

	workers.Wait()
	// Workers are done; wake the watchdog out of its tick wait.
	cancel(nil)
	<-watchdogDone

	if err := context.Cause(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !e.queue.Stats().Drained() {
		return fmt.Errorf("run ended before queue drained")
	}
	return nil
}

// Stats exposes a live queue snapshot for progress reporting.
func (e *Engine) Stats() queue.Stats {
	return e.queue.Stats()
}

// Workers returns the worker pool size.
func (e *Engine) Workers() int {
	return e.workers
}

// abortIfStuck cancels the run when the checkpoint shows the configured
// number of consecutive terminal failures.
func (e *Engine) abortIfStuck(cancel context.CancelCauseFunc) {
	threshold := e.cfg.Run.StuckRunThreshold
	if threshold <= 0 {
		return
	}
	if e.checkpoint.IsStuck(threshold) {
		e.logger.Error("aborting run",
			"consecutive_failures", threshold,
			"reason", "portal is likely rejecting every request")
		cancel(ErrRunStuck)
	}
}

// pollInterval is how long an idle worker waits before re-checking the queue
// while other workers still hold in-progress references.
const pollInterval = 500 * time.Millisecond
