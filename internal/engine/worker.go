package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dealerops/bookout/internal/metrics"
)

// worker pulls references off the queue until it drains or the run is
// cancelled. Terminal outcomes are written through to the tracking store and
// checkpoint before the worker moves on, so a crash re-attempts at most the
// in-flight reference rather than losing completed work.
func (e *Engine) worker(ctx context.Context, cancel context.CancelCauseFunc, id int) {
	logger := e.logger.With("worker", id)

	for {
		if ctx.Err() != nil {
			return
		}

		ref, lease, ok := e.queue.Get(id)
		if !ok {
			if e.queue.Stats().Drained() {
				return
			}
			// Another worker may still fail its reference back into pending.
			select {
			case <-time.After(pollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}

		attempt := lease.Attempt

		logger.Info("processing reference", "reference", ref, "attempt", attempt)
		e.recorder.StartReference(ref)

		err := e.process(ctx, id, ref)
		if err == nil {
			e.completeSuccess(ctx, logger, id, ref, attempt)
			continue
		}

		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			// Run shutdown, not a reference failure; the lease stays for the
			// resume pass to pick up.
			return
		}

		e.completeFailure(cancel, logger, id, ref, attempt, err)
	}
}

// process runs the processor under the per-task deadline. A deadline hit
// recovers the worker's resources before returning.
func (e *Engine) process(ctx context.Context, id int, ref string) error {
	taskCtx, cancel := context.WithTimeout(ctx, e.cfg.Run.TaskTimeout())
	defer cancel()

	err := e.processor.Process(taskCtx, id, ref)
	if err != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		e.processor.Recover(ctx, id)
		return errTaskTimeout
	}
	return err
}

// completeSuccess records a successful download. The queue's lease check is
// what keeps success at-most-once: if the watchdog already recovered the
// reference, the stale result is dropped and the books stay consistent.
func (e *Engine) completeSuccess(ctx context.Context, logger *slog.Logger, id int, ref string, attempt int) {
	if !e.queue.Complete(id, ref) {
		logger.Warn("stale completion discarded", "reference", ref)
		e.recorder.EndReference(ref, id, attempt, metrics.StatusRetried, "stale")
		return
	}

	if err := e.tracking.MarkDownloaded(ref); err != nil {
		logger.Warn("failed to persist tracking", "reference", ref, "error", err)
	}
	if err := e.checkpoint.RecordSuccess(ref); err != nil {
		logger.Warn("failed to persist checkpoint", "reference", ref, "error", err)
	}
	e.recorder.EndReference(ref, id, attempt, metrics.StatusSuccess, "")
	logger.Info("reference downloaded", "reference", ref, "attempt", attempt)

	// Politeness pause between portal hits.
	if d := e.cfg.Run.SuccessDelay(); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}
}

// completeFailure records a failed attempt, requeueing while retries remain.
func (e *Engine) completeFailure(cancel context.CancelCauseFunc, logger *slog.Logger, id int, ref string, attempt int, cause error) {
	class := classifyError(cause)

	handled, terminal := e.queue.Fail(id, ref, e.cfg.Run.MaxRetries)
	if !handled {
		logger.Warn("stale failure discarded", "reference", ref, "error", cause)
		e.recorder.EndReference(ref, id, attempt, metrics.StatusRetried, "stale")
		return
	}

	if !terminal {
		logger.Warn("reference attempt failed, requeued",
			"reference", ref, "attempt", attempt, "class", class, "error", cause)
		e.recorder.EndReference(ref, id, attempt, metrics.StatusRetried, class)
		return
	}

	logger.Error("reference failed terminally",
		"reference", ref, "attempts", attempt, "class", class, "error", cause)
	if err := e.tracking.MarkFailed(ref); err != nil {
		logger.Warn("failed to persist tracking", "reference", ref, "error", err)
	}
	if err := e.checkpoint.RecordFailure(ref); err != nil {
		logger.Warn("failed to persist checkpoint", "reference", ref, "error", err)
	}
	e.recorder.EndReference(ref, id, attempt, metrics.StatusFailed, class)

	e.abortIfStuck(cancel)
}
