package engine

import (
	"context"
	"time"
)

// watchdog periodically recovers stuck references and logs queue progress.
// It exits when the queue drains or the run is cancelled.
func (e *Engine) watchdog(ctx context.Context, cancel context.CancelCauseFunc) {
	logger := e.logger.With("component", "watchdog")

	interval := e.cfg.Run.WatchdogInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, ref := range e.queue.Stuck(e.cfg.Run.StuckThreshold()) {
			workerID, ok := e.queue.Recover(ref)
			if !ok {
				continue
			}
			logger.Warn("recovered stuck reference",
				"reference", ref, "worker", workerID,
				"threshold", e.cfg.Run.StuckThreshold())
		}

		stats := e.queue.Stats()
		logger.Info("queue status",
			"pending", stats.Pending,
			"in_progress", stats.InProgress,
			"completed", stats.Completed,
			"failed", stats.Failed,
			"total", stats.Total)

		if stats.Drained() {
			return
		}
	}
}
