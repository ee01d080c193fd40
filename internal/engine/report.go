package engine

import (
	"context"
	"errors"

	"github.com/dealerops/bookout/internal/browser"
)

// errTaskTimeout marks a reference attempt that hit the per-task deadline.
var errTaskTimeout = errors.New("task deadline exceeded")

// classifyError buckets a per-reference failure for metrics and the run
// report. Classes are stable strings; dashboards key on them.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errTaskTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, browser.ErrReferenceNotFound):
		return "not_found"
	case errors.Is(err, browser.ErrNoPopup):
		return "popup"
	case errors.Is(err, browser.ErrSessionLost):
		return "session"
	case errors.Is(err, browser.ErrEmptyDownload):
		return "download"
	default:
		return "other"
	}
}

// Report summarizes the run for the final log line and process exit status.
type Report struct {
	Total      int
	Succeeded  int
	Failed     int
	Remaining  int
	FailedRefs []string
}

// Report builds the end-of-run summary from the queue and tracking store.
func (e *Engine) Report() Report {
	stats := e.queue.Stats()
	return Report{
		Total:      stats.Total,
		Succeeded:  stats.Completed,
		Failed:     stats.Failed,
		Remaining:  stats.Pending + stats.InProgress,
		FailedRefs: e.queue.TerminalFailures(),
	}
}
