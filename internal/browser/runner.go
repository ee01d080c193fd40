package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/avast/retry-go/v4"

	"github.com/dealerops/bookout/internal/config"
	"github.com/dealerops/bookout/internal/rundir"
	"github.com/dealerops/bookout/internal/state"
)

// Runner executes the per-reference download procedure against the portal.
// It keeps one tab per worker, lazily created in the shared session, and
// satisfies the engine's Processor contract.
type Runner struct {
	session *Session
	cfg     *config.Config
	dir     *rundir.Dir
	logger  *slog.Logger

	mu   sync.Mutex
	tabs map[int]*Tab
}

// NewRunner creates a runner over an already logged-in session.
func NewRunner(session *Session, cfg *config.Config, dir *rundir.Dir, logger *slog.Logger) *Runner {
	return &Runner{
		session: session,
		cfg:     cfg,
		dir:     dir,
		logger:  logger.With("component", "runner"),
		tabs:    make(map[int]*Tab),
	}
}

// Process downloads the bookout PDF for ref on workerID's tab and writes it
// into the run's pdfs directory. Any error leaves the tab recovered or
// discarded, so a retry starts clean.
func (r *Runner) Process(ctx context.Context, workerID int, ref string) error {
	tab, err := r.tab(ctx, workerID)
	if err != nil {
		return err
	}

	if err := r.locate(ctx, tab, ref); err != nil {
		return r.afterFailure(ctx, workerID, tab, err)
	}

	if err := tab.OpenBookout(); err != nil {
		return r.afterFailure(ctx, workerID, tab, err)
	}

	data, err := tab.DownloadPDF(ctx)
	if err != nil {
		return r.afterFailure(ctx, workerID, tab, err)
	}

	if err := state.WriteFileAtomic(r.dir.PDFPath(ref), data, 0o644); err != nil {
		return fmt.Errorf("failed to write pdf for %s: %w", ref, err)
	}

	if err := tab.BackToInventory(); err != nil {
		// The PDF is on disk; a navigation failure only dirties the tab.
		r.logger.Warn("tab reset after download failed", "worker", workerID, "error", err)
		r.dropTab(workerID)
	}
	return nil
}

// locate filters the grid for ref, retrying transient grid failures. A
// missing reference or lost session is not retried here.
func (r *Runner) locate(ctx context.Context, tab *Tab, ref string) error {
	return retry.Do(
		func() error {
			return tab.FilterByReference(ref)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrReferenceNotFound) && !errors.Is(err, ErrSessionLost)
		}),
	)
}

// afterFailure restores the tab (or the whole session) so the queue's retry
// of ref starts from a clean grid. The original error is always returned.
func (r *Runner) afterFailure(ctx context.Context, workerID int, tab *Tab, cause error) error {
	if errors.Is(cause, ErrSessionLost) {
		if err := r.session.Relogin(ctx); err != nil {
			r.logger.Error("session recovery failed", "error", err)
		}
		r.dropTab(workerID)
		return cause
	}

	if err := tab.Recover(ctx); err != nil {
		r.logger.Warn("tab recovery failed, discarding tab", "worker", workerID, "error", err)
		r.dropTab(workerID)
	}
	return cause
}

// Recover resets workerID's tab after the engine cancelled its task. Called
// by the worker itself when its context deadline fired mid-procedure.
func (r *Runner) Recover(ctx context.Context, workerID int) {
	r.mu.Lock()
	tab, ok := r.tabs[workerID]
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := tab.Recover(ctx); err != nil {
		r.logger.Warn("tab recovery failed, discarding tab", "worker", workerID, "error", err)
		r.dropTab(workerID)
	}
}

// Close closes every worker tab. The session itself is closed by the caller.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, tab := range r.tabs {
		tab.Close()
		delete(r.tabs, id)
	}
}

// tab returns workerID's tab, creating it on first use.
func (r *Runner) tab(ctx context.Context, workerID int) (*Tab, error) {
	r.mu.Lock()
	tab, ok := r.tabs[workerID]
	r.mu.Unlock()
	if ok {
		return tab, nil
	}

	tab, err := r.session.NewTab(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open tab for worker %d: %w", workerID, err)
	}
	r.mu.Lock()
	r.tabs[workerID] = tab
	r.mu.Unlock()
	r.logger.Info("opened worker tab", "worker", workerID)
	return tab, nil
}

// dropTab closes and forgets workerID's tab; the next Process call opens a
// fresh one.
func (r *Runner) dropTab(workerID int) {
	r.mu.Lock()
	tab, ok := r.tabs[workerID]
	delete(r.tabs, workerID)
	r.mu.Unlock()
	if ok {
		tab.Close()
	}
}
