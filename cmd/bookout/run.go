package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dealerops/bookout/internal/browser"
	"github.com/dealerops/bookout/internal/config"
	"github.com/dealerops/bookout/internal/engine"
	"github.com/dealerops/bookout/internal/inventory"
	"github.com/dealerops/bookout/internal/metrics"
	"github.com/dealerops/bookout/internal/queue"
	"github.com/dealerops/bookout/internal/rundir"
	"github.com/dealerops/bookout/internal/state"
)

var (
	runMaxDownloads int
	runWorkers      int
	runHeadful      bool
	runFresh        bool
	runNoProgress   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Download bookout PDFs for the current inventory",
	Long: `Log into the portal, export the inventory, and download the bookout PDF
for every reference not yet downloaded.

Re-running on the same day resumes the day's run directory: references already
downloaded are skipped and previously failed ones are retried.

Examples:
  bookout run                      # Full run with config defaults
  bookout run --max-downloads 10   # Smoke test on the first 10 references
  bookout run --workers 3          # Smaller tab pool
  bookout run --fresh              # Start a new run directory for today`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()
		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		// Settings are snapshotted per run; an edit to the config file while
		// a run is in flight is surfaced so the operator knows it only takes
		// effect on the next invocation.
		cm.OnChange(func(*config.Config) {
			logger.Info("configuration file changed; new settings apply to the next run")
		})
		cm.WatchConfig()

		runID := uuid.New().String()
		logger = logger.With("run_id", runID)

		dir, err := rundir.Resolve(cfg.Run.DownloadRoot, time.Now(), cfg.Run.Resume)
		if err != nil {
			return err
		}
		if err := dir.EnsureExists(); err != nil {
			return err
		}
		logger.Info("run directory resolved", "path", dir.Path(), "resume", cfg.Run.Resume)

		recorder := metrics.NewRecorder(runID)
		recorder.AddMetadata("workers", strconv.Itoa(cfg.Run.ConcurrentContexts))
		recorder.AddMetadata("max_downloads", strconv.Itoa(cfg.Run.MaxDownloads))
		recorder.AddMetadata("max_retries", strconv.Itoa(cfg.Run.MaxRetries))
		recorder.AddMetadata("headless", strconv.FormatBool(cfg.Browser.Headless))

		// Browser bring-up and login.
		stopStep := recorder.TrackStep("browser_launch")
		session, err := browser.NewSession(cfg, logger)
		stopStep()
		if err != nil {
			return err
		}
		defer session.Close()

		stopStep = recorder.TrackStep("login")
		err = session.Login(ctx)
		stopStep()
		if err != nil {
			return err
		}
		defer session.Logout(ctx)

		// Inventory export.
		stopStep = recorder.TrackStep("inventory_export")
		refs, err := exportInventory(ctx, session, dir, cfg)
		stopStep()
		if err != nil {
			return err
		}
		logger.Info("inventory loaded", "references", len(refs))

		// Durable state.
		tracking, err := state.LoadTracking(dir.TrackingPath())
		if err != nil {
			return err
		}
		if err := tracking.Reconcile(refs, dir.HasPDF); err != nil {
			return err
		}
		checkpoint, err := state.LoadCheckpoint(dir.CheckpointPath(), runID)
		if err != nil {
			return err
		}

		pending := tracking.Pending(refs)
		if cfg.Run.MaxDownloads > 0 && len(pending) > cfg.Run.MaxDownloads {
			pending = pending[:cfg.Run.MaxDownloads]
		}

		downloaded, failed, _ := tracking.Counts()
		logger.Info("run plan",
			"inventory", len(refs),
			"already_downloaded", downloaded,
			"previously_failed", failed,
			"to_process", len(pending))

		if len(pending) == 0 {
			logger.Info("nothing to download")
			recorder.Finalize(len(refs), 0, 0, 0)
			return recorder.Save(dir.MetricsPath())
		}

		// Engine.
		runner := browser.NewRunner(session, cfg, dir, logger)
		defer runner.Close()

		q := queue.New(pending)
		eng := engine.New(cfg, logger, q, tracking, checkpoint, recorder, runner)

		stopProgress := startProgress(eng, runNoProgress)
		runErr := eng.Run(ctx)
		stopProgress()

		// Report and metrics regardless of outcome.
		report := eng.Report()
		cp := checkpoint.Snapshot()
		recorder.Finalize(len(refs), cp.Attempted, cp.Succeeded, cp.Failed)
		if err := recorder.Save(dir.MetricsPath()); err != nil {
			logger.Warn("failed to save metrics", "error", err)
		}

		logger.Info("run finished",
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"remaining", report.Remaining)
		for _, ref := range report.FailedRefs {
			logger.Warn("failed reference", "reference", ref)
		}
		logEstimate(logger, recorder, eng, len(refs))

		if runErr != nil {
			if errors.Is(runErr, engine.ErrRunStuck) {
				return runErr
			}
			return fmt.Errorf("run did not complete: %w", runErr)
		}
		return nil
	},
}

// applyRunFlags overlays explicit command-line flags onto the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("max-downloads") {
		cfg.Run.MaxDownloads = runMaxDownloads
	}
	if cmd.Flags().Changed("workers") {
		cfg.Run.ConcurrentContexts = runWorkers
	}
	if cmd.Flags().Changed("headful") {
		cfg.Browser.Headless = !runHeadful
	}
	if cmd.Flags().Changed("fresh") {
		cfg.Run.Resume = !runFresh
	}
}

// exportInventory downloads the inventory CSV into the run directory and
// parses the reference numbers out of it.
func exportInventory(ctx context.Context, session *browser.Session, dir *rundir.Dir, cfg *config.Config) ([]string, error) {

	downloaded, err := session.ExportInventory(ctx, dir.DataDir())
	if err != nil {
		return nil, err
	}
	if downloaded != dir.InventoryCSVPath() {
		if err := os.Rename(downloaded, dir.InventoryCSVPath()); err != nil {
			return nil, fmt.Errorf("failed to move inventory export: %w", err)
		}
	}
	return inventory.References(dir.InventoryCSVPath(), cfg.Portal.ReferenceColumn)
}

// startProgress renders a progress bar polled from the queue. Returns a stop
// function; a no-op when disabled.
func startProgress(eng *engine.Engine, disabled bool) func() {
	if disabled {
		return func() {}
	}

	stats := eng.Stats()
	bar := pb.StartNew(stats.Total)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s := eng.Stats()
				bar.SetCurrent(int64(s.Completed + s.Failed))
			}
		}
	}()
	return func() {
		close(done)
		s := eng.Stats()
		bar.SetCurrent(int64(s.Completed + s.Failed))
		bar.Finish()
	}
}

// logEstimate reports observed throughput and a projection to the full
// inventory, which is what operators ask first on large dealerships.
func logEstimate(logger *slog.Logger, recorder *metrics.Recorder, eng *engine.Engine, total int) {
	avg, ok := recorder.AverageSuccessSeconds()
	if !ok {
		return
	}
	logger.Info("observed throughput", "avg_seconds_per_pdf", fmt.Sprintf("%.1f", avg))
	if est, ok := recorder.EstimateSeconds(total, eng.Workers()); ok {
		logger.Info("full inventory projection",
			"references", total,
			"estimated", (time.Duration(est) * time.Second).Round(time.Minute).String())
	}
}

func init() {
	runCmd.Flags().IntVar(&runMaxDownloads, "max-downloads", 0, "Cap on references processed this run (0 = all)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Number of worker tabs")
	runCmd.Flags().BoolVar(&runHeadful, "headful", false, "Show the browser window")
	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "Start a new run directory instead of resuming today's")
	runCmd.Flags().BoolVar(&runNoProgress, "no-progress", false, "Disable the progress bar")

	rootCmd.AddCommand(runCmd)
}
