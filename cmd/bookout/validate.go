package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealerops/bookout/internal/config"
	"github.com/dealerops/bookout/internal/rundir"
	"github.com/dealerops/bookout/internal/state"
	"github.com/dealerops/bookout/internal/validate"
)

var validateRepair bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the PDFs downloaded by today's run",
	Long: `Check every PDF in today's run directory: each file must be a valid PDF
and must contain the reference number it is named after.

With --delete-mismatched, invalid PDFs are removed and their tracking entries
reset to pending so the next run re-downloads them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		dir, err := rundir.Resolve(cfg.Run.DownloadRoot, time.Now(), true)
		if err != nil {
			return err
		}
		logger.Info("validating run directory", "path", dir.Path())

		summary, err := validate.Dir(dir, logger)
		if err != nil {
			return err
		}
		logger.Info("validation complete",
			"checked", summary.Checked,
			"valid", summary.Valid,
			"invalid", summary.Invalid)

		if summary.Invalid > 0 && validateRepair {
			tracking, err := state.LoadTracking(dir.TrackingPath())
			if err != nil {
				return err
			}
			if err := validate.Repair(dir, tracking, summary.Problems, logger); err != nil {
				return err
			}
			logger.Info("invalid pdfs queued for re-download", "count", summary.Invalid)
			return nil
		}

		if summary.Invalid > 0 {
			return fmt.Errorf("%d invalid pdf(s); rerun with --delete-mismatched to repair", summary.Invalid)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateRepair, "delete-mismatched", false,
		"Delete invalid PDFs and reset their tracking entries to pending")

	rootCmd.AddCommand(validateCmd)
}
