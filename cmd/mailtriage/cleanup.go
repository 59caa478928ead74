package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mailtriage/internal/cleanup"
	"github.com/nhle/mailtriage/internal/feedback"
	"github.com/nhle/mailtriage/internal/mailbox"
)

var (
	cleanupDryRun        bool
	cleanupAutoDelete    bool
	cleanupMinConfidence float64
)

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "list what would be moved without touching the mailbox")
	cleanupCmd.Flags().BoolVar(&cleanupAutoDelete, "auto-delete", false, "move pending delete verdicts above --min-confidence instead of approved ones")
	cleanupCmd.Flags().Float64Var(&cleanupMinConfidence, "min-confidence", 0, "auto-delete threshold (defaults to cleanup.min_confidence)")
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Move approved deletions to the trash folder",
	Long: `Move messages with an approved delete decision to the trash folder.
With --auto-delete, pending delete verdicts at or above the confidence
threshold are moved instead and an automatic decision is recorded.

Messages are never expunged. The command exits non-zero when any move
fails.

Examples:
  # Preview the approved deletions
  mailtriage cleanup --dry-run

  # Move high-confidence delete verdicts without review
  mailtriage cleanup --auto-delete --min-confidence 0.97`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()
	a.export = true

	opts := cleanup.Options{
		DryRun:        cleanupDryRun,
		AutoDelete:    cleanupAutoDelete,
		MinConfidence: a.cfg.Cleanup.MinConfidence,
		TrashFolder:   a.cfg.Mailbox.TrashFolder,
	}
	if cmd.Flags().Changed("min-confidence") {
		opts.MinConfidence = cleanupMinConfidence
	}

	var mb mailbox.Mailbox
	if !opts.DryRun {
		mb, err = a.openMailbox()
		if err != nil {
			return err
		}
		defer mb.Close()
	}

	rec := feedback.NewRecorder(a.store, a.cfg.Calibration, a.logger)
	wf := cleanup.NewWorkflow(mb, a.store, rec, a.logger)

	res, runErr := wf.Execute(cmd.Context(), opts, a.stats)
	if res != nil {
		if err := cleanup.FormatPlan(cmd.OutOrStdout(), res.Planned, opts); err != nil {
			return err
		}
	}
	if err := writeCleanupSummary(cmd.OutOrStdout(), a.stats, opts.DryRun); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if !res.OK() {
		return fmt.Errorf("%d of %d moves failed", res.Failed, len(res.Planned))
	}
	return nil
}
