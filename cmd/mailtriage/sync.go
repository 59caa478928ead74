package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/reconcile"
)

var (
	syncFolder    string
	syncPruneDays int
	syncAssumeYes bool
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&syncFolder, "folder", "", "folder to reconcile (defaults to mailbox.folder)")
	syncCmd.Flags().IntVar(&syncPruneDays, "cleanup-older-than", 0, "also remove deleted records older than N days from the database")
	syncCmd.Flags().BoolVar(&syncAssumeYes, "yes", false, "do not ask before pruning")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile stored status with the mailbox",
	Long: `Compare stored messages with what is actually on the server. Records
missing from the server are marked deleted; deleted records that reappear
are restored to pending. The mailbox itself is never modified.

With --cleanup-older-than, deleted records older than N days are removed
from the database after confirmation.

Examples:
  # Reconcile INBOX
  mailtriage sync

  # Reconcile and drop records deleted more than 90 days ago
  mailtriage sync --cleanup-older-than 90 --yes`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, _ []string) error {
	if syncPruneDays < 0 {
		return fmt.Errorf("--cleanup-older-than must not be negative")
	}

	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()
	a.export = true

	mb, err := a.openMailbox()
	if err != nil {
		return err
	}
	defer mb.Close()

	folder := syncFolder
	if folder == "" {
		folder = a.cfg.Mailbox.Folder
	}

	ctx := cmd.Context()
	engine := reconcile.NewEngine(mb, a.store, a.logger)
	if _, err := engine.Reconcile(ctx, folder, a.stats); err != nil {
		_ = writeSyncSummary(cmd.OutOrStdout(), a.stats)
		return err
	}

	if syncPruneDays > 0 {
		if err := prune(cmd, a, engine); err != nil {
			_ = writeSyncSummary(cmd.OutOrStdout(), a.stats)
			return err
		}
	}

	return writeSyncSummary(cmd.OutOrStdout(), a.stats)
}

func prune(cmd *cobra.Command, a *app, engine *reconcile.Engine) error {
	ctx := cmd.Context()

	candidates, err := engine.PruneCandidates(ctx, syncPruneDays)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No deleted records older than %d days.\n", syncPruneDays)
		return nil
	}

	if !syncAssumeYes {
		var confirmed bool
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Remove %d deleted records older than %d days?", len(candidates), syncPruneDays)).
			Description("Verdicts and decisions for these records are removed too. The mailbox is not touched.").
			Affirmative("Remove").
			Negative("Keep").
			Value(&confirmed).
			Run()
		if err != nil {
			return fmt.Errorf("confirming prune: %w", err)
		}
		if !confirmed {
			a.logger.Info("prune cancelled", zap.Int("candidates", len(candidates)))
			return nil
		}
	}

	_, err = engine.PruneOlderThan(ctx, syncPruneDays, a.stats)
	return err
}
