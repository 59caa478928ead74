package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/mailtriage/internal/feedback"
	"github.com/nhle/mailtriage/internal/review"
)

func init() {
	rootCmd.AddCommand(reviewCmd)
	addFilterFlags(reviewCmd)
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review pending verdicts interactively",
	Long: `Open the terminal reviewer over pending verdicts. Accept a verdict
with y, or override it with d (delete), n (keep) or a (archive). Press ?
for all keys.

Examples:
  mailtriage review
  mailtriage review --label delete --min-confidence 0.8`,
	Args: cobra.NoArgs,
	RunE: runReview,
}

func runReview(cmd *cobra.Command, _ []string) error {
	filter, err := verdictFilter()
	if err != nil {
		return err
	}

	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	rec := feedback.NewRecorder(a.store, a.cfg.Calibration, a.logger)
	m := review.New(ctx, a.store, rec, filter, 0, 0)

	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("running reviewer: %w", err)
	}
	if rm, ok := final.(review.Model); ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Review:", rm.Summary())
	}
	return nil
}
