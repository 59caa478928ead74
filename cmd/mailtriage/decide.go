package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mailtriage/internal/feedback"
	"github.com/nhle/mailtriage/internal/model"
)

var decideNotes string

func init() {
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(approveSenderCmd)

	decideCmd.Flags().StringVar(&decideNotes, "notes", "", "free-form note stored with the decision")
	approveSenderCmd.Flags().StringVar(&decideNotes, "notes", "", "free-form note stored with each decision")
}

var decideCmd = &cobra.Command{
	Use:   "decide <message-id> <keep|delete|archive>",
	Short: "Record a decision for one message",
	Long: `Confirm or override the verdict of a single message. The decision
updates the sender, domain and category profiles and, for oracle verdicts,
the calibration buckets.

Examples:
  mailtriage decide INBOX/4211 delete
  mailtriage decide INBOX/4212 keep --notes "receipt"`,
	Args: cobra.ExactArgs(2),
	RunE: runDecide,
}

var approveSenderCmd = &cobra.Command{
	Use:   "approve-sender <address>",
	Short: "Accept every pending verdict from a sender",
	Long: `Record a decision agreeing with the current verdict of every pending
message from the given sender address.

Examples:
  mailtriage approve-sender deals@shop.example`,
	Args: cobra.ExactArgs(1),
	RunE: runApproveSender,
}

func runDecide(cmd *cobra.Command, args []string) error {
	label, err := model.ParseLabel(args[1])
	if err != nil {
		return err
	}

	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	rec := feedback.NewRecorder(a.store, a.cfg.Calibration, a.logger)
	d, err := rec.Record(cmd.Context(), feedback.Input{
		MessageID: args[0],
		Label:     label,
		Notes:     decideNotes,
	})
	if err != nil {
		return err
	}

	agreement := "override"
	if d.Agreed() {
		agreement = "agreed"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s recorded (verdict %s via %s, %s)\n",
		d.MessageID, d.ApprovedLabel, d.VerdictLabel, d.VerdictSource, agreement)
	return err
}

func runApproveSender(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	rec := feedback.NewRecorder(a.store, a.cfg.Calibration, a.logger)
	n, err := rec.ApproveSender(cmd.Context(), args[0], decideNotes)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Approved %d pending verdicts from %s\n", n, args[0])
	return err
}
