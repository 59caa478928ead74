package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nhle/mailtriage/internal/calibration"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/pattern"
	"github.com/nhle/mailtriage/internal/store"
)

var (
	filterSender        string
	filterLabel         string
	filterSource        string
	filterMinConfidence float64
	filterLimit         int
)

func init() {
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(calibrationCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(foldersCmd)

	addFilterFlags(pendingCmd)
}

// addFilterFlags registers the verdict filter flags shared by pending and
// review.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&filterSender, "sender", "", "only this sender address")
	cmd.Flags().StringVar(&filterLabel, "label", "", "only verdicts with this label")
	cmd.Flags().StringVar(&filterSource, "source", "", "only verdicts from this tier: rule, pattern or oracle")
	cmd.Flags().Float64Var(&filterMinConfidence, "min-confidence", 0, "only verdicts at or above this calibrated confidence")
	cmd.Flags().IntVar(&filterLimit, "limit", 0, "show at most N verdicts (0 = all)")
}

// verdictFilter builds a pending-verdict filter from the shared flags.
func verdictFilter() (store.VerdictFilter, error) {
	f := store.VerdictFilter{
		Statuses:      []model.MessageStatus{model.StatusPending},
		Sender:        strings.ToLower(strings.TrimSpace(filterSender)),
		MinConfidence: filterMinConfidence,
		Limit:         filterLimit,
	}
	if filterLabel != "" {
		l, err := model.ParseLabel(filterLabel)
		if err != nil {
			return f, err
		}
		f.Label = l
	}
	switch s := model.Source(filterSource); s {
	case "":
	case model.SourceRule, model.SourcePattern, model.SourceOracle:
		f.Source = s
	default:
		return f, fmt.Errorf("invalid source %q (want rule, pattern or oracle)", filterSource)
	}
	if f.MinConfidence < 0 || f.MinConfidence > 1 {
		return f, fmt.Errorf("--min-confidence must be in [0,1]")
	}
	return f, nil
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending verdicts",
	Long: `List messages whose verdict awaits a decision, highest calibrated
confidence first. This command only reads the database.`,
	Args: cobra.NoArgs,
	RunE: runPending,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Show how well oracle confidence matches decisions",
	Args:  cobra.NoArgs,
	RunE:  runCalibration,
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List learned sender, domain and category patterns",
	Args:  cobra.NoArgs,
	RunE:  runPatterns,
}

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List mailbox folders",
	Args:  cobra.NoArgs,
	RunE:  runFolders,
}

func runPending(cmd *cobra.Command, _ []string) error {
	filter, err := verdictFilter()
	if err != nil {
		return err
	}

	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	items, err := a.store.ListClassified(cmd.Context(), filter)
	if err != nil {
		return err
	}
	return writePending(cmd.OutOrStdout(), items)
}

// writePending prints classified messages as an aligned table.
func writePending(w io.Writer, items []store.ClassifiedMessage) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tCONF\tSOURCE\tRECEIVED\tSENDER\tSUBJECT")
	for _, cm := range items {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%s\t%s\n",
			cm.MessageRecord.ID,
			cm.Verdict.Label,
			cm.Verdict.ConfidenceCalibrated,
			cm.Verdict.Source,
			humanize.Time(cm.MessageRecord.ReceivedAt),
			cm.MessageRecord.Sender,
			truncate(cm.MessageRecord.Subject, 60),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d pending\n", len(items))
	return err
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	s, err := a.store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	return writeStats(cmd.OutOrStdout(), s)
}

// writeStats prints store totals with status, label and tier breakdowns.
func writeStats(w io.Writer, s *store.DBStats) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Messages:  %s (active %s, deleted %s)\n",
		humanize.Comma(int64(s.Messages)),
		humanize.Comma(int64(s.Active())),
		humanize.Comma(int64(s.ByStatus[model.StatusDeleted])),
	)
	fmt.Fprintf(&b, "Status:    pending %d, approved %d, kept %d\n",
		s.ByStatus[model.StatusPending], s.ByStatus[model.StatusApproved], s.ByStatus[model.StatusKept])
	fmt.Fprintf(&b, "Verdicts:  delete %d, keep %d, archive %d\n",
		s.ByLabel[model.LabelDelete], s.ByLabel[model.LabelKeep], s.ByLabel[model.LabelArchive])
	fmt.Fprintf(&b, "Tiers:     rule %d, pattern %d, oracle %d\n",
		s.BySource[model.SourceRule], s.BySource[model.SourcePattern], s.BySource[model.SourceOracle])
	fmt.Fprintf(&b, "Decisions: %s\n", humanize.Comma(int64(s.Decisions)))
	_, err := io.WriteString(w, b.String())
	return err
}

func runCalibration(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	m, err := calibration.Load(cmd.Context(), a.store, a.cfg.Calibration)
	if err != nil {
		return err
	}
	return calibration.WriteReport(cmd.OutOrStdout(), m.Report())
}

func runPatterns(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	d := pattern.NewDetector(a.store, a.cfg.Pattern)
	suggestions, err := d.Suggestions(cmd.Context())
	if err != nil {
		return err
	}
	return writePatterns(cmd.OutOrStdout(), suggestions)
}

// writePatterns prints learned patterns grouped by granularity.
func writePatterns(w io.Writer, suggestions []pattern.Suggestion) error {
	if len(suggestions) == 0 {
		_, err := fmt.Fprintln(w, "No learned patterns yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tKEY\tLABEL\tRATIO\tDECISIONS")
	for _, s := range suggestions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%d\n", s.Granularity, s.Key, s.Label, s.Ratio*100, s.Total)
	}
	return tw.Flush()
}

func runFolders(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	mb, err := a.openMailbox()
	if err != nil {
		return err
	}
	defer mb.Close()

	folders, err := mb.ListFolders(cmd.Context())
	if err != nil {
		return err
	}
	for _, f := range folders {
		marker := "  "
		switch f {
		case a.cfg.Mailbox.Folder:
			marker = "* "
		case a.cfg.Mailbox.TrashFolder:
			marker = "T "
		}
		fmt.Fprintln(cmd.OutOrStdout(), marker+f)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
