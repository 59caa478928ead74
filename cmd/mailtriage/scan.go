package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/calibration"
	"github.com/nhle/mailtriage/internal/credential"
	"github.com/nhle/mailtriage/internal/oracle"
	"github.com/nhle/mailtriage/internal/pattern"
	"github.com/nhle/mailtriage/internal/pipeline"
	"github.com/nhle/mailtriage/internal/rules"
)

var (
	scanFolder      string
	scanDays        int
	scanSince       string
	scanBefore      string
	scanLimit       int
	scanNewestFirst bool
	scanRescan      bool
	scanNoOracle    bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanFolder, "folder", "", "folder to scan (defaults to mailbox.folder)")
	scanCmd.Flags().IntVar(&scanDays, "days", 0, "only messages received in the last N days")
	scanCmd.Flags().StringVar(&scanSince, "since", "", "only messages received on or after YYYY-MM-DD")
	scanCmd.Flags().StringVar(&scanBefore, "before", "", "only messages received before YYYY-MM-DD")
	scanCmd.Flags().IntVar(&scanLimit, "limit", 0, "classify at most N messages (0 = no limit)")
	scanCmd.Flags().BoolVar(&scanNewestFirst, "newest-first", false, "process newest messages first")
	scanCmd.Flags().BoolVar(&scanRescan, "rescan", false, "reclassify messages that already have a verdict")
	scanCmd.Flags().BoolVar(&scanNoOracle, "no-oracle", false, "use only rules and learned patterns")
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Fetch and classify messages",
	Long: `Fetch messages from the mailbox and classify each one through the rule,
pattern and oracle tiers. Messages that already have a verdict are skipped
unless --rescan is given.

Examples:
  # Classify the last two weeks of INBOX
  mailtriage scan --days 14

  # Classify 50 of the newest unclassified messages without the oracle
  mailtriage scan --limit 50 --newest-first --no-oracle`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, _ []string) error {
	since, before, err := scanWindow(scanDays, scanSince, scanBefore, time.Now())
	if err != nil {
		return err
	}

	a, err := setup(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()
	a.export = true

	ctx := cmd.Context()
	p, err := a.buildPipeline(ctx, !scanNoOracle)
	if err != nil {
		return err
	}

	mb, err := a.openMailbox()
	if err != nil {
		return err
	}
	defer mb.Close()

	folder := scanFolder
	if folder == "" {
		folder = a.cfg.Mailbox.Folder
	}

	scanner := pipeline.NewScanner(mb, a.store, p, a.logger)
	stats, scanErr := scanner.Scan(ctx, pipeline.ScanOptions{
		Folder:      folder,
		Since:       since,
		Before:      before,
		Limit:       scanLimit,
		NewestFirst: scanNewestFirst,
		Rescan:      scanRescan,
	})
	a.stats = stats

	if err := writeScanSummary(cmd.OutOrStdout(), stats); err != nil {
		return err
	}
	return scanErr
}

// buildPipeline assembles the tiers in order: rules, learned patterns and,
// when enabled, the calibrated oracle.
func (a *app) buildPipeline(ctx context.Context, withOracle bool) (*pipeline.Pipeline, error) {
	tiers := []pipeline.Tier{
		pipeline.NewRuleTier(rules.New(rules.DefaultRules(a.cfg.Rules), a.logger)),
		pipeline.NewPatternTier(pattern.NewDetector(a.store, a.cfg.Pattern)),
	}
	if !withOracle {
		return pipeline.New(a.logger, tiers...), nil
	}

	var apiKey string
	if a.cfg.Oracle.Provider == "anthropic" {
		key, err := credential.Lookup(a.cfg.Oracle.APIKeyName)
		if err != nil {
			return nil, fmt.Errorf("reading oracle API key: %w", err)
		}
		apiKey = key
	}

	orc, err := oracle.New(a.cfg.Oracle, apiKey)
	if err != nil {
		return nil, err
	}
	cal, err := calibration.Load(ctx, a.store, a.cfg.Calibration)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("oracle enabled",
		zap.String("provider", a.cfg.Oracle.Provider),
		zap.String("model", orc.Model()),
	)

	tiers = append(tiers, pipeline.NewOracleTier(pipeline.OracleTierConfig{
		Oracle:        orc,
		Exemplars:     a.store,
		MaxExemplars:  a.cfg.Oracle.Exemplars,
		RatePerMinute: a.cfg.Oracle.RatePerMinute,
		Calibration:   cal,
		Logger:        a.logger,
	}))
	return pipeline.New(a.logger, tiers...), nil
}

// scanWindow turns the date flags into search bounds. --days and --since
// are mutually exclusive; dates are UTC calendar days.
func scanWindow(days int, since, before string, now time.Time) (time.Time, time.Time, error) {
	var from, to time.Time

	if days < 0 {
		return from, to, fmt.Errorf("--days must not be negative")
	}
	if days > 0 && since != "" {
		return from, to, fmt.Errorf("--days and --since cannot be combined")
	}

	if days > 0 {
		y, m, d := now.UTC().AddDate(0, 0, -days).Date()
		from = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	if since != "" {
		t, err := time.Parse(time.DateOnly, since)
		if err != nil {
			return from, to, fmt.Errorf("parsing --since: %w", err)
		}
		from = t
	}
	if before != "" {
		t, err := time.Parse(time.DateOnly, before)
		if err != nil {
			return from, to, fmt.Errorf("parsing --before: %w", err)
		}
		to = t
	}

	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return from, to, fmt.Errorf("empty date window: since %s is not before %s",
			from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return from, to, nil
}
