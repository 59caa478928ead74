package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/nhle/mailtriage/internal/model"
)

// writeScanSummary prints the scan counters and the tier breakdown.
func writeScanSummary(w io.Writer, s *model.RunStatistics) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Scan: fetched %d, classified %d, already classified %d\n",
		s.Fetched, s.Classified, s.Skipped)
	fmt.Fprintf(&b, "  tiers: rule %d, pattern %d, oracle %d\n",
		s.TierCounts[model.SourceRule],
		s.TierCounts[model.SourcePattern],
		s.TierCounts[model.SourceOracle],
	)
	if len(s.RuleHits) > 0 {
		parts := make([]string, 0, len(s.RuleHits))
		for _, name := range s.RuleNames() {
			parts = append(parts, fmt.Sprintf("%s %d", name, s.RuleHits[name]))
		}
		fmt.Fprintf(&b, "  rule hits: %s\n", strings.Join(parts, ", "))
	}
	if len(s.CalibrationDeltas) > 0 {
		fmt.Fprintf(&b, "  calibration: %d oracle verdicts adjusted by %+.3f on average\n",
			len(s.CalibrationDeltas), -s.MeanCalibrationDelta())
	}
	if s.OracleFailures+s.FetchFailures+s.RuleFaults > 0 {
		fmt.Fprintf(&b, "  failures: oracle %d, fetch %d, rule %d\n",
			s.OracleFailures, s.FetchFailures, s.RuleFaults)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// writeCleanupSummary prints the cleanup counters.
func writeCleanupSummary(w io.Writer, s *model.RunStatistics, dryRun bool) error {
	if dryRun {
		_, err := fmt.Fprintf(w, "Cleanup (dry run): %d planned, nothing moved\n", s.CleanupPlanned)
		return err
	}
	_, err := fmt.Fprintf(w, "Cleanup: %d planned, %d moved, %d failed\n",
		s.CleanupPlanned, s.CleanupExecuted, s.CleanupFailed)
	return err
}

// writeSyncSummary prints the reconciliation counters.
func writeSyncSummary(w io.Writer, s *model.RunStatistics) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync: checked %d active, %d deleted\n", s.CheckedActive, s.CheckedDeleted)
	fmt.Fprintf(&b, "  missing on server: %d (marked deleted %d)\n", s.MissingOnServer, s.MarkedDeleted)
	fmt.Fprintf(&b, "  restored: %d\n", s.Restored)
	fmt.Fprintf(&b, "  errors: %d\n", s.ReconcileErrors)
	if s.Pruned > 0 {
		fmt.Fprintf(&b, "  pruned: %d\n", s.Pruned)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
