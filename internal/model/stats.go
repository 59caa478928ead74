package model

import "sort"

// RunStatistics collects counters for one command run. It is passed
// explicitly through scan, cleanup and sync; nothing here is global.
type RunStatistics struct {
	// Scan
	Fetched        int            `json:"fetched"`
	Skipped        int            `json:"skipped"`
	Classified     int            `json:"classified"`
	TierCounts     map[Source]int `json:"tier_counts"`
	RuleHits       map[string]int `json:"rule_hits"`
	RuleFaults     int            `json:"rule_faults"`
	OracleFailures int            `json:"oracle_failures"`
	FetchFailures  int            `json:"fetch_failures"`

	// CalibrationDeltas holds raw minus calibrated for each adjusted verdict.
	CalibrationDeltas []float64 `json:"calibration_deltas"`

	// Cleanup
	CleanupPlanned  int `json:"cleanup_planned"`
	CleanupExecuted int `json:"cleanup_executed"`
	CleanupFailed   int `json:"cleanup_failed"`

	// Reconcile
	CheckedActive   int `json:"checked_active"`
	CheckedDeleted  int `json:"checked_deleted"`
	MissingOnServer int `json:"missing_on_server"`
	MarkedDeleted   int `json:"marked_deleted"`
	Restored        int `json:"restored"`
	ReconcileErrors int `json:"reconcile_errors"`
	Pruned          int `json:"pruned"`
}

// NewRunStatistics returns statistics with initialized maps.
func NewRunStatistics() *RunStatistics {
	return &RunStatistics{
		TierCounts: make(map[Source]int),
		RuleHits:   make(map[string]int),
	}
}

// RecordRuleHit increments the hit counter for a rule.
func (s *RunStatistics) RecordRuleHit(name string) {
	if s == nil {
		return
	}
	if s.RuleHits == nil {
		s.RuleHits = make(map[string]int)
	}
	s.RuleHits[name]++
}

// RecordVerdict counts a verdict against its source tier.
func (s *RunStatistics) RecordVerdict(v Verdict) {
	if s == nil {
		return
	}
	if s.TierCounts == nil {
		s.TierCounts = make(map[Source]int)
	}
	s.TierCounts[v.Source]++
	s.Classified++
	if v.Source == SourceOracle {
		s.CalibrationDeltas = append(s.CalibrationDeltas, v.ConfidenceRaw-v.ConfidenceCalibrated)
	}
}

// RuleNames returns the rule names with hits, sorted for stable output.
func (s *RunStatistics) RuleNames() []string {
	names := make([]string, 0, len(s.RuleHits))
	for name := range s.RuleHits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MeanCalibrationDelta returns the average raw minus calibrated confidence.
func (s *RunStatistics) MeanCalibrationDelta() float64 {
	if len(s.CalibrationDeltas) == 0 {
		return 0
	}
	var sum float64
	for _, d := range s.CalibrationDeltas {
		sum += d
	}
	return sum / float64(len(s.CalibrationDeltas))
}
