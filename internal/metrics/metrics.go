// Package metrics exports run statistics in the Prometheus text format,
// for collection by node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nhle/mailtriage/internal/model"
)

// Exporter holds the metrics of one command run in its own registry.
type Exporter struct {
	reg *prometheus.Registry

	duration    prometheus.Gauge
	lastRun     prometheus.Gauge
	classified  *prometheus.GaugeVec
	ruleHits    *prometheus.GaugeVec
	events      *prometheus.GaugeVec
	calibration prometheus.Gauge
}

// New returns an exporter whose series carry command as a constant label.
func New(command string) *Exporter {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	labels := prometheus.Labels{"command": command}

	return &Exporter{
		reg: reg,
		duration: f.NewGauge(prometheus.GaugeOpts{
			Name:        "mailtriage_run_duration_seconds",
			Help:        "Wall time of the last run",
			ConstLabels: labels,
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Name:        "mailtriage_last_run_timestamp_seconds",
			Help:        "Unix time the last run finished",
			ConstLabels: labels,
		}),
		classified: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "mailtriage_messages_classified",
			Help:        "Messages classified in the last run, by tier",
			ConstLabels: labels,
		}, []string{"tier"}),
		ruleHits: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "mailtriage_rule_hits",
			Help:        "Rule matches in the last run",
			ConstLabels: labels,
		}, []string{"rule"}),
		events: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "mailtriage_run_events",
			Help:        "Counts of notable events in the last run",
			ConstLabels: labels,
		}, []string{"event"}),
		calibration: f.NewGauge(prometheus.GaugeOpts{
			Name:        "mailtriage_calibration_mean_delta",
			Help:        "Mean raw minus calibrated oracle confidence in the last run",
			ConstLabels: labels,
		}),
	}
}

// Observe copies stats into the exporter's series.
func (e *Exporter) Observe(stats *model.RunStatistics, took time.Duration, finished time.Time) {
	e.duration.Set(took.Seconds())
	e.lastRun.Set(float64(finished.Unix()))
	if stats == nil {
		return
	}

	for _, tier := range []model.Source{model.SourceRule, model.SourcePattern, model.SourceOracle} {
		e.classified.WithLabelValues(string(tier)).Set(float64(stats.TierCounts[tier]))
	}
	for _, name := range stats.RuleNames() {
		e.ruleHits.WithLabelValues(name).Set(float64(stats.RuleHits[name]))
	}

	for event, n := range map[string]int{
		"fetched":           stats.Fetched,
		"skipped":           stats.Skipped,
		"fetch_failures":    stats.FetchFailures,
		"oracle_failures":   stats.OracleFailures,
		"rule_faults":       stats.RuleFaults,
		"cleanup_planned":   stats.CleanupPlanned,
		"cleanup_executed":  stats.CleanupExecuted,
		"cleanup_failed":    stats.CleanupFailed,
		"missing_on_server": stats.MissingOnServer,
		"marked_deleted":    stats.MarkedDeleted,
		"restored":          stats.Restored,
		"reconcile_errors":  stats.ReconcileErrors,
		"pruned":            stats.Pruned,
	} {
		e.events.WithLabelValues(event).Set(float64(n))
	}

	e.calibration.Set(stats.MeanCalibrationDelta())
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.reg
}

// WriteTextfile atomically writes the metrics to path.
func (e *Exporter) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
