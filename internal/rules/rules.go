// Package rules implements the deterministic first tier of classification.
package rules

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/model"
)

// RuleSet evaluates an ordered list of rules. The first match wins.
type RuleSet struct {
	rules  []compiled
	logger *zap.Logger
}

// New sorts rules by priority (override first on ties, then name) and
// prepares them for evaluation. Invalid rules are logged and left out.
func New(rules []model.Rule, logger *zap.Logger) *RuleSet {
	if logger == nil {
		logger = zap.NewNop()
	}

	sorted := make([]model.Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Override != b.Override {
			return a.Override
		}
		return a.Name < b.Name
	})

	rs := &RuleSet{logger: logger}
	for _, r := range sorted {
		c, err := compile(r)
		if err != nil {
			logger.Warn("skipping invalid rule", zap.String("rule", r.Name), zap.Error(err))
			continue
		}
		rs.rules = append(rs.rules, c)
	}
	return rs
}

// Names returns the rule names in evaluation order.
func (rs *RuleSet) Names() []string {
	names := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		names[i] = r.Name
	}
	return names
}

// Evaluate returns the verdict of the first matching rule, or nil when no
// rule matches. A rule that panics is logged and treated as no match.
func (rs *RuleSet) Evaluate(
	msg model.MessageRecord,
	now time.Time,
	stats *model.RunStatistics,
) *model.Verdict {
	for _, r := range rs.rules {
		ok, err := rs.safeMatch(r, msg, now)
		if err != nil {
			rs.logger.Error("rule fault",
				zap.String("rule", r.Name),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			if stats != nil {
				stats.RuleFaults++
			}
			continue
		}
		if !ok {
			continue
		}

		stats.RecordRuleHit(r.Name)
		return &model.Verdict{
			MessageID:            msg.ID,
			Label:                r.Label,
			ConfidenceRaw:        r.Confidence,
			ConfidenceCalibrated: r.Confidence,
			Source:               model.SourceRule,
			RuleName:             r.Name,
			Category:             r.Category,
			Reasoning:            describe(r.Rule, msg),
			CreatedAt:            now,
		}
	}
	return nil
}

func (rs *RuleSet) safeMatch(r compiled, msg model.MessageRecord, now time.Time) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("panic: %v", p)
		}
	}()
	return r.matches(msg, now), nil
}
