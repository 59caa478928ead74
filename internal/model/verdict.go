package model

import (
	"fmt"
	"time"
)

// Label is the action the engine recommends for a message.
type Label string

const (
	LabelKeep    Label = "keep"
	LabelDelete  Label = "delete"
	LabelArchive Label = "archive"
)

// ParseLabel validates a user- or oracle-supplied label.
func ParseLabel(s string) (Label, error) {
	switch l := Label(s); l {
	case LabelKeep, LabelDelete, LabelArchive:
		return l, nil
	default:
		return "", fmt.Errorf("invalid label %q (want keep, delete or archive)", s)
	}
}

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	_, err := ParseLabel(string(l))
	return err == nil
}

// Source identifies the classification tier that produced a Verdict.
type Source string

const (
	SourceRule    Source = "rule"
	SourcePattern Source = "pattern"
	SourceOracle  Source = "oracle"
)

// Verdict is the engine's current classification of a message.
// There is exactly one Verdict per message; reclassification replaces it.
type Verdict struct {
	MessageID string `json:"message_id" db:"message_id"`
	Label     Label  `json:"label" db:"label"`

	// ConfidenceRaw is the confidence reported by the producing tier.
	ConfidenceRaw float64 `json:"confidence_raw" db:"confidence_raw"`

	// ConfidenceCalibrated is ConfidenceRaw after calibration. Rule and
	// pattern verdicts carry the raw value unchanged.
	ConfidenceCalibrated float64 `json:"confidence_calibrated" db:"confidence_calibrated"`

	Source Source `json:"source" db:"source"`

	// RuleName is set only when Source is SourceRule.
	RuleName string `json:"rule_name,omitempty" db:"rule_name"`

	Category  string    `json:"category" db:"category"`
	Reasoning string    `json:"reasoning" db:"reasoning"`
	Model     string    `json:"model" db:"model"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Validate checks the fields every tier must fill in.
func (v Verdict) Validate() error {
	if v.MessageID == "" {
		return fmt.Errorf("verdict has no message id")
	}
	if !v.Label.Valid() {
		return fmt.Errorf("verdict for %s has invalid label %q", v.MessageID, v.Label)
	}
	if v.ConfidenceRaw < 0 || v.ConfidenceRaw > 1 {
		return fmt.Errorf("verdict for %s has confidence %.3f outside [0,1]", v.MessageID, v.ConfidenceRaw)
	}
	switch v.Source {
	case SourceRule, SourcePattern, SourceOracle:
	default:
		return fmt.Errorf("verdict for %s has unknown source %q", v.MessageID, v.Source)
	}
	return nil
}
