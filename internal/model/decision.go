package model

import "time"

// Decision is a confirmed outcome for a message, made by a human reviewer
// or synthesized by the auto-delete path. Decisions are append-only.
type Decision struct {
	// ID is a UUID assigned when the decision is recorded.
	ID string `json:"id" db:"id"`

	MessageID     string `json:"message_id" db:"message_id"`
	ApprovedLabel Label  `json:"approved_label" db:"approved_label"`

	// VerdictLabel, VerdictSource and ConfidenceRaw snapshot the verdict
	// the decision was made against, so calibration can be rebuilt from
	// the decision log alone.
	VerdictLabel  Label   `json:"verdict_label" db:"verdict_label"`
	VerdictSource Source  `json:"verdict_source" db:"verdict_source"`
	ConfidenceRaw float64 `json:"confidence_raw" db:"confidence_raw"`

	IsAutomatic bool      `json:"is_automatic" db:"is_automatic"`
	Notes       string    `json:"notes" db:"notes"`
	DecidedAt   time.Time `json:"decided_at" db:"decided_at"`
}

// Agreed reports whether the decision confirmed the verdict's label.
func (d Decision) Agreed() bool {
	return d.VerdictLabel == d.ApprovedLabel
}

// StatusAfter returns the message status a decision moves the message to.
func (d Decision) StatusAfter() MessageStatus {
	if d.ApprovedLabel == LabelDelete {
		return StatusApproved
	}
	return StatusKept
}

// Exemplar is a past decision shown to the oracle as a few-shot example.
type Exemplar struct {
	Sender        string `db:"sender"`
	Subject       string `db:"subject"`
	Category      string `db:"category"`
	VerdictLabel  Label  `db:"verdict_label"`
	ApprovedLabel Label  `db:"approved_label"`
}
