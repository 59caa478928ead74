package model

import (
	"fmt"
	"time"
)

// Granularity selects the key a SenderProfile aggregates decisions by.
type Granularity string

const (
	GranularitySender   Granularity = "sender"
	GranularityDomain   Granularity = "domain"
	GranularityCategory Granularity = "category"
)

// patternEpsilon absorbs float noise so that, e.g., 9/10 compares equal to 0.90.
const patternEpsilon = 1e-9

// SenderProfile aggregates confirmed decisions for one sender, domain or
// category key.
type SenderProfile struct {
	Granularity Granularity `json:"granularity" db:"granularity"`
	Key         string      `json:"key" db:"key"`

	KeepCount    int `json:"keep_count" db:"keep_count"`
	DeleteCount  int `json:"delete_count" db:"delete_count"`
	ArchiveCount int `json:"archive_count" db:"archive_count"`

	LastDecidedAt *time.Time `json:"last_decided_at,omitempty" db:"last_decided_at"`
}

// Total returns the number of decisions counted in the profile.
func (p SenderProfile) Total() int {
	return p.KeepCount + p.DeleteCount + p.ArchiveCount
}

// KeepRate returns the fraction of keep decisions, or 0 with no history.
func (p SenderProfile) KeepRate() float64 {
	if p.Total() == 0 {
		return 0
	}
	return float64(p.KeepCount) / float64(p.Total())
}

// DeleteRate returns the fraction of delete decisions, or 0 with no history.
func (p SenderProfile) DeleteRate() float64 {
	if p.Total() == 0 {
		return 0
	}
	return float64(p.DeleteCount) / float64(p.Total())
}

// ArchiveRate returns the fraction of archive decisions, or 0 with no history.
func (p SenderProfile) ArchiveRate() float64 {
	if p.Total() == 0 {
		return 0
	}
	return float64(p.ArchiveCount) / float64(p.Total())
}

// Dominant returns the most frequent label and its share of all decisions.
// Ties resolve in the order keep, delete, archive.
func (p SenderProfile) Dominant() (Label, float64) {
	label, count := LabelKeep, p.KeepCount
	if p.DeleteCount > count {
		label, count = LabelDelete, p.DeleteCount
	}
	if p.ArchiveCount > count {
		label, count = LabelArchive, p.ArchiveCount
	}
	if p.Total() == 0 {
		return label, 0
	}
	return label, float64(count) / float64(p.Total())
}

// HasPattern reports whether the profile has at least minDecisions decisions
// and its dominant label reaches ratio.
func (p SenderProfile) HasPattern(minDecisions int, ratio float64) (Label, bool) {
	if p.Total() < minDecisions {
		return "", false
	}
	label, share := p.Dominant()
	if share < ratio-patternEpsilon {
		return "", false
	}
	return label, true
}

// Apply counts one more decision with the given label.
func (p *SenderProfile) Apply(label Label, at time.Time) error {
	switch label {
	case LabelKeep:
		p.KeepCount++
	case LabelDelete:
		p.DeleteCount++
	case LabelArchive:
		p.ArchiveCount++
	default:
		return fmt.Errorf("applying label %q to profile %s/%s: unknown label", label, p.Granularity, p.Key)
	}
	t := at
	p.LastDecidedAt = &t
	return nil
}
