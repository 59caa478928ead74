// Package pattern turns consistent human decisions about a sender into an
// automatic verdict, so repeated mail from the same source skips the oracle.
package pattern

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/store"
)

// ProfileReader is the subset of the store the detector reads from.
type ProfileReader interface {
	GetProfile(ctx context.Context, g model.Granularity, key string) (*model.SenderProfile, error)
	ListProfiles(ctx context.Context, g model.Granularity) ([]model.SenderProfile, error)
}

// Suggestion is a learned pattern strong enough to decide a message.
type Suggestion struct {
	Granularity model.Granularity
	Key         string
	Label       model.Label
	Ratio       float64
	Total       int
}

// Detector checks sender and domain profiles against thresholds.
type Detector struct {
	profiles   ProfileReader
	thresholds model.PatternConfig
}

// NewDetector returns a detector reading profiles from r.
func NewDetector(r ProfileReader, thresholds model.PatternConfig) *Detector {
	return &Detector{profiles: r, thresholds: thresholds}
}

// ShouldSkipOracle returns the sender's pattern if it has one, otherwise
// the sender domain's pattern, otherwise nil.
func (d *Detector) ShouldSkipOracle(ctx context.Context, sender string) (*Suggestion, error) {
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		return nil, nil
	}

	s, err := d.lookup(ctx, model.GranularitySender, sender, d.thresholds.Sender)
	if err != nil || s != nil {
		return s, err
	}

	domain := model.DomainOf(sender)
	if domain == "" {
		return nil, nil
	}
	return d.lookup(ctx, model.GranularityDomain, domain, d.thresholds.Domain)
}

func (d *Detector) lookup(
	ctx context.Context,
	g model.Granularity,
	key string,
	th model.PatternThreshold,
) (*Suggestion, error) {
	p, err := d.profiles.GetProfile(ctx, g, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s profile: %w", g, err)
	}
	return suggest(*p, th), nil
}

func suggest(p model.SenderProfile, th model.PatternThreshold) *Suggestion {
	label, ok := p.HasPattern(th.MinDecisions, th.Ratio)
	if !ok {
		return nil
	}
	_, ratio := p.Dominant()
	return &Suggestion{
		Granularity: p.Granularity,
		Key:         p.Key,
		Label:       label,
		Ratio:       ratio,
		Total:       p.Total(),
	}
}

// Verdict builds the pattern-sourced verdict for msg.
func (s Suggestion) Verdict(msg model.MessageRecord, now time.Time) model.Verdict {
	return model.Verdict{
		MessageID:            msg.ID,
		Label:                s.Label,
		ConfidenceRaw:        s.Ratio,
		ConfidenceCalibrated: s.Ratio,
		Source:               model.SourcePattern,
		Category:             "learned",
		Reasoning: fmt.Sprintf("%s %s: %.0f%% of %d decisions were %s",
			s.Granularity, s.Key, s.Ratio*100, s.Total, s.Label),
		CreatedAt: now,
	}
}

// Suggestions lists every profile that currently meets its granularity's
// threshold, sender first, then domain, then category.
func (d *Detector) Suggestions(ctx context.Context) ([]Suggestion, error) {
	levels := []struct {
		g  model.Granularity
		th model.PatternThreshold
	}{
		{model.GranularitySender, d.thresholds.Sender},
		{model.GranularityDomain, d.thresholds.Domain},
		{model.GranularityCategory, d.thresholds.Category},
	}

	var out []Suggestion
	for _, lvl := range levels {
		profiles, err := d.profiles.ListProfiles(ctx, lvl.g)
		if err != nil {
			return nil, fmt.Errorf("listing %s profiles: %w", lvl.g, err)
		}
		for _, p := range profiles {
			if s := suggest(p, lvl.th); s != nil {
				out = append(out, *s)
			}
		}
	}
	return out, nil
}
