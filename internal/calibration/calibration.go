// Package calibration corrects the oracle's stated confidence using how
// often it was right at that confidence level in the past.
package calibration

import (
	"context"
	"fmt"
	"math"

	"github.com/nhle/mailtriage/internal/model"
)

// WellCalibratedThreshold is the largest |error| reported as well calibrated.
const WellCalibratedThreshold = 0.05

// bounds are the fixed bucket edges over [0,1].
var bounds = []float64{0, 0.5, 0.7, 0.85, 0.95, 1.0}

// Arena returns empty buckets covering [0,1] without gaps or overlap.
func Arena() []model.CalibrationBucket {
	buckets := make([]model.CalibrationBucket, len(bounds)-1)
	for i := range buckets {
		buckets[i] = model.CalibrationBucket{
			Index:     i,
			RangeLow:  bounds[i],
			RangeHigh: bounds[i+1],
		}
	}
	return buckets
}

// BucketIndex returns the arena index for raw, clamping out-of-range input.
func BucketIndex(raw float64) int {
	if math.IsNaN(raw) || raw < 0 {
		return 0
	}
	for i := 1; i < len(bounds)-1; i++ {
		if raw < bounds[i] {
			return i - 1
		}
	}
	return len(bounds) - 2
}

// Observe returns b updated with one more sample stated at raw.
func Observe(b model.CalibrationBucket, raw float64, correct bool) model.CalibrationBucket {
	b.SampleCount++
	if correct {
		b.CorrectCount++
	}
	b.AvgStatedConfidence += (raw - b.AvgStatedConfidence) / float64(b.SampleCount)
	return b
}

// BucketReader loads persisted buckets.
type BucketReader interface {
	ListBuckets(ctx context.Context) ([]model.CalibrationBucket, error)
}

// Model holds the bucket arena and the correction settings.
type Model struct {
	buckets    []model.CalibrationBucket
	minSamples int
	factor     float64
}

// New returns a model over the arena, overlaid with any persisted buckets.
func New(cfg model.CalibrationConfig, persisted []model.CalibrationBucket) *Model {
	m := &Model{
		buckets:    Arena(),
		minSamples: cfg.MinSamples,
		factor:     cfg.Factor,
	}
	for _, b := range persisted {
		if b.Index < 0 || b.Index >= len(m.buckets) {
			continue
		}
		arena := m.buckets[b.Index]
		arena.SampleCount = b.SampleCount
		arena.CorrectCount = b.CorrectCount
		arena.AvgStatedConfidence = b.AvgStatedConfidence
		m.buckets[b.Index] = arena
	}
	return m
}

// Load builds a model from the buckets stored in r.
func Load(ctx context.Context, r BucketReader, cfg model.CalibrationConfig) (*Model, error) {
	persisted, err := r.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading calibration buckets: %w", err)
	}
	return New(cfg, persisted), nil
}

// Adjust returns the calibrated confidence for raw and a short note on
// what was applied.
func (m *Model) Adjust(raw float64) (float64, string) {
	b := m.buckets[BucketIndex(raw)]

	if b.SampleCount < m.minSamples {
		return raw, fmt.Sprintf("insufficient data for calibration (%d samples)", b.SampleCount)
	}

	calErr := b.CalibrationError()
	calibrated := clamp(raw - m.factor*calErr)

	switch {
	case math.Abs(calErr) < WellCalibratedThreshold:
		return calibrated, fmt.Sprintf("well calibrated (accuracy %.1f%%)", b.ActualAccuracy()*100)
	case calErr > 0:
		return calibrated, fmt.Sprintf("adjusted down: %.1f%% actual vs %.1f%% stated",
			b.ActualAccuracy()*100, b.AvgStatedConfidence*100)
	default:
		return calibrated, fmt.Sprintf("adjusted up: %.1f%% actual vs %.1f%% stated",
			b.ActualAccuracy()*100, b.AvgStatedConfidence*100)
	}
}

// Observe records an outcome for raw and returns the updated bucket.
func (m *Model) Observe(raw float64, correct bool) model.CalibrationBucket {
	i := BucketIndex(raw)
	m.buckets[i] = Observe(m.buckets[i], raw, correct)
	return m.buckets[i]
}

// Buckets returns a copy of the arena.
func (m *Model) Buckets() []model.CalibrationBucket {
	out := make([]model.CalibrationBucket, len(m.buckets))
	copy(out, m.buckets)
	return out
}

// MinSamples returns the sample count below which no correction applies.
func (m *Model) MinSamples() int {
	return m.minSamples
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
