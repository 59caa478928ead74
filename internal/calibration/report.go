package calibration

import (
	"fmt"
	"io"
	"math"

	"github.com/nhle/mailtriage/internal/model"
)

// BucketStatus classifies a bucket for reporting.
type BucketStatus string

const (
	StatusInsufficient   BucketStatus = "insufficient data"
	StatusWellCalibrated BucketStatus = "well calibrated"
	StatusOverconfident  BucketStatus = "overconfident"
	StatusUnderconfident BucketStatus = "underconfident"
)

// BucketReport is one row of the calibration report.
type BucketReport struct {
	model.CalibrationBucket
	Status BucketStatus
}

// Report summarizes calibration across all buckets.
type Report struct {
	Buckets []BucketReport

	TotalSamples  int
	TotalCorrect  int
	AvgConfidence float64
}

// Accuracy is the share of correct outcomes across all buckets.
func (r Report) Accuracy() float64 {
	if r.TotalSamples == 0 {
		return 0
	}
	return float64(r.TotalCorrect) / float64(r.TotalSamples)
}

// Error is the overall stated minus actual confidence.
func (r Report) Error() float64 {
	if r.TotalSamples == 0 {
		return 0
	}
	return r.AvgConfidence - r.Accuracy()
}

// Report builds the per-bucket and overall summary.
func (m *Model) Report() Report {
	var r Report
	var weighted float64

	for _, b := range m.buckets {
		r.Buckets = append(r.Buckets, BucketReport{
			CalibrationBucket: b,
			Status:            m.status(b),
		})
		r.TotalSamples += b.SampleCount
		r.TotalCorrect += b.CorrectCount
		weighted += b.AvgStatedConfidence * float64(b.SampleCount)
	}
	if r.TotalSamples > 0 {
		r.AvgConfidence = weighted / float64(r.TotalSamples)
	}
	return r
}

func (m *Model) status(b model.CalibrationBucket) BucketStatus {
	switch e := b.CalibrationError(); {
	case b.SampleCount < m.minSamples:
		return StatusInsufficient
	case math.Abs(e) < WellCalibratedThreshold:
		return StatusWellCalibrated
	case e > 0:
		return StatusOverconfident
	default:
		return StatusUnderconfident
	}
}

// WriteReport renders r as plain text.
func WriteReport(w io.Writer, r Report) error {
	if _, err := fmt.Fprintf(w,
		"Overall: %d samples, accuracy %.1f%%, avg confidence %.1f%%, error %+.1f%%\n\n",
		r.TotalSamples, r.Accuracy()*100, r.AvgConfidence*100, r.Error()*100,
	); err != nil {
		return err
	}

	for _, b := range r.Buckets {
		_, err := fmt.Fprintf(w,
			"  [%.2f-%.2f] samples=%-5d accuracy=%5.1f%% stated=%5.1f%% error=%+5.1f%%  %s\n",
			b.RangeLow, b.RangeHigh, b.SampleCount,
			b.ActualAccuracy()*100, b.AvgStatedConfidence*100, b.CalibrationError()*100,
			b.Status,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
