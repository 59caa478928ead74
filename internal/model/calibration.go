package model

// CalibrationBucket tracks how often verdicts stated within a confidence
// range turned out to be correct.
type CalibrationBucket struct {
	Index     int     `json:"index" db:"idx"`
	RangeLow  float64 `json:"range_low" db:"range_low"`
	RangeHigh float64 `json:"range_high" db:"range_high"`

	SampleCount  int `json:"sample_count" db:"sample_count"`
	CorrectCount int `json:"correct_count" db:"correct_count"`

	// AvgStatedConfidence is the running mean of raw confidences observed.
	AvgStatedConfidence float64 `json:"avg_stated_confidence" db:"avg_stated_confidence"`
}

// ActualAccuracy returns CorrectCount/SampleCount, or 0 with no samples.
func (b CalibrationBucket) ActualAccuracy() float64 {
	if b.SampleCount == 0 {
		return 0
	}
	return float64(b.CorrectCount) / float64(b.SampleCount)
}

// CalibrationError is positive when the classifier is overconfident.
func (b CalibrationBucket) CalibrationError() float64 {
	if b.SampleCount == 0 {
		return 0
	}
	return b.AvgStatedConfidence - b.ActualAccuracy()
}

// Contains reports whether raw falls in the bucket's half-open range.
// The last bucket (RangeHigh == 1) is closed so 1.0 has a home.
func (b CalibrationBucket) Contains(raw float64) bool {
	if raw < b.RangeLow {
		return false
	}
	if b.RangeHigh >= 1 {
		return raw <= 1
	}
	return raw < b.RangeHigh
}
