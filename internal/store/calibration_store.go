package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailtriage/internal/model"
)

// ListBuckets returns the persisted calibration buckets in index order.
func (q *queries) ListBuckets(ctx context.Context) ([]model.CalibrationBucket, error) {
	var buckets []model.CalibrationBucket
	err := sqlx.SelectContext(ctx, q.ext, &buckets, `
		SELECT idx, range_low, range_high, sample_count, correct_count, avg_stated_confidence
		FROM calibration_buckets
		ORDER BY idx ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing calibration buckets: %w", err)
	}
	return buckets, nil
}

// SaveBucket inserts or replaces a calibration bucket.
func (q *queries) SaveBucket(ctx context.Context, b model.CalibrationBucket) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT OR REPLACE INTO calibration_buckets (
			idx, range_low, range_high, sample_count, correct_count, avg_stated_confidence
		) VALUES (?, ?, ?, ?, ?, ?)`,
		b.Index, b.RangeLow, b.RangeHigh, b.SampleCount, b.CorrectCount, b.AvgStatedConfidence,
	)
	if err != nil {
		return fmt.Errorf("saving calibration bucket %d: %w", b.Index, err)
	}
	return nil
}
