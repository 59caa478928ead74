package testutil

import (
	"context"
	"testing"

	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/store"
)

// StoreOption seeds learned state into a test store before it is handed
// to the test.
type StoreOption func(t *testing.T, s *store.SQLiteStore)

// WithProfiles saves each profile into the store.
func WithProfiles(profiles ...model.SenderProfile) StoreOption {
	return func(t *testing.T, s *store.SQLiteStore) {
		for _, p := range profiles {
			if err := s.SaveProfile(context.Background(), p); err != nil {
				t.Fatalf("seeding %s profile %s: %v", p.Granularity, p.Key, err)
			}
		}
	}
}

// WithBuckets saves each calibration bucket into the store.
func WithBuckets(buckets ...model.CalibrationBucket) StoreOption {
	return func(t *testing.T, s *store.SQLiteStore) {
		for _, b := range buckets {
			if err := s.SaveBucket(context.Background(), b); err != nil {
				t.Fatalf("seeding calibration bucket %d: %v", b.Index, err)
			}
		}
	}
}

// NewTestStore opens an in-memory SQLiteStore with the triage schema
// migrated and opts applied. The store is closed when the test ends.
func NewTestStore(t *testing.T, opts ...StoreOption) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	for _, opt := range opts {
		opt(t, s)
	}
	return s
}
