package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/store"
)

// Message returns a pending INBOX record for uid from sender.
func Message(uid uint32, sender, subject string, received time.Time) model.MessageRecord {
	return model.MessageRecord{
		ID:         model.MessageKey("INBOX", uid),
		UID:        uid,
		Folder:     "INBOX",
		Sender:     sender,
		Subject:    subject,
		ReceivedAt: received,
		Status:     model.StatusPending,
		FetchedAt:  received,
	}
}

// Verdict returns an oracle verdict for msg with equal raw and calibrated
// confidence.
func Verdict(msg model.MessageRecord, label model.Label, confidence float64) model.Verdict {
	return model.Verdict{
		MessageID:            msg.ID,
		Label:                label,
		ConfidenceRaw:        confidence,
		ConfidenceCalibrated: confidence,
		Source:               model.SourceOracle,
		Category:             "promotional",
		Reasoning:            fmt.Sprintf("test verdict for %s", msg.ID),
		Model:                "test-model",
		CreatedAt:            msg.FetchedAt,
	}
}

// SeedClassified stores msg and v, failing the test on error.
func SeedClassified(t *testing.T, s store.Querier, msg model.MessageRecord, v model.Verdict) {
	t.Helper()

	ctx := context.Background()
	if err := s.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("seeding message %s: %v", msg.ID, err)
	}
	if err := s.SaveVerdict(ctx, v); err != nil {
		t.Fatalf("seeding verdict %s: %v", msg.ID, err)
	}
}
