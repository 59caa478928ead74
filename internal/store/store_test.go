package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/store"
	"github.com/nhle/mailtriage/tests/testutil"
)

var t0 = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

func TestUpsertMessage_KeepsStatusAndContent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	msg := testutil.Message(1, "a@example.com", "first subject", t0)
	require.NoError(t, s.UpsertMessage(ctx, msg))
	require.NoError(t, s.SetMessageStatus(ctx, msg.ID, model.StatusKept, t0))

	again := msg
	again.Subject = "changed"
	again.Status = model.StatusPending
	again.FetchedAt = t0.Add(time.Hour)
	require.NoError(t, s.UpsertMessage(ctx, again))

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "first subject", got.Subject)
	assert.Equal(t, model.StatusKept, got.Status)
	assert.True(t, got.FetchedAt.Equal(t0.Add(time.Hour)))
	assert.True(t, got.ReceivedAt.Equal(t0))
}

func TestGetMessage_NotFound(t *testing.T) {
	s := testutil.NewTestStore(t)
	_, err := s.GetMessage(context.Background(), "INBOX/404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetMessageStatus_StampsDeletedAt(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	msg := testutil.Message(1, "a@example.com", "hi", t0)
	require.NoError(t, s.UpsertMessage(ctx, msg))

	require.NoError(t, s.SetMessageStatus(ctx, msg.ID, model.StatusDeleted, t0.Add(time.Hour)))
	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, got.DeletedAt.Equal(t0.Add(time.Hour)))

	require.NoError(t, s.SetMessageStatus(ctx, msg.ID, model.StatusPending, t0))
	got, err = s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DeletedAt)

	err = s.SetMessageStatus(ctx, "INBOX/404", model.StatusKept, t0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListMessages_Filters(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	a := testutil.Message(1, "a@example.com", "a", t0.Add(2*time.Hour))
	b := testutil.Message(2, "b@example.com", "b", t0)
	c := testutil.Message(3, "c@example.com", "c", t0.Add(time.Hour))
	c.Folder = "Archive"
	c.ID = model.MessageKey("Archive", 3)
	for _, m := range []model.MessageRecord{a, b, c} {
		require.NoError(t, s.UpsertMessage(ctx, m))
	}
	require.NoError(t, s.SetMessageStatus(ctx, a.ID, model.StatusDeleted, t0))

	all, err := s.ListMessages(ctx, store.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"INBOX/2", "Archive/3", "INBOX/1"}, ids(all))

	inbox, err := s.ListMessages(ctx, store.MessageFilter{Folder: "INBOX", Statuses: []model.MessageStatus{model.StatusPending}})
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX/2"}, ids(inbox))

	bySender, err := s.ListMessages(ctx, store.MessageFilter{Sender: "B@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX/2"}, ids(bySender))
}

func TestSaveVerdict_ReplacesAndValidates(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	msg := testutil.Message(1, "a@example.com", "hi", t0)
	testutil.SeedClassified(t, s, msg, testutil.Verdict(msg, model.LabelKeep, 0.6))

	v := testutil.Verdict(msg, model.LabelDelete, 0.9)
	v.Source = model.SourceRule
	v.RuleName = "promotional_age"
	require.NoError(t, s.SaveVerdict(ctx, v))

	got, err := s.GetVerdict(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LabelDelete, got.Label)
	assert.Equal(t, "promotional_age", got.RuleName)

	bad := v
	bad.ConfidenceRaw = 1.5
	assert.Error(t, s.SaveVerdict(ctx, bad))

	_, err = s.GetVerdict(ctx, "INBOX/404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClassifiedIDs_Chunked(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	var query []string
	for uid := uint32(1); uid <= 1200; uid++ {
		id := model.MessageKey("INBOX", uid)
		query = append(query, id)
		if uid%2 == 0 {
			msg := testutil.Message(uid, "a@example.com", "x", t0)
			testutil.SeedClassified(t, s, msg, testutil.Verdict(msg, model.LabelKeep, 0.5))
		}
	}

	found, err := s.ClassifiedIDs(ctx, query)
	require.NoError(t, err)
	assert.Len(t, found, 600)
	assert.True(t, found["INBOX/1200"])
	assert.False(t, found["INBOX/1199"])
}

func TestListClassified_FilterAndOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	seed := func(uid uint32, sender string, label model.Label, conf float64, src model.Source) {
		msg := testutil.Message(uid, sender, "s", t0.Add(time.Duration(uid)*time.Minute))
		v := testutil.Verdict(msg, label, conf)
		v.Source = src
		testutil.SeedClassified(t, s, msg, v)
	}
	seed(1, "a@example.com", model.LabelDelete, 0.70, model.SourceOracle)
	seed(2, "a@example.com", model.LabelDelete, 0.95, model.SourceRule)
	seed(3, "b@example.com", model.LabelKeep, 0.99, model.SourceOracle)
	require.NoError(t, s.SetMessageStatus(ctx, "INBOX/3", model.StatusKept, t0))

	all, err := s.ListClassified(ctx, store.VerdictFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX/3", "INBOX/2", "INBOX/1"}, classifiedIDs(all))

	pendingDeletes, err := s.ListClassified(ctx, store.VerdictFilter{
		Statuses:      []model.MessageStatus{model.StatusPending},
		Label:         model.LabelDelete,
		MinConfidence: 0.8,
	})
	require.NoError(t, err)
	require.Len(t, pendingDeletes, 1)
	assert.Equal(t, "INBOX/2", pendingDeletes[0].MessageRecord.ID)
	assert.Equal(t, model.SourceRule, pendingDeletes[0].Verdict.Source)

	oracle, err := s.ListClassified(ctx, store.VerdictFilter{Source: model.SourceOracle, Sender: "A@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX/1"}, classifiedIDs(oracle))

	limited, err := s.ListClassified(ctx, store.VerdictFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListClassified_Undecided(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for uid := uint32(1); uid <= 2; uid++ {
		msg := testutil.Message(uid, "a@example.com", "s", t0)
		testutil.SeedClassified(t, s, msg, testutil.Verdict(msg, model.LabelDelete, 0.9))
	}
	require.NoError(t, s.InsertDecision(ctx, model.Decision{
		MessageID:     "INBOX/1",
		ApprovedLabel: model.LabelDelete,
		VerdictLabel:  model.LabelDelete,
		VerdictSource: model.SourceOracle,
		DecidedAt:     t0,
	}))

	undecided, err := s.ListClassified(ctx, store.VerdictFilter{Undecided: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX/2"}, classifiedIDs(undecided))
}

func TestListApprovedDeletes_UsesLatestDecision(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for uid := uint32(1); uid <= 3; uid++ {
		msg := testutil.Message(uid, "a@example.com", "s", t0.Add(time.Duration(uid)*time.Hour))
		testutil.SeedClassified(t, s, msg, testutil.Verdict(msg, model.LabelDelete, 0.9))
		require.NoError(t, s.SetMessageStatus(ctx, msg.ID, model.StatusApproved, t0))
	}
	decide := func(id string, label model.Label, at time.Time) {
		require.NoError(t, s.InsertDecision(ctx, model.Decision{
			MessageID:     id,
			ApprovedLabel: label,
			VerdictLabel:  model.LabelDelete,
			VerdictSource: model.SourceOracle,
			ConfidenceRaw: 0.9,
			DecidedAt:     at,
		}))
	}
	decide("INBOX/1", model.LabelDelete, t0)
	decide("INBOX/2", model.LabelDelete, t0)
	decide("INBOX/2", model.LabelKeep, t0.Add(time.Minute))
	// INBOX/3 has no decision

	plan, err := s.ListApprovedDeletes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX/1"}, classifiedIDs(plan))
}

func TestDecisions_AppendOnly(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	msg := testutil.Message(1, "a@example.com", "s", t0)
	require.NoError(t, s.UpsertMessage(ctx, msg))

	for i, label := range []model.Label{model.LabelDelete, model.LabelKeep} {
		require.NoError(t, s.InsertDecision(ctx, model.Decision{
			MessageID:     msg.ID,
			ApprovedLabel: label,
			VerdictLabel:  model.LabelDelete,
			VerdictSource: model.SourceOracle,
			DecidedAt:     t0.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := s.ListDecisions(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.NotEmpty(t, list[0].ID)
	assert.NotEqual(t, list[0].ID, list[1].ID)

	latest, err := s.LatestDecision(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LabelKeep, latest.ApprovedLabel)

	_, err = s.LatestDecision(ctx, "INBOX/404")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.InsertDecision(ctx, model.Decision{MessageID: msg.ID, ApprovedLabel: "shred"})
	assert.Error(t, err)
}

func TestListExemplars_SenderFirstThenDomain(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	add := func(uid uint32, sender string, at time.Time) {
		msg := testutil.Message(uid, sender, fmt.Sprintf("subject %d", uid), at)
		testutil.SeedClassified(t, s, msg, testutil.Verdict(msg, model.LabelDelete, 0.8))
		require.NoError(t, s.InsertDecision(ctx, model.Decision{
			MessageID:     msg.ID,
			ApprovedLabel: model.LabelDelete,
			VerdictLabel:  model.LabelDelete,
			VerdictSource: model.SourceOracle,
			DecidedAt:     at,
		}))
	}
	add(1, "news@shop.example", t0.Add(3*time.Hour))
	add(2, "deals@shop.example", t0)
	add(3, "other@elsewhere.example", t0.Add(4*time.Hour))

	ex, err := s.ListExemplars(ctx, "Deals@Shop.Example", 5)
	require.NoError(t, err)
	require.Len(t, ex, 2)
	assert.Equal(t, "deals@shop.example", ex[0].Sender)
	assert.Equal(t, "news@shop.example", ex[1].Sender)
	assert.Equal(t, "promotional", ex[0].Category)

	none, err := s.ListExemplars(ctx, "deals@shop.example", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestProfiles(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.GetProfile(ctx, model.GranularitySender, "a@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	at := t0
	require.NoError(t, s.SaveProfile(ctx, model.SenderProfile{
		Granularity: model.GranularitySender, Key: "a@example.com", DeleteCount: 3, LastDecidedAt: &at,
	}))
	require.NoError(t, s.SaveProfile(ctx, model.SenderProfile{
		Granularity: model.GranularitySender, Key: "b@example.com", KeepCount: 5,
	}))
	require.NoError(t, s.SaveProfile(ctx, model.SenderProfile{
		Granularity: model.GranularityDomain, Key: "example.com", KeepCount: 5, DeleteCount: 3,
	}))

	p, err := s.GetProfile(ctx, model.GranularitySender, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, p.DeleteCount)
	require.NotNil(t, p.LastDecidedAt)

	senders, err := s.ListProfiles(ctx, model.GranularitySender)
	require.NoError(t, err)
	require.Len(t, senders, 2)
	assert.Equal(t, "b@example.com", senders[0].Key)

	assert.Error(t, s.SaveProfile(ctx, model.SenderProfile{Granularity: model.GranularitySender}))
}

func TestBuckets_RoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBucket(ctx, model.CalibrationBucket{
		Index: 3, RangeLow: 0.9, RangeHigh: 0.95, SampleCount: 10, CorrectCount: 7, AvgStatedConfidence: 0.9,
	}))
	require.NoError(t, s.SaveBucket(ctx, model.CalibrationBucket{
		Index: 3, RangeLow: 0.9, RangeHigh: 0.95, SampleCount: 11, CorrectCount: 8, AvgStatedConfidence: 0.9,
	}))

	buckets, err := s.ListBuckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 11, buckets[0].SampleCount)
}

func TestDeleteMessage_Cascades(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	msg := testutil.Message(1, "a@example.com", "s", t0)
	testutil.SeedClassified(t, s, msg, testutil.Verdict(msg, model.LabelDelete, 0.9))
	require.NoError(t, s.InsertDecision(ctx, model.Decision{
		MessageID: msg.ID, ApprovedLabel: model.LabelDelete, VerdictLabel: model.LabelDelete, VerdictSource: model.SourceOracle,
	}))

	require.NoError(t, s.DeleteMessage(ctx, msg.ID))

	_, err := s.GetVerdict(ctx, msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	decisions, err := s.ListDecisions(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, decisions)

	assert.ErrorIs(t, s.DeleteMessage(ctx, msg.ID), store.ErrNotFound)
}

func TestInTx_RollsBack(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(q store.Querier) error {
		if err := q.UpsertMessage(ctx, testutil.Message(1, "a@example.com", "s", t0)); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	_, err = s.GetMessage(ctx, "INBOX/1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStats(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for uid := uint32(1); uid <= 3; uid++ {
		msg := testutil.Message(uid, "a@example.com", "s", t0)
		testutil.SeedClassified(t, s, msg, testutil.Verdict(msg, model.LabelDelete, 0.9))
	}
	require.NoError(t, s.SetMessageStatus(ctx, "INBOX/1", model.StatusDeleted, t0))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Messages)
	assert.Equal(t, 2, st.Active())
	assert.Equal(t, 2, st.ByStatus[model.StatusPending])
	assert.Equal(t, 3, st.ByLabel[model.LabelDelete])
	assert.Equal(t, 3, st.BySource[model.SourceOracle])
}

func TestWriterLease(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	owner, err := s.AcquireWriterLease(ctx, "scan", time.Hour)
	require.NoError(t, err)

	_, err = s.AcquireWriterLease(ctx, "cleanup", time.Hour)
	assert.ErrorIs(t, err, store.ErrStoreLocked)

	lease, err := s.CurrentLease(ctx)
	require.NoError(t, err)
	assert.Equal(t, "scan", lease.Command)
	assert.Equal(t, owner, lease.Owner)

	require.NoError(t, s.ReleaseWriterLease(ctx, owner))
	_, err = s.CurrentLease(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.AcquireWriterLease(ctx, "cleanup", time.Hour)
	require.NoError(t, err)
}

func TestWriterLease_ExpiredIsReplaced(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.AcquireWriterLease(ctx, "scan", -time.Minute)
	require.NoError(t, err)

	_, err = s.AcquireWriterLease(ctx, "sync", time.Hour)
	require.NoError(t, err)
}

func ids(msgs []model.MessageRecord) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func classifiedIDs(items []store.ClassifiedMessage) []string {
	out := make([]string, len(items))
	for i, cm := range items {
		out[i] = cm.MessageRecord.ID
	}
	return out
}
