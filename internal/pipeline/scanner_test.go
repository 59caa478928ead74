package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/oracle"
	"github.com/nhle/mailtriage/internal/store"
	"github.com/nhle/mailtriage/tests/testutil"
)

type scanFixture struct {
	store   *store.SQLiteStore
	mailbox *testutil.FakeMailbox
	oracle  *fakeOracle
	scanner *Scanner
}

func newScanFixture(t *testing.T, n int) *scanFixture {
	t.Helper()
	s := testutil.NewTestStore(t)
	mb := testutil.NewFakeMailbox()
	o := newFakeOracle()

	for i := 1; i <= n; i++ {
		m := testutil.Message(uint32(i), "someone@unknown.example", "Status report",
			now.Add(-time.Duration(n-i+1)*time.Hour))
		mb.Add(m)
	}

	sc := NewScanner(mb, s, buildPipeline(t, s, o), nil)
	sc.now = func() time.Time { return now }
	return &scanFixture{store: s, mailbox: mb, oracle: o, scanner: sc}
}

func (f *scanFixture) verdictIDs(t *testing.T) []string {
	t.Helper()
	items, err := f.store.ListClassified(context.Background(), store.VerdictFilter{})
	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.MessageRecord.ID)
	}
	return ids
}

func TestScanPersistsEveryMessage(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 5)

	stats, err := f.scanner.Scan(ctx, ScanOptions{Folder: "INBOX"})
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Fetched)
	assert.Equal(t, 5, stats.Classified)
	assert.Equal(t, 5, stats.TierCounts[model.SourceOracle])
	assert.Len(t, f.verdictIDs(t), 5)

	got, err := f.store.GetMessage(ctx, "INBOX/3")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, now, got.FetchedAt.UTC())
}

func TestScanWithoutRescanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 5)

	_, err := f.scanner.Scan(ctx, ScanOptions{Folder: "INBOX"})
	require.NoError(t, err)
	fetches, calls := f.mailbox.Fetches, f.oracle.calls

	stats, err := f.scanner.Scan(ctx, ScanOptions{Folder: "INBOX"})
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Skipped)
	assert.Equal(t, 0, stats.Fetched)
	assert.Equal(t, 0, stats.Classified)
	assert.Equal(t, fetches, f.mailbox.Fetches)
	assert.Equal(t, calls, f.oracle.calls)
}

func TestScanLimitAppliesAfterFiltering(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 5)

	_, err := f.scanner.Scan(ctx, ScanOptions{Folder: "INBOX", Limit: 2})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"INBOX/1", "INBOX/2"}, f.verdictIDs(t))

	stats, err := f.scanner.Scan(ctx, ScanOptions{Folder: "INBOX", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 2, stats.Classified)
	assert.ElementsMatch(t, []string{"INBOX/1", "INBOX/2", "INBOX/3", "INBOX/4"}, f.verdictIDs(t))
}

func TestScanNewestFirst(t *testing.T) {
	f := newScanFixture(t, 5)

	_, err := f.scanner.Scan(context.Background(), ScanOptions{Folder: "INBOX", Limit: 1, NewestFirst: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX/5"}, f.verdictIDs(t))
}

func TestScanDateWindow(t *testing.T) {
	f := newScanFixture(t, 5)

	stats, err := f.scanner.Scan(context.Background(), ScanOptions{
		Folder: "INBOX",
		Since:  now.Add(-3 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Fetched)
}

func TestRescanKeepsStatus(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 2)

	_, err := f.scanner.Scan(ctx, ScanOptions{Folder: "INBOX"})
	require.NoError(t, err)
	require.NoError(t, f.store.SetMessageStatus(ctx, "INBOX/1", model.StatusKept, now))

	f.oracle.result.Label = model.LabelKeep
	stats, err := f.scanner.Scan(ctx, ScanOptions{Folder: "INBOX", Rescan: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Classified)
	assert.Equal(t, 0, stats.Skipped)

	got, err := f.store.GetMessage(ctx, "INBOX/1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusKept, got.Status)

	v, err := f.store.GetVerdict(ctx, "INBOX/1")
	require.NoError(t, err)
	assert.Equal(t, model.LabelKeep, v.Label)
}

func TestScanContinuesAfterOracleFault(t *testing.T) {
	ctx := context.Background()
	f := newScanFixture(t, 3)
	f.mailbox.Add(testutil.Message(4, "x@unknown.example", "Broken reply", now.Add(-30*time.Minute)))
	f.oracle.failOn = "Broken"
	f.oracle.err = errors.New("connection reset")

	stats, err := f.scanner.Scan(ctx, ScanOptions{Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Fetched)
	assert.Equal(t, 3, stats.Classified)
	assert.Equal(t, 1, stats.OracleFailures)

	// Stored but unclassified, so the next scan retries it.
	_, err = f.store.GetMessage(ctx, "INBOX/4")
	require.NoError(t, err)
	_, err = f.store.GetVerdict(ctx, "INBOX/4")
	assert.ErrorIs(t, err, store.ErrNotFound)

	f.oracle.failOn = ""
	stats, err = f.scanner.Scan(ctx, ScanOptions{Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Classified)
}

func TestScanLogsProgressPerMessage(t *testing.T) {
	f := newScanFixture(t, 3)
	core, logs := observer.New(zapcore.InfoLevel)
	f.scanner.logger = zap.New(core)

	_, err := f.scanner.Scan(context.Background(), ScanOptions{Folder: "INBOX"})
	require.NoError(t, err)

	lines := logs.FilterMessage("classified").All()
	require.Len(t, lines, 3)
	fields := lines[0].ContextMap()
	assert.Equal(t, "INBOX/1", fields["message_id"])
	assert.Equal(t, "someone@unknown.example", fields["sender"])
	assert.Equal(t, "oracle", fields["source"])
	assert.Equal(t, "delete", fields["label"])
	assert.InDelta(t, 0.83, fields["confidence"], 1e-9)
}

func TestScanContinuesAfterInvalidOracleVerdict(t *testing.T) {
	f := newScanFixture(t, 2)
	f.oracle.result.Confidence = 1.4

	stats, err := f.scanner.Scan(context.Background(), ScanOptions{Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 0, stats.Classified)
	assert.Equal(t, 2, stats.OracleFailures)
}

func TestScanSkipsMissingMessage(t *testing.T) {
	f := newScanFixture(t, 3)
	f.mailbox.FetchErr[2] = mailbox.ErrNoSuchMessage

	stats, err := f.scanner.Scan(context.Background(), ScanOptions{Folder: "INBOX"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FetchFailures)
	assert.Equal(t, 2, stats.Classified)
}

func TestScanAbortsWhenMailboxUnavailable(t *testing.T) {
	f := newScanFixture(t, 3)
	f.mailbox.FetchErr[2] = mailbox.ErrUnavailable

	stats, err := f.scanner.Scan(context.Background(), ScanOptions{Folder: "INBOX"})
	require.Error(t, err)
	assert.ErrorIs(t, err, mailbox.ErrUnavailable)
	assert.Equal(t, 1, stats.Classified)
	assert.Equal(t, 2, f.mailbox.Fetches)
}

func TestScanCanceled(t *testing.T) {
	f := newScanFixture(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.scanner.Scan(ctx, ScanOptions{Folder: "INBOX"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.mailbox.Fetches)
}

func TestScanStopsBetweenMessages(t *testing.T) {
	f := newScanFixture(t, 3)
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel while the first message is being scored; its verdict is
	// already in hand and the loop stops before the next message.
	f.scanner.pipeline.tiers = append(f.scanner.pipeline.tiers[:2], cancelingTier{cancel: cancel, next: f.scanner.pipeline.tiers[2]})

	_, err := f.scanner.Scan(ctx, ScanOptions{Folder: "INBOX"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.mailbox.Fetches)
}

type cancelingTier struct {
	cancel context.CancelFunc
	next   Tier
}

func (c cancelingTier) Source() model.Source { return c.next.Source() }

func (c cancelingTier) Classify(
	ctx context.Context,
	msg model.MessageRecord,
	at time.Time,
	stats *model.RunStatistics,
) (*model.Verdict, error) {
	v, err := c.next.Classify(ctx, msg, at, stats)
	c.cancel()
	return v, err
}

var _ oracle.Oracle = (*fakeOracle)(nil)
