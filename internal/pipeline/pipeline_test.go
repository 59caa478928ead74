package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailtriage/internal/calibration"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/oracle"
	"github.com/nhle/mailtriage/internal/pattern"
	"github.com/nhle/mailtriage/internal/rules"
	"github.com/nhle/mailtriage/internal/store"
	"github.com/nhle/mailtriage/tests/testutil"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeOracle struct {
	mu       sync.Mutex
	calls    int
	requests []oracle.Request
	result   oracle.Result
	failOn   string
	err      error
}

func (f *fakeOracle) Score(_ context.Context, req oracle.Request) (oracle.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if f.failOn != "" && strings.Contains(req.Message.Subject, f.failOn) {
		return oracle.Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeOracle) Model() string { return "fake" }

func newFakeOracle() *fakeOracle {
	return &fakeOracle{result: oracle.Result{
		Label:      model.LabelDelete,
		Confidence: 0.93,
		Reasoning:  "bulk mail",
		Category:   "promotional",
		Model:      "fake-1",
	}}
}

// overconfident is a bucket where 0.9 stated confidence was right 70% of
// the time.
func overconfident() *calibration.Model {
	return calibration.New(
		model.CalibrationConfig{MinSamples: 10, Factor: 0.5},
		[]model.CalibrationBucket{{Index: 3, SampleCount: 10, CorrectCount: 7, AvgStatedConfidence: 0.9}},
	)
}

func buildPipeline(t *testing.T, s store.Store, o oracle.Oracle) *Pipeline {
	t.Helper()
	cfg := model.DefaultAppConfig()
	cfg.Rules.VIPSenders = []string{"boss@corp.example"}

	p := New(nil,
		NewRuleTier(rules.New(rules.DefaultRules(cfg.Rules), nil)),
		NewPatternTier(pattern.NewDetector(s, cfg.Pattern)),
		NewOracleTier(OracleTierConfig{
			Oracle:       o,
			Exemplars:    s,
			MaxExemplars: 3,
			Calibration:  overconfident(),
		}),
	)
	p.now = func() time.Time { return now }
	return p
}

func msg(uid uint32, sender, subject string) model.MessageRecord {
	return testutil.Message(uid, sender, subject, now.Add(-24*time.Hour))
}

func TestClassifyTierOrder(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := newFakeOracle()
	p := buildPipeline(t, s, o)

	require.NoError(t, s.SaveProfile(ctx, model.SenderProfile{
		Granularity: model.GranularitySender,
		Key:         "deals@shop.example",
		DeleteCount: 3,
	}))

	stats := model.NewRunStatistics()

	v, err := p.Classify(ctx, msg(1, "boss@corp.example", "Status report"), stats)
	require.NoError(t, err)
	assert.Equal(t, model.SourceRule, v.Source)
	assert.Equal(t, rules.RuleVIPSender, v.RuleName)

	v, err = p.Classify(ctx, msg(2, "deals@shop.example", "Status report"), stats)
	require.NoError(t, err)
	assert.Equal(t, model.SourcePattern, v.Source)
	assert.Equal(t, model.LabelDelete, v.Label)

	assert.Equal(t, 0, o.calls, "rule and pattern tiers never reach the oracle")

	v, err = p.Classify(ctx, msg(3, "someone@unknown.example", "Status report"), stats)
	require.NoError(t, err)
	assert.Equal(t, model.SourceOracle, v.Source)
	assert.Equal(t, "fake-1", v.Model)
	assert.InDelta(t, 0.93, v.ConfidenceRaw, 1e-9)
	assert.InDelta(t, 0.83, v.ConfidenceCalibrated, 1e-9)
	assert.Equal(t, 1, o.calls)

	assert.Equal(t, 3, stats.Classified)
	assert.Equal(t, 1, stats.TierCounts[model.SourceRule])
	assert.Equal(t, 1, stats.TierCounts[model.SourcePattern])
	assert.Equal(t, 1, stats.TierCounts[model.SourceOracle])
	assert.Equal(t, 1, stats.RuleHits[rules.RuleVIPSender])
	assert.InDelta(t, 0.10, stats.MeanCalibrationDelta(), 1e-9)
}

func TestClassifyPassesExemplars(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	o := newFakeOracle()
	p := buildPipeline(t, s, o)

	past := msg(10, "team@vendor.example", "Weekly digest")
	testutil.SeedClassified(t, s, past, testutil.Verdict(past, model.LabelDelete, 0.7))
	require.NoError(t, s.InsertDecision(ctx, model.Decision{
		MessageID:     past.ID,
		ApprovedLabel: model.LabelKeep,
		VerdictLabel:  model.LabelDelete,
		VerdictSource: model.SourceOracle,
		DecidedAt:     now,
	}))

	_, err := p.Classify(ctx, msg(11, "other@vendor.example", "Status report"), nil)
	require.NoError(t, err)

	require.Len(t, o.requests, 1)
	require.Len(t, o.requests[0].Exemplars, 1)
	ex := o.requests[0].Exemplars[0]
	assert.Equal(t, "team@vendor.example", ex.Sender)
	assert.Equal(t, model.LabelKeep, ex.ApprovedLabel)
	assert.Equal(t, now, o.requests[0].Now)
}

func TestClassifyOracleFault(t *testing.T) {
	s := testutil.NewTestStore(t)
	o := newFakeOracle()
	o.failOn = "Status"
	o.err = oracle.ErrMalformed
	p := buildPipeline(t, s, o)

	_, err := p.Classify(context.Background(), msg(1, "someone@unknown.example", "Status report"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOracleFault)
	assert.ErrorIs(t, err, oracle.ErrMalformed)
}

func TestClassifyInvalidOracleVerdictIsFault(t *testing.T) {
	s := testutil.NewTestStore(t)
	o := newFakeOracle()
	o.result.Label = "maybe"
	p := buildPipeline(t, s, o)

	_, err := p.Classify(context.Background(), msg(1, "someone@unknown.example", "Status report"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOracleFault)
}

func TestClassifyWithoutOracle(t *testing.T) {
	cfg := model.DefaultAppConfig()
	p := New(nil, NewRuleTier(rules.New(rules.DefaultRules(cfg.Rules), nil)))
	p.now = func() time.Time { return now }

	_, err := p.Classify(context.Background(), msg(1, "someone@unknown.example", "Status report"), nil)
	assert.ErrorIs(t, err, ErrUnclassified)
	assert.Equal(t, []model.Source{model.SourceRule}, p.Tiers())
}

func TestClassifyCanceled(t *testing.T) {
	s := testutil.NewTestStore(t)
	o := newFakeOracle()
	p := buildPipeline(t, s, o)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Classify(ctx, msg(1, "someone@unknown.example", "Status report"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, o.calls)
}
