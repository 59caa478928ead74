package pattern

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/tests/testutil"
)

var thresholds = model.PatternConfig{
	Sender:   model.PatternThreshold{MinDecisions: 3, Ratio: 0.90},
	Domain:   model.PatternThreshold{MinDecisions: 8, Ratio: 0.90},
	Category: model.PatternThreshold{MinDecisions: 15, Ratio: 0.85},
}

func profile(g model.Granularity, key string, keep, del int) model.SenderProfile {
	return model.SenderProfile{Granularity: g, Key: key, KeepCount: keep, DeleteCount: del}
}

func TestHasPatternThresholds(t *testing.T) {
	tests := []struct {
		name  string
		keep  int
		del   int
		want  bool
		label model.Label
	}{
		{"three of three", 0, 3, true, model.LabelDelete},
		{"two decisions never qualify", 0, 2, false, ""},
		{"nine of ten", 1, 9, true, model.LabelDelete},
		{"eight of ten", 2, 8, false, ""},
		{"eight ninety nine of a thousand", 101, 899, false, ""},
		{"keep majority", 10, 1, true, model.LabelKeep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profile(model.GranularitySender, "a@b.example", tt.keep, tt.del)
			label, ok := p.HasPattern(thresholds.Sender.MinDecisions, thresholds.Sender.Ratio)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.label, label)
		})
	}
}

func TestApplyIncrements(t *testing.T) {
	p := profile(model.GranularitySender, "a@b.example", 0, 0)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, p.Apply(model.LabelDelete, at))
	require.NoError(t, p.Apply(model.LabelArchive, at))
	require.Error(t, p.Apply("shred", at))

	assert.Equal(t, 1, p.DeleteCount)
	assert.Equal(t, 1, p.ArchiveCount)
	assert.Equal(t, 2, p.Total())
	require.NotNil(t, p.LastDecidedAt)
	assert.Equal(t, at, *p.LastDecidedAt)
}

func TestShouldSkipOracle(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t, testutil.WithProfiles(
		profile(model.GranularitySender, "deals@shop.example", 0, 3),
		profile(model.GranularitySender, "two@shop.example", 0, 2),
		profile(model.GranularityDomain, "shop.example", 0, 9),
		profile(model.GranularitySender, "mixed@other.example", 2, 2),
	))

	d := NewDetector(s, thresholds)

	t.Run("sender pattern", func(t *testing.T) {
		sugg, err := d.ShouldSkipOracle(ctx, "Deals@Shop.example")
		require.NoError(t, err)
		require.NotNil(t, sugg)
		assert.Equal(t, model.GranularitySender, sugg.Granularity)
		assert.Equal(t, model.LabelDelete, sugg.Label)
		assert.InDelta(t, 1.0, sugg.Ratio, 1e-9)
	})

	t.Run("falls back to domain", func(t *testing.T) {
		sugg, err := d.ShouldSkipOracle(ctx, "two@shop.example")
		require.NoError(t, err)
		require.NotNil(t, sugg)
		assert.Equal(t, model.GranularityDomain, sugg.Granularity)
		assert.Equal(t, "shop.example", sugg.Key)
	})

	t.Run("no pattern", func(t *testing.T) {
		sugg, err := d.ShouldSkipOracle(ctx, "mixed@other.example")
		require.NoError(t, err)
		assert.Nil(t, sugg)
	})

	t.Run("unknown sender", func(t *testing.T) {
		sugg, err := d.ShouldSkipOracle(ctx, "new@nowhere.example")
		require.NoError(t, err)
		assert.Nil(t, sugg)
	})
}

func TestSuggestionVerdict(t *testing.T) {
	sugg := Suggestion{
		Granularity: model.GranularitySender,
		Key:         "a@b.example",
		Label:       model.LabelDelete,
		Ratio:       0.9,
		Total:       10,
	}
	msg := model.MessageRecord{ID: "INBOX/7"}

	v := sugg.Verdict(msg, time.Now())
	require.NoError(t, v.Validate())
	assert.Equal(t, model.SourcePattern, v.Source)
	assert.Equal(t, 0.9, v.ConfidenceCalibrated)
	assert.Contains(t, v.Reasoning, "90% of 10")
}

func TestSuggestionsReport(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t, testutil.WithProfiles(
		profile(model.GranularitySender, "a@x.example", 0, 5),
		profile(model.GranularityCategory, "promotional", 2, 14),
		profile(model.GranularityCategory, "personal", 10, 0),
	))

	got, err := NewDetector(s, thresholds).Suggestions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.GranularitySender, got[0].Granularity)
	assert.Equal(t, "promotional", got[1].Key)
}
