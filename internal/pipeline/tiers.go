package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nhle/mailtriage/internal/calibration"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/oracle"
	"github.com/nhle/mailtriage/internal/pattern"
	"github.com/nhle/mailtriage/internal/rules"
)

// RuleTier applies the deterministic rule set.
type RuleTier struct {
	rules *rules.RuleSet
}

// NewRuleTier wraps rs as the first tier.
func NewRuleTier(rs *rules.RuleSet) *RuleTier {
	return &RuleTier{rules: rs}
}

func (t *RuleTier) Source() model.Source { return model.SourceRule }

func (t *RuleTier) Classify(
	_ context.Context,
	msg model.MessageRecord,
	now time.Time,
	stats *model.RunStatistics,
) (*model.Verdict, error) {
	return t.rules.Evaluate(msg, now, stats), nil
}

// PatternTier decides from learned sender and domain patterns.
type PatternTier struct {
	detector *pattern.Detector
}

// NewPatternTier wraps d as the second tier.
func NewPatternTier(d *pattern.Detector) *PatternTier {
	return &PatternTier{detector: d}
}

func (t *PatternTier) Source() model.Source { return model.SourcePattern }

func (t *PatternTier) Classify(
	ctx context.Context,
	msg model.MessageRecord,
	now time.Time,
	_ *model.RunStatistics,
) (*model.Verdict, error) {
	s, err := t.detector.ShouldSkipOracle(ctx, msg.Sender)
	if err != nil || s == nil {
		return nil, err
	}
	v := s.Verdict(msg, now)
	return &v, nil
}

// ExemplarSource supplies past decisions shown to the oracle.
type ExemplarSource interface {
	ListExemplars(ctx context.Context, sender string, limit int) ([]model.Exemplar, error)
}

// OracleTier asks the scoring model and calibrates its confidence.
type OracleTier struct {
	oracle      oracle.Oracle
	exemplars   ExemplarSource
	maxExamples int
	limiter     *rate.Limiter
	calibration *calibration.Model
	logger      *zap.Logger
}

// OracleTierConfig holds the collaborators of the oracle tier.
type OracleTierConfig struct {
	Oracle        oracle.Oracle
	Exemplars     ExemplarSource
	MaxExemplars  int
	RatePerMinute float64
	Calibration   *calibration.Model
	Logger        *zap.Logger
}

// NewOracleTier returns the last tier. A non-positive rate disables
// limiting.
func NewOracleTier(cfg OracleTierConfig) *OracleTier {
	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Limit(cfg.RatePerMinute / 60)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cal := cfg.Calibration
	if cal == nil {
		cal = calibration.New(model.CalibrationConfig{}, nil)
	}
	return &OracleTier{
		oracle:      cfg.Oracle,
		exemplars:   cfg.Exemplars,
		maxExamples: cfg.MaxExemplars,
		limiter:     rate.NewLimiter(limit, 1),
		calibration: cal,
		logger:      logger,
	}
}

func (t *OracleTier) Source() model.Source { return model.SourceOracle }

func (t *OracleTier) Classify(
	ctx context.Context,
	msg model.MessageRecord,
	now time.Time,
	_ *model.RunStatistics,
) (*model.Verdict, error) {
	var examples []model.Exemplar
	if t.exemplars != nil && t.maxExamples > 0 {
		var err error
		examples, err = t.exemplars.ListExemplars(ctx, msg.Sender, t.maxExamples)
		if err != nil {
			t.logger.Warn("loading exemplars failed",
				zap.String("sender", msg.Sender),
				zap.Error(err),
			)
			examples = nil
		}
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for oracle rate limit: %w", err)
	}

	res, err := t.oracle.Score(ctx, oracle.Request{
		Message:   msg,
		Exemplars: examples,
		Now:       now,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrOracleFault, err)
	}

	calibrated, note := t.calibration.Adjust(res.Confidence)
	t.logger.Debug("oracle verdict calibrated",
		zap.String("message_id", msg.ID),
		zap.Float64("raw", res.Confidence),
		zap.Float64("calibrated", calibrated),
		zap.String("note", note),
	)

	modelName := res.Model
	if modelName == "" {
		modelName = t.oracle.Model()
	}

	return &model.Verdict{
		MessageID:            msg.ID,
		Label:                res.Label,
		ConfidenceRaw:        res.Confidence,
		ConfidenceCalibrated: calibrated,
		Source:               model.SourceOracle,
		Category:             res.Category,
		Reasoning:            res.Reasoning,
		Model:                modelName,
		CreatedAt:            now,
	}, nil
}
