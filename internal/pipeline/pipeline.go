// Package pipeline classifies messages by running them through an ordered
// list of tiers, cheapest first, until one produces a verdict.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/model"
)

var (
	// ErrUnclassified is returned when no tier produced a verdict.
	ErrUnclassified = errors.New("no tier produced a verdict")

	// ErrOracleFault marks oracle failures: malformed output, transport
	// errors and timeouts. The message is left unclassified.
	ErrOracleFault = errors.New("oracle fault")
)

// Tier is one stage of the pipeline. A tier returns nil when it has no
// opinion about msg.
type Tier interface {
	Source() model.Source
	Classify(
		ctx context.Context,
		msg model.MessageRecord,
		now time.Time,
		stats *model.RunStatistics,
	) (*model.Verdict, error)
}

// Pipeline runs tiers in order and returns the first verdict.
type Pipeline struct {
	tiers  []Tier
	logger *zap.Logger
	now    func() time.Time
}

// New returns a pipeline over tiers, evaluated in the given order.
func New(logger *zap.Logger, tiers ...Tier) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{tiers: tiers, logger: logger, now: time.Now}
}

// Tiers returns the sources of the configured tiers in evaluation order.
func (p *Pipeline) Tiers() []model.Source {
	out := make([]model.Source, len(p.tiers))
	for i, t := range p.tiers {
		out[i] = t.Source()
	}
	return out
}

// Classify returns the verdict of the first tier that has one.
func (p *Pipeline) Classify(
	ctx context.Context,
	msg model.MessageRecord,
	stats *model.RunStatistics,
) (model.Verdict, error) {
	now := p.now().UTC()

	for _, tier := range p.tiers {
		if err := ctx.Err(); err != nil {
			return model.Verdict{}, err
		}

		v, err := tier.Classify(ctx, msg, now, stats)
		if err != nil {
			return model.Verdict{}, fmt.Errorf("%s tier on %s: %w", tier.Source(), msg.ID, err)
		}
		if v == nil {
			continue
		}

		if v.Source != tier.Source() {
			return model.Verdict{}, fmt.Errorf("%s tier returned a %s verdict for %s", tier.Source(), v.Source, msg.ID)
		}
		if err := v.Validate(); err != nil {
			if tier.Source() == model.SourceOracle {
				return model.Verdict{}, fmt.Errorf("%w: %w", ErrOracleFault, err)
			}
			return model.Verdict{}, err
		}

		stats.RecordVerdict(*v)
		p.logger.Debug("tier verdict",
			zap.String("message_id", msg.ID),
			zap.String("source", string(v.Source)),
			zap.String("label", string(v.Label)),
			zap.Float64("confidence", v.ConfidenceCalibrated),
		)
		return *v, nil
	}

	return model.Verdict{}, fmt.Errorf("classifying %s: %w", msg.ID, ErrUnclassified)
}
