// Package feedback records decisions and folds them into the learned state:
// sender profiles and calibration buckets.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/calibration"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/store"
)

// ErrNoVerdict is returned when a decision targets an unclassified message.
var ErrNoVerdict = errors.New("message has no verdict")

// Input describes one decision to record.
type Input struct {
	MessageID string
	Label     model.Label
	Notes     string
	Automatic bool
}

// Recorder is the only writer of decisions.
type Recorder struct {
	store  store.Store
	cfg    model.CalibrationConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder returns a recorder writing through s.
func NewRecorder(s store.Store, cfg model.CalibrationConfig, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: s, cfg: cfg, logger: logger, now: time.Now}
}

// Record stores a decision and updates profiles and calibration in one
// transaction.
func (r *Recorder) Record(ctx context.Context, in Input) (*model.Decision, error) {
	var d *model.Decision
	err := r.store.InTx(ctx, func(q store.Querier) error {
		var err error
		d, err = r.RecordIn(ctx, q, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// RecordIn does the work of Record inside a transaction the caller owns.
func (r *Recorder) RecordIn(ctx context.Context, q store.Querier, in Input) (*model.Decision, error) {
	if !in.Label.Valid() {
		return nil, fmt.Errorf("invalid label %q", in.Label)
	}

	msg, err := q.GetMessage(ctx, in.MessageID)
	if err != nil {
		return nil, fmt.Errorf("loading message %s: %w", in.MessageID, err)
	}

	v, err := q.GetVerdict(ctx, in.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("deciding %s: %w", in.MessageID, ErrNoVerdict)
	}
	if err != nil {
		return nil, fmt.Errorf("loading verdict for %s: %w", in.MessageID, err)
	}

	now := r.now().UTC()
	d := model.Decision{
		ID:            uuid.New().String(),
		MessageID:     msg.ID,
		ApprovedLabel: in.Label,
		VerdictLabel:  v.Label,
		VerdictSource: v.Source,
		ConfidenceRaw: v.ConfidenceRaw,
		IsAutomatic:   in.Automatic,
		Notes:         in.Notes,
		DecidedAt:     now,
	}
	if err := q.InsertDecision(ctx, d); err != nil {
		return nil, err
	}

	// A decision on a message already gone from the server is kept as
	// history but does not revive it.
	if msg.Status != model.StatusDeleted {
		if err := q.SetMessageStatus(ctx, msg.ID, d.StatusAfter(), now); err != nil {
			return nil, fmt.Errorf("updating status of %s: %w", msg.ID, err)
		}
	}

	if err := applyProfiles(ctx, q, *msg, v.Category, in.Label, now); err != nil {
		return nil, err
	}

	if r.learnsFrom(d) {
		if err := r.observe(ctx, q, d); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("decision recorded",
		zap.String("message", d.MessageID),
		zap.String("label", string(d.ApprovedLabel)),
		zap.String("verdict", string(d.VerdictLabel)),
		zap.Bool("automatic", d.IsAutomatic),
	)
	return &d, nil
}

// learnsFrom reports whether d is evidence about oracle accuracy. Automatic
// decisions only confirm the verdict they were made from.
func (r *Recorder) learnsFrom(d model.Decision) bool {
	if d.IsAutomatic {
		return false
	}
	return !r.cfg.OracleOnly || d.VerdictSource == model.SourceOracle
}

func (r *Recorder) observe(ctx context.Context, q store.Querier, d model.Decision) error {
	persisted, err := q.ListBuckets(ctx)
	if err != nil {
		return fmt.Errorf("loading calibration buckets: %w", err)
	}
	b := calibration.New(r.cfg, persisted).Observe(d.ConfidenceRaw, d.Agreed())
	if err := q.SaveBucket(ctx, b); err != nil {
		return fmt.Errorf("saving calibration bucket %d: %w", b.Index, err)
	}
	return nil
}

func applyProfiles(
	ctx context.Context,
	q store.Querier,
	msg model.MessageRecord,
	category string,
	label model.Label,
	at time.Time,
) error {
	keys := map[model.Granularity]string{
		model.GranularitySender: strings.ToLower(msg.Sender),
		model.GranularityDomain: msg.SenderDomain(),
	}
	if category != "" && category != "unknown" {
		keys[model.GranularityCategory] = category
	}

	for g, key := range keys {
		if key == "" {
			continue
		}
		p, err := q.GetProfile(ctx, g, key)
		if errors.Is(err, store.ErrNotFound) {
			p = &model.SenderProfile{Granularity: g, Key: key}
		} else if err != nil {
			return fmt.Errorf("loading %s profile %s: %w", g, key, err)
		}
		if err := p.Apply(label, at); err != nil {
			return fmt.Errorf("updating %s profile %s: %w", g, key, err)
		}
		if err := q.SaveProfile(ctx, *p); err != nil {
			return fmt.Errorf("saving %s profile %s: %w", g, key, err)
		}
	}
	return nil
}

// ApproveSender accepts the current verdict of every pending message from
// sender. It returns how many decisions were recorded.
func (r *Recorder) ApproveSender(ctx context.Context, sender string, notes string) (int, error) {
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		return 0, fmt.Errorf("sender is required")
	}

	count := 0
	err := r.store.InTx(ctx, func(q store.Querier) error {
		pending, err := q.ListClassified(ctx, store.VerdictFilter{
			Statuses: []model.MessageStatus{model.StatusPending},
			Sender:   sender,
		})
		if err != nil {
			return fmt.Errorf("listing pending messages from %s: %w", sender, err)
		}
		for _, cm := range pending {
			if _, err := r.RecordIn(ctx, q, Input{
				MessageID: cm.MessageRecord.ID,
				Label:     cm.Verdict.Label,
				Notes:     notes,
			}); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
