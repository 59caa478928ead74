package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/store"
)

// ScanOptions selects which messages a scan classifies.
type ScanOptions struct {
	Folder string
	Since  time.Time
	Before time.Time

	// Limit caps the number of messages classified; zero means no cap.
	Limit int

	NewestFirst bool

	// Rescan reclassifies messages that already have a verdict.
	Rescan bool
}

// Scanner drives the pipeline over a mailbox folder.
type Scanner struct {
	mailbox  mailbox.Mailbox
	store    store.Store
	pipeline *Pipeline
	logger   *zap.Logger
	now      func() time.Time
}

// NewScanner returns a scanner reading from mb and persisting to st.
func NewScanner(mb mailbox.Mailbox, st store.Store, p *Pipeline, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{mailbox: mb, store: st, pipeline: p, logger: logger, now: time.Now}
}

// Scan classifies the messages selected by opts. Statistics are returned
// even when the scan stops early.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*model.RunStatistics, error) {
	stats := model.NewRunStatistics()

	uids, err := s.mailbox.Search(ctx, opts.Folder, mailbox.SearchCriteria{
		Since:  opts.Since,
		Before: opts.Before,
	})
	if err != nil {
		return stats, fmt.Errorf("searching %s: %w", opts.Folder, err)
	}
	if opts.NewestFirst {
		slices.Reverse(uids)
	}

	if !opts.Rescan {
		uids, err = s.unclassified(ctx, opts.Folder, uids, stats)
		if err != nil {
			return stats, err
		}
	}
	if opts.Limit > 0 && len(uids) > opts.Limit {
		uids = uids[:opts.Limit]
	}

	s.logger.Info("scan started",
		zap.String("folder", opts.Folder),
		zap.Int("candidates", len(uids)),
		zap.Int("already_classified", stats.Skipped),
		zap.Bool("rescan", opts.Rescan),
	)

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.scanOne(ctx, opts.Folder, uid, stats); err != nil {
			return stats, err
		}
	}

	s.logger.Info("scan finished",
		zap.Int("fetched", stats.Fetched),
		zap.Int("classified", stats.Classified),
		zap.Int("oracle_failures", stats.OracleFailures),
		zap.Int("fetch_failures", stats.FetchFailures),
	)
	return stats, nil
}

// unclassified drops UIDs whose message already has a verdict.
func (s *Scanner) unclassified(
	ctx context.Context,
	folder string,
	uids []uint32,
	stats *model.RunStatistics,
) ([]uint32, error) {
	ids := make([]string, len(uids))
	for i, uid := range uids {
		ids[i] = model.MessageKey(folder, uid)
	}
	done, err := s.store.ClassifiedIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("checking classified messages: %w", err)
	}

	out := uids[:0:0]
	for i, uid := range uids {
		if done[ids[i]] {
			stats.Skipped++
			continue
		}
		out = append(out, uid)
	}
	return out, nil
}

// scanOne fetches, stores and classifies a single message. It returns an
// error only when the whole scan must stop.
func (s *Scanner) scanOne(
	ctx context.Context,
	folder string,
	uid uint32,
	stats *model.RunStatistics,
) error {
	msg, err := s.mailbox.Fetch(ctx, folder, uid)
	if err != nil {
		if mailbox.IsFatal(err) {
			return fmt.Errorf("fetching UID %d: %w", uid, err)
		}
		stats.FetchFailures++
		s.logger.Warn("fetch failed",
			zap.String("folder", folder),
			zap.Uint32("uid", uid),
			zap.Error(err),
		)
		return nil
	}
	stats.Fetched++

	msg.Status = model.StatusPending
	msg.FetchedAt = s.now().UTC()
	if err := s.store.UpsertMessage(ctx, *msg); err != nil {
		return err
	}

	v, err := s.pipeline.Classify(ctx, *msg, stats)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrOracleFault):
		stats.OracleFailures++
		s.logger.Warn("oracle failed; message left unclassified",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return nil
	case errors.Is(err, ErrUnclassified):
		s.logger.Debug("no verdict", zap.String("message_id", msg.ID))
		return nil
	default:
		return err
	}

	if err := s.store.SaveVerdict(ctx, v); err != nil {
		return err
	}
	s.logger.Info("classified",
		zap.String("message_id", msg.ID),
		zap.String("sender", msg.Sender),
		zap.String("source", string(v.Source)),
		zap.String("label", string(v.Label)),
		zap.Float64("confidence", v.ConfidenceCalibrated),
	)
	return nil
}
