// Package cleanup moves messages with approved delete decisions to the
// trash folder. Nothing is ever expunged.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/feedback"
	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/store"
)

// Options controls one cleanup run.
type Options struct {
	DryRun bool

	// AutoDelete selects pending, undecided delete verdicts at or above
	// MinConfidence instead of human-approved deletions. A message that
	// already has a decision is never auto-deleted again.
	AutoDelete    bool
	MinConfidence float64

	TrashFolder string
}

// Result summarizes a cleanup run.
type Result struct {
	Planned  []store.ClassifiedMessage
	Executed int
	Failed   int

	// Aborted is the error that stopped the batch, if any.
	Aborted error
}

// OK reports whether every planned move succeeded.
func (r *Result) OK() bool {
	return r.Failed == 0 && r.Aborted == nil
}

// Workflow selects and executes deletions.
type Workflow struct {
	mailbox  mailbox.Mailbox
	store    store.Store
	recorder *feedback.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewWorkflow returns a workflow moving messages in mb and recording
// outcomes in st.
func NewWorkflow(
	mb mailbox.Mailbox,
	st store.Store,
	rec *feedback.Recorder,
	logger *zap.Logger,
) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{mailbox: mb, store: st, recorder: rec, logger: logger, now: time.Now}
}

// Plan returns the messages a run with opts would move.
func (w *Workflow) Plan(ctx context.Context, opts Options) ([]store.ClassifiedMessage, error) {
	if !opts.AutoDelete {
		plan, err := w.store.ListApprovedDeletes(ctx)
		if err != nil {
			return nil, fmt.Errorf("selecting approved deletions: %w", err)
		}
		return plan, nil
	}

	if opts.MinConfidence <= 0 || opts.MinConfidence > 1 {
		return nil, fmt.Errorf("auto-delete min confidence %.2f must be in (0,1]", opts.MinConfidence)
	}
	plan, err := w.store.ListClassified(ctx, store.VerdictFilter{
		Statuses:      []model.MessageStatus{model.StatusPending},
		Label:         model.LabelDelete,
		MinConfidence: opts.MinConfidence,
		Undecided:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("selecting auto-delete candidates: %w", err)
	}
	return plan, nil
}

// Execute plans and, unless opts.DryRun, moves each planned message to
// the trash folder. A failed move leaves that message untouched; an auth
// or outage error stops the batch and is returned.
func (w *Workflow) Execute(
	ctx context.Context,
	opts Options,
	stats *model.RunStatistics,
) (*Result, error) {
	if opts.TrashFolder == "" {
		return nil, fmt.Errorf("trash folder is not configured")
	}

	plan, err := w.Plan(ctx, opts)
	if err != nil {
		return nil, err
	}
	res := &Result{Planned: plan}
	if stats != nil {
		stats.CleanupPlanned += len(plan)
	}

	if opts.DryRun {
		w.logger.Info("dry run; nothing moved", zap.Int("planned", len(plan)))
		return res, nil
	}

	for _, cm := range plan {
		if err := ctx.Err(); err != nil {
			res.Aborted = err
			break
		}

		err := w.moveOne(ctx, cm, opts)
		if err == nil {
			res.Executed++
			continue
		}
		if mailbox.IsFatal(err) {
			res.Aborted = err
			w.logger.Error("cleanup aborted", zap.String("message_id", cm.MessageRecord.ID), zap.Error(err))
			break
		}
		var se *storeError
		if errors.As(err, &se) {
			res.Aborted = err
			break
		}
		res.Failed++
		w.logger.Warn("move failed; status unchanged",
			zap.String("message_id", cm.MessageRecord.ID),
			zap.Error(err),
		)
	}

	if stats != nil {
		stats.CleanupExecuted += res.Executed
		stats.CleanupFailed += res.Failed
	}
	if res.Aborted != nil {
		return res, res.Aborted
	}
	return res, nil
}

// storeError marks a failure to record a move that already happened.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func (w *Workflow) moveOne(ctx context.Context, cm store.ClassifiedMessage, opts Options) error {
	msg := cm.MessageRecord
	if err := w.mailbox.Move(ctx, msg.Folder, msg.UID, opts.TrashFolder); err != nil {
		return err
	}

	now := w.now().UTC()
	err := w.store.InTx(ctx, func(q store.Querier) error {
		if opts.AutoDelete {
			if _, err := w.recorder.RecordIn(ctx, q, feedback.Input{
				MessageID: msg.ID,
				Label:     model.LabelDelete,
				Notes:     fmt.Sprintf("auto-deleted (confidence %.2f)", cm.Verdict.ConfidenceCalibrated),
				Automatic: true,
			}); err != nil {
				return err
			}
		}
		return q.SetMessageStatus(ctx, msg.ID, model.StatusDeleted, now)
	})
	if err != nil {
		return &storeError{err: fmt.Errorf("recording move of %s: %w", msg.ID, err)}
	}

	w.logger.Info("moved to trash",
		zap.String("message_id", msg.ID),
		zap.String("trash", opts.TrashFolder),
	)
	return nil
}

// FormatPlan writes the planned deletions. Dry runs and live runs print
// the same listing for the same plan.
func FormatPlan(w io.Writer, plan []store.ClassifiedMessage, opts Options) error {
	mode := "approved deletions"
	if opts.AutoDelete {
		mode = fmt.Sprintf("auto-delete candidates (confidence >= %.2f)", opts.MinConfidence)
	}
	if _, err := fmt.Fprintf(w, "%d %s -> %s\n", len(plan), mode, opts.TrashFolder); err != nil {
		return err
	}

	for _, cm := range plan {
		msg := cm.MessageRecord
		_, err := fmt.Fprintf(w, "  [%.2f] %-14s %s  %-30s %s (%s)\n",
			cm.Verdict.ConfidenceCalibrated,
			msg.ID,
			msg.ReceivedAt.UTC().Format("2006-01-02"),
			truncate(msg.Sender, 30),
			truncate(msg.Subject, 50),
			humanize.Bytes(uint64(max(msg.SizeBytes, 0))),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
