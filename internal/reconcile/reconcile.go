// Package reconcile keeps stored message status in line with what is
// actually on the mail server. It never modifies the mailbox.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/model"
	"github.com/nhle/mailtriage/internal/store"
)

// ErrEmptyListing is returned when the server lists no messages but the
// store has active ones. An empty listing is more likely a server fault
// than a mass deletion.
var ErrEmptyListing = errors.New("mailbox listing is empty while active records exist")

// Diff is the set of status changes reconciliation applies.
type Diff struct {
	// MarkDeleted holds active records no longer on the server.
	MarkDeleted []string

	// Restore holds deleted records that are back on the server.
	Restore []string
}

// Plan compares stored ids with the live listing. It has no side effects.
func Plan(active, deleted, live []string) Diff {
	present := make(map[string]struct{}, len(live))
	for _, id := range live {
		present[id] = struct{}{}
	}

	var d Diff
	for _, id := range active {
		if _, ok := present[id]; !ok {
			d.MarkDeleted = append(d.MarkDeleted, id)
		}
	}
	for _, id := range deleted {
		if _, ok := present[id]; ok {
			d.Restore = append(d.Restore, id)
		}
	}
	sort.Strings(d.MarkDeleted)
	sort.Strings(d.Restore)
	return d
}

// Engine applies diffs through the store.
type Engine struct {
	mailbox mailbox.Mailbox
	store   store.Store
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine returns an engine comparing mb against st.
func NewEngine(mb mailbox.Mailbox, st store.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{mailbox: mb, store: st, logger: logger, now: time.Now}
}

var activeStatuses = []model.MessageStatus{
	model.StatusPending,
	model.StatusApproved,
	model.StatusKept,
}

// Reconcile lists folder on the server and updates stored status to match.
// Per-record failures are counted in stats and do not stop the run.
func (e *Engine) Reconcile(
	ctx context.Context,
	folder string,
	stats *model.RunStatistics,
) (Diff, error) {
	if stats == nil {
		stats = model.NewRunStatistics()
	}

	uids, err := e.mailbox.ListUIDs(ctx, folder)
	if err != nil {
		return Diff{}, fmt.Errorf("listing %s: %w", folder, err)
	}
	live := make([]string, len(uids))
	for i, uid := range uids {
		live[i] = model.MessageKey(folder, uid)
	}

	active, err := e.ids(ctx, folder, activeStatuses...)
	if err != nil {
		return Diff{}, err
	}
	deleted, err := e.ids(ctx, folder, model.StatusDeleted)
	if err != nil {
		return Diff{}, err
	}

	stats.CheckedActive += len(active)
	stats.CheckedDeleted += len(deleted)

	if len(live) == 0 && len(active) > 0 {
		return Diff{}, fmt.Errorf("reconciling %s (%d active records): %w", folder, len(active), ErrEmptyListing)
	}

	diff := Plan(active, deleted, live)
	stats.MissingOnServer += len(diff.MarkDeleted)

	now := e.now().UTC()
	for _, id := range diff.MarkDeleted {
		if err := ctx.Err(); err != nil {
			return diff, err
		}
		if err := e.store.SetMessageStatus(ctx, id, model.StatusDeleted, now); err != nil {
			stats.ReconcileErrors++
			e.logger.Warn("marking deleted failed", zap.String("message_id", id), zap.Error(err))
			continue
		}
		stats.MarkedDeleted++
	}
	for _, id := range diff.Restore {
		if err := ctx.Err(); err != nil {
			return diff, err
		}
		if err := e.store.SetMessageStatus(ctx, id, model.StatusPending, now); err != nil {
			stats.ReconcileErrors++
			e.logger.Warn("restoring failed", zap.String("message_id", id), zap.Error(err))
			continue
		}
		stats.Restored++
	}

	e.logger.Info("reconciled",
		zap.String("folder", folder),
		zap.Int("live", len(live)),
		zap.Int("marked_deleted", stats.MarkedDeleted),
		zap.Int("restored", stats.Restored),
		zap.Int("errors", stats.ReconcileErrors),
	)
	return diff, nil
}

func (e *Engine) ids(ctx context.Context, folder string, statuses ...model.MessageStatus) ([]string, error) {
	msgs, err := e.store.ListMessages(ctx, store.MessageFilter{Statuses: statuses, Folder: folder})
	if err != nil {
		return nil, fmt.Errorf("listing stored messages in %s: %w", folder, err)
	}
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids, nil
}

// PruneCandidates returns deleted records whose deletion is older than
// days.
func (e *Engine) PruneCandidates(ctx context.Context, days int) ([]model.MessageRecord, error) {
	if days < 0 {
		return nil, fmt.Errorf("prune age must not be negative, got %d", days)
	}
	cutoff := e.now().UTC().AddDate(0, 0, -days)

	deleted, err := e.store.ListMessages(ctx, store.MessageFilter{
		Statuses: []model.MessageStatus{model.StatusDeleted},
	})
	if err != nil {
		return nil, fmt.Errorf("listing deleted messages: %w", err)
	}

	var out []model.MessageRecord
	for _, m := range deleted {
		if m.DeletedAt != nil && m.DeletedAt.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out, nil
}

// PruneOlderThan removes deleted records older than days, with their
// verdicts and decisions, from the store only.
func (e *Engine) PruneOlderThan(
	ctx context.Context,
	days int,
	stats *model.RunStatistics,
) (int, error) {
	candidates, err := e.PruneCandidates(ctx, days)
	if err != nil {
		return 0, err
	}

	pruned := 0
	err = e.store.InTx(ctx, func(q store.Querier) error {
		for _, m := range candidates {
			if err := q.DeleteMessage(ctx, m.ID); err != nil {
				return err
			}
			pruned++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning deleted records: %w", err)
	}

	if stats != nil {
		stats.Pruned += pruned
	}
	e.logger.Info("pruned deleted records", zap.Int("count", pruned), zap.Int("older_than_days", days))
	return pruned, nil
}
