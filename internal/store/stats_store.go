package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailtriage/internal/model"
)

type countRow struct {
	Key   string `db:"k"`
	Count int    `db:"n"`
}

// Stats summarizes message, verdict and decision counts.
func (q *queries) Stats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{
		ByStatus: make(map[model.MessageStatus]int),
		BySource: make(map[model.Source]int),
		ByLabel:  make(map[model.Label]int),
	}

	if err := sqlx.GetContext(ctx, q.ext, &stats.Messages, "SELECT COUNT(*) FROM messages"); err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}
	if err := sqlx.GetContext(ctx, q.ext, &stats.Decisions, "SELECT COUNT(*) FROM decisions"); err != nil {
		return nil, fmt.Errorf("counting decisions: %w", err)
	}

	var rows []countRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows,
		"SELECT status AS k, COUNT(*) AS n FROM messages GROUP BY status"); err != nil {
		return nil, fmt.Errorf("counting messages by status: %w", err)
	}
	for _, r := range rows {
		stats.ByStatus[model.MessageStatus(r.Key)] = r.Count
	}

	rows = nil
	if err := sqlx.SelectContext(ctx, q.ext, &rows,
		"SELECT source AS k, COUNT(*) AS n FROM verdicts GROUP BY source"); err != nil {
		return nil, fmt.Errorf("counting verdicts by source: %w", err)
	}
	for _, r := range rows {
		stats.BySource[model.Source(r.Key)] = r.Count
	}

	rows = nil
	if err := sqlx.SelectContext(ctx, q.ext, &rows,
		"SELECT label AS k, COUNT(*) AS n FROM verdicts GROUP BY label"); err != nil {
		return nil, fmt.Errorf("counting verdicts by label: %w", err)
	}
	for _, r := range rows {
		stats.ByLabel[model.Label(r.Key)] = r.Count
	}

	return stats, nil
}

// Active returns the number of messages not yet deleted.
func (s *DBStats) Active() int {
	return s.Messages - s.ByStatus[model.StatusDeleted]
}
