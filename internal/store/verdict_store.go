package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailtriage/internal/model"
)

const verdictColumns = `
	message_id, label, confidence_raw, confidence_calibrated, source,
	rule_name, category, reasoning, model, created_at`

const classifiedColumns = `
	m.id, m.uid, m.folder, m.message_id_header, m.sender, m.sender_name, m.subject,
	m.received_at, m.body_preview, m.has_attachments, m.size_bytes,
	m.status, m.deleted_at, m.fetched_at,
	v.message_id, v.label, v.confidence_raw, v.confidence_calibrated, v.source,
	v.rule_name, v.category, v.reasoning, v.model, v.created_at`

// SaveVerdict stores v as the message's current verdict, replacing any
// earlier one.
func (q *queries) SaveVerdict(ctx context.Context, v model.Verdict) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}

	_, err := q.ext.ExecContext(ctx, `
		INSERT OR REPLACE INTO verdicts (`+verdictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.MessageID, string(v.Label), v.ConfidenceRaw, v.ConfidenceCalibrated, string(v.Source),
		v.RuleName, v.Category, v.Reasoning, v.Model, v.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving verdict for %s: %w", v.MessageID, err)
	}
	return nil
}

// GetVerdict retrieves the current verdict for a message.
func (q *queries) GetVerdict(ctx context.Context, messageID string) (*model.Verdict, error) {
	var v model.Verdict
	err := sqlx.GetContext(ctx, q.ext, &v,
		"SELECT "+verdictColumns+" FROM verdicts WHERE message_id = ?", messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting verdict for %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting verdict for %s: %w", messageID, err)
	}
	return &v, nil
}

// ClassifiedIDs reports which of ids already have a verdict.
func (q *queries) ClassifiedIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))

	for start := 0; start < len(ids); start += inChunk {
		end := start + inChunk
		if end > len(ids) {
			end = len(ids)
		}

		query, args, err := sqlx.In(
			"SELECT message_id FROM verdicts WHERE message_id IN (?)", ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("building classified query: %w", err)
		}

		var chunk []string
		if err := sqlx.SelectContext(ctx, q.ext, &chunk, q.ext.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("querying classified ids: %w", err)
		}
		for _, id := range chunk {
			found[id] = true
		}
	}

	return found, nil
}

// ListClassified returns messages joined with their verdicts, ordered by
// calibrated confidence descending.
func (q *queries) ListClassified(
	ctx context.Context,
	filter VerdictFilter,
) ([]ClassifiedMessage, error) {
	var conditions []string
	var args []interface{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions, "m.status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Label != "" {
		conditions = append(conditions, "v.label = ?")
		args = append(args, string(filter.Label))
	}
	if filter.Source != "" {
		conditions = append(conditions, "v.source = ?")
		args = append(args, string(filter.Source))
	}
	if filter.Sender != "" {
		conditions = append(conditions, "m.sender = ?")
		args = append(args, strings.ToLower(filter.Sender))
	}
	if filter.MinConfidence > 0 {
		conditions = append(conditions, "v.confidence_calibrated >= ?")
		args = append(args, filter.MinConfidence)
	}
	if filter.Undecided {
		conditions = append(conditions,
			"NOT EXISTS (SELECT 1 FROM decisions d WHERE d.message_id = m.id)")
	}

	query := "SELECT " + classifiedColumns + " FROM messages m JOIN verdicts v ON v.message_id = m.id"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY v.confidence_calibrated DESC, m.received_at ASC, m.id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var items []ClassifiedMessage
	if err := sqlx.SelectContext(ctx, q.ext, &items, query, args...); err != nil {
		return nil, fmt.Errorf("listing classified messages: %w", err)
	}
	return items, nil
}

// ListApprovedDeletes returns approved messages whose most recent decision
// is delete, in received order.
func (q *queries) ListApprovedDeletes(ctx context.Context) ([]ClassifiedMessage, error) {
	query := "SELECT " + classifiedColumns + `
		FROM messages m
		JOIN verdicts v ON v.message_id = m.id
		WHERE m.status = ?
		  AND (
			SELECT d.approved_label FROM decisions d
			WHERE d.message_id = m.id
			ORDER BY d.decided_at DESC, d.rowid DESC
			LIMIT 1
		  ) = ?
		ORDER BY m.received_at ASC, m.id ASC`

	var items []ClassifiedMessage
	err := sqlx.SelectContext(ctx, q.ext, &items, query,
		string(model.StatusApproved), string(model.LabelDelete))
	if err != nil {
		return nil, fmt.Errorf("listing approved deletes: %w", err)
	}
	return items, nil
}
