package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailtriage/internal/model"
)

const decisionColumns = `
	id, message_id, approved_label, verdict_label, verdict_source,
	confidence_raw, is_automatic, notes, decided_at`

// InsertDecision appends a decision. Generates a UUID if ID is empty.
func (q *queries) InsertDecision(ctx context.Context, d model.Decision) error {
	if !d.ApprovedLabel.Valid() {
		return fmt.Errorf("decision for %s has invalid label %q", d.MessageID, d.ApprovedLabel)
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}

	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO decisions (`+decisionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.MessageID, string(d.ApprovedLabel), string(d.VerdictLabel), string(d.VerdictSource),
		d.ConfidenceRaw, boolToInt(d.IsAutomatic), d.Notes, d.DecidedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting decision for %s: %w", d.MessageID, err)
	}
	return nil
}

// LatestDecision returns the most recent decision for a message.
func (q *queries) LatestDecision(ctx context.Context, messageID string) (*model.Decision, error) {
	var d model.Decision
	err := sqlx.GetContext(ctx, q.ext, &d, `
		SELECT `+decisionColumns+` FROM decisions
		WHERE message_id = ?
		ORDER BY decided_at DESC, rowid DESC
		LIMIT 1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting latest decision for %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest decision for %s: %w", messageID, err)
	}
	return &d, nil
}

// ListDecisions returns every decision for a message, oldest first.
func (q *queries) ListDecisions(ctx context.Context, messageID string) ([]model.Decision, error) {
	var decisions []model.Decision
	err := sqlx.SelectContext(ctx, q.ext, &decisions, `
		SELECT `+decisionColumns+` FROM decisions
		WHERE message_id = ?
		ORDER BY decided_at ASC, rowid ASC`, messageID)
	if err != nil {
		return nil, fmt.Errorf("listing decisions for %s: %w", messageID, err)
	}
	return decisions, nil
}

// ListExemplars returns up to limit past decisions for the same sender,
// topped up with decisions for other senders of the same domain.
func (q *queries) ListExemplars(
	ctx context.Context,
	sender string,
	limit int,
) ([]model.Exemplar, error) {
	if limit <= 0 {
		return nil, nil
	}
	sender = strings.ToLower(sender)

	condition := "m.sender = ?"
	args := []interface{}{sender}
	if domain := model.DomainOf(sender); domain != "" {
		condition = "(m.sender = ? OR m.sender LIKE ?)"
		args = append(args, "%@"+domain)
	}
	args = append(args, sender, limit)

	var exemplars []model.Exemplar
	err := sqlx.SelectContext(ctx, q.ext, &exemplars, `
		SELECT m.sender, m.subject, COALESCE(v.category, '') AS category,
		       d.verdict_label, d.approved_label
		FROM decisions d
		JOIN messages m ON m.id = d.message_id
		LEFT JOIN verdicts v ON v.message_id = d.message_id
		WHERE `+condition+`
		ORDER BY CASE WHEN m.sender = ? THEN 0 ELSE 1 END, d.decided_at DESC, d.rowid DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing exemplars for %s: %w", sender, err)
	}
	return exemplars, nil
}
