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

const messageColumns = `
	id, uid, folder, message_id_header, sender, sender_name, subject,
	received_at, body_preview, has_attachments, size_bytes,
	status, deleted_at, fetched_at`

// inChunk bounds the number of bound variables per IN query.
const inChunk = 500

// UpsertMessage inserts a message record. An existing record only has its
// folder and fetch time refreshed; status and content are left untouched.
func (q *queries) UpsertMessage(ctx context.Context, msg model.MessageRecord) error {
	if msg.ID == "" {
		return fmt.Errorf("message id must not be empty")
	}
	if msg.Status == "" {
		msg.Status = model.StatusPending
	}
	if msg.FetchedAt.IsZero() {
		msg.FetchedAt = time.Now()
	}

	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			folder = excluded.folder,
			fetched_at = excluded.fetched_at`,
		msg.ID, msg.UID, msg.Folder, msg.MessageIDHeader, msg.Sender, msg.SenderName, msg.Subject,
		msg.ReceivedAt.UTC(), msg.BodyPreview, boolToInt(msg.HasAttachments), msg.SizeBytes,
		string(msg.Status), utcPtr(msg.DeletedAt), msg.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting message %s: %w", msg.ID, err)
	}
	return nil
}

// GetMessage retrieves a single message record by ID.
func (q *queries) GetMessage(ctx context.Context, id string) (*model.MessageRecord, error) {
	var msg model.MessageRecord
	err := sqlx.GetContext(ctx, q.ext, &msg,
		"SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", id, err)
	}
	return &msg, nil
}

// ListMessages returns message records matching filter, oldest first.
func (q *queries) ListMessages(
	ctx context.Context,
	filter MessageFilter,
) ([]model.MessageRecord, error) {
	var conditions []string
	var args []interface{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Folder != "" {
		conditions = append(conditions, "folder = ?")
		args = append(args, filter.Folder)
	}
	if filter.Sender != "" {
		conditions = append(conditions, "sender = ?")
		args = append(args, strings.ToLower(filter.Sender))
	}

	query := "SELECT " + messageColumns + " FROM messages"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY received_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var msgs []model.MessageRecord
	if err := sqlx.SelectContext(ctx, q.ext, &msgs, query, args...); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// SetMessageStatus moves a message to status. Moving to deleted stamps
// deleted_at with at; any other status clears it.
func (q *queries) SetMessageStatus(
	ctx context.Context,
	id string,
	status model.MessageStatus,
	at time.Time,
) error {
	var deletedAt *time.Time
	if status == model.StatusDeleted {
		t := at.UTC()
		deletedAt = &t
	}

	result, err := q.ext.ExecContext(ctx,
		"UPDATE messages SET status = ?, deleted_at = ? WHERE id = ?",
		string(status), deletedAt, id,
	)
	if err != nil {
		return fmt.Errorf("setting status of message %s: %w", id, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("setting status of message %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteMessage removes a message record. Its verdict and decisions
// cascade.
func (q *queries) DeleteMessage(ctx context.Context, id string) error {
	result, err := q.ext.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting message %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("deleting message %s: %w", id, ErrNotFound)
	}
	return nil
}
