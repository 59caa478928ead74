package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MessageStatus tracks where a message sits in its review lifecycle.
type MessageStatus string

const (
	// StatusPending means the message is in the mailbox and awaits a decision.
	StatusPending MessageStatus = "pending"

	// StatusApproved means a human approved deletion; cleanup has not run yet.
	StatusApproved MessageStatus = "approved"

	// StatusKept means a keep or archive decision closed the lifecycle.
	StatusKept MessageStatus = "kept"

	// StatusDeleted means the message left the mailbox, either through
	// cleanup or because reconciliation saw it vanish.
	StatusDeleted MessageStatus = "deleted"
)

// IsActive reports whether the status describes a message that should
// still be present in the live mailbox.
func (s MessageStatus) IsActive() bool {
	return s != StatusDeleted
}

// MessageRecord is the persisted descriptor of a single mailbox message.
type MessageRecord struct {
	// ID is the stable key "<folder>/<uid>" built by MessageKey.
	ID string `json:"id" db:"id"`

	// UID is the IMAP UID assigned by the mailbox.
	UID uint32 `json:"uid" db:"uid"`

	// Folder is the mailbox folder the message was fetched from.
	Folder string `json:"folder" db:"folder"`

	// MessageIDHeader is the RFC 5322 Message-ID, kept for diagnostics.
	MessageIDHeader string `json:"message_id_header" db:"message_id_header"`

	// Sender is the lower-cased sender address.
	Sender string `json:"sender" db:"sender"`

	// SenderName is the display name from the From header, if any.
	SenderName string `json:"sender_name" db:"sender_name"`

	Subject    string    `json:"subject" db:"subject"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`

	// BodyPreview holds at most PreviewLength characters of the text body.
	BodyPreview string `json:"body_preview" db:"body_preview"`

	HasAttachments bool  `json:"has_attachments" db:"has_attachments"`
	SizeBytes      int64 `json:"size_bytes" db:"size_bytes"`

	Status    MessageStatus `json:"status" db:"status"`
	DeletedAt *time.Time    `json:"deleted_at,omitempty" db:"deleted_at"`
	FetchedAt time.Time     `json:"fetched_at" db:"fetched_at"`
}

// PreviewLength caps the stored body preview.
const PreviewLength = 500

// MessageKey builds the record ID for a folder-scoped UID.
func MessageKey(folder string, uid uint32) string {
	return folder + "/" + strconv.FormatUint(uint64(uid), 10)
}

// ParseMessageKey splits a record ID back into folder and UID.
func ParseMessageKey(id string) (string, uint32, error) {
	i := strings.LastIndex(id, "/")
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("invalid message id %q", id)
	}
	uid, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid uid in message id %q: %w", id, err)
	}
	return id[:i], uint32(uid), nil
}

// AgeDays returns the number of whole days between ReceivedAt and now.
// A zero ReceivedAt yields 0.
func (m MessageRecord) AgeDays(now time.Time) int {
	if m.ReceivedAt.IsZero() || now.Before(m.ReceivedAt) {
		return 0
	}
	return int(now.Sub(m.ReceivedAt).Hours() / 24)
}

// SenderDomain returns the part of the sender address after '@',
// or an empty string when the address has no domain.
func (m MessageRecord) SenderDomain() string {
	return DomainOf(m.Sender)
}

// DomainOf extracts the lower-cased domain of an email address.
func DomainOf(addr string) string {
	i := strings.LastIndex(addr, "@")
	if i < 0 || i == len(addr)-1 {
		return ""
	}
	return strings.ToLower(addr[i+1:])
}
