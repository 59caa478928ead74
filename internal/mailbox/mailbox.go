// Package mailbox reads and moves messages in the user's mail store.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/model"
)

var (
	// ErrUnavailable means the mail store could not be reached. Callers
	// stop the current batch instead of retrying per message.
	ErrUnavailable = errors.New("mailbox unavailable")

	// ErrReadOnly is returned by backends that cannot move messages.
	ErrReadOnly = errors.New("mailbox is read-only")

	// ErrNoSuchMessage is returned when a UID is not in the folder.
	ErrNoSuchMessage = errors.New("no such message")
)

// AuthError indicates that the mail server rejected the credentials.
type AuthError struct {
	Username string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Username, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsFatal reports whether err should abort a batch of mailbox operations.
func IsFatal(err error) bool {
	return IsAuthError(err) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrReadOnly) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// SearchCriteria bounds a folder search by received date. Zero values
// leave that side open.
type SearchCriteria struct {
	Since  time.Time
	Before time.Time
}

// Mailbox is the mail store the engine reads from and moves messages in.
// UIDs are scoped to a folder.
type Mailbox interface {
	// Search returns matching UIDs in ascending order.
	Search(ctx context.Context, folder string, criteria SearchCriteria) ([]uint32, error)

	// Fetch returns the descriptor of one message. Status is left empty.
	Fetch(ctx context.Context, folder string, uid uint32) (*model.MessageRecord, error)

	// ListUIDs returns every UID currently in folder.
	ListUIDs(ctx context.Context, folder string) ([]uint32, error)

	// Move moves one message to dest without expunging anything else.
	Move(ctx context.Context, folder string, uid uint32, dest string) error

	// ListFolders returns all folder names.
	ListFolders(ctx context.Context) ([]string, error)

	Close() error
}

// Open returns the backend selected by cfg.Kind. password is ignored for
// mbox files.
func Open(cfg model.MailboxConfig, password string, logger *zap.Logger) (Mailbox, error) {
	switch cfg.Kind {
	case "", "imap":
		if cfg.Host == "" {
			return nil, fmt.Errorf("mailbox.host is not configured")
		}
		return NewIMAPClient(cfg, password, logger), nil
	case "mbox":
		return NewMboxFile(cfg.MboxPath, cfg.Folder, logger), nil
	default:
		return nil, fmt.Errorf("unsupported mailbox kind %q", cfg.Kind)
	}
}
