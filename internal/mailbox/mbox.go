package mailbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/emersion/go-mbox"
	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/model"
)

// MboxFile serves a local mbox file as a single read-only folder. UIDs are
// the 1-based positions of messages in the file.
type MboxFile struct {
	path   string
	folder string
	logger *zap.Logger

	once     sync.Once
	loadErr  error
	messages []*model.MessageRecord
}

// NewMboxFile creates a backend for the mbox at path, exposed under folder.
// The file is read on first use.
func NewMboxFile(path, folder string, logger *zap.Logger) *MboxFile {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MboxFile{path: path, folder: folder, logger: logger}
}

func (m *MboxFile) load() error {
	m.once.Do(func() {
		f, err := os.Open(m.path)
		if err != nil {
			m.loadErr = fmt.Errorf("opening mbox %s: %w: %v", m.path, ErrUnavailable, err)
			return
		}
		defer f.Close()

		fetchedAt := time.Now().UTC()
		reader := mbox.NewReader(f)
		var uid uint32
		for {
			r, err := reader.NextMessage()
			if err == io.EOF {
				break
			}
			if err != nil {
				m.loadErr = fmt.Errorf("reading mbox %s: %w", m.path, err)
				return
			}
			uid++

			raw, err := io.ReadAll(r)
			if err != nil {
				m.loadErr = fmt.Errorf("reading message %d: %w", uid, err)
				return
			}

			rec := &model.MessageRecord{
				ID:        model.MessageKey(m.folder, uid),
				UID:       uid,
				Folder:    m.folder,
				SizeBytes: int64(len(raw)),
				FetchedAt: fetchedAt,
			}
			if err := parseHeader(raw, rec); err != nil {
				m.logger.Warn("unparseable message header",
					zap.Uint32("uid", uid),
					zap.Error(err),
				)
			}
			body := parseBody(raw)
			rec.BodyPreview = body.Preview
			rec.HasAttachments = body.HasAttachments

			m.messages = append(m.messages, rec)
		}
		m.logger.Debug("mbox loaded",
			zap.String("path", m.path),
			zap.Int("messages", len(m.messages)),
		)
	})
	return m.loadErr
}

func (m *MboxFile) checkFolder(folder string) error {
	if folder != m.folder {
		return fmt.Errorf("folder %q not in mbox (only %q): %w", folder, m.folder, ErrNoSuchMessage)
	}
	return nil
}

// Search returns UIDs whose received date lies within criteria, using
// IMAP day semantics.
func (m *MboxFile) Search(
	ctx context.Context,
	folder string,
	criteria SearchCriteria,
) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.checkFolder(folder); err != nil {
		return nil, err
	}
	if err := m.load(); err != nil {
		return nil, err
	}

	since := truncateDay(criteria.Since)
	before := truncateDay(criteria.Before)

	var uids []uint32
	for _, rec := range m.messages {
		day := truncateDay(rec.ReceivedAt)
		if !since.IsZero() && day.Before(since) {
			continue
		}
		if !before.IsZero() && !day.Before(before) {
			continue
		}
		uids = append(uids, rec.UID)
	}
	return uids, nil
}

// ListUIDs returns every UID in the file.
func (m *MboxFile) ListUIDs(ctx context.Context, folder string) ([]uint32, error) {
	return m.Search(ctx, folder, SearchCriteria{})
}

// Fetch returns a copy of the record for uid.
func (m *MboxFile) Fetch(
	ctx context.Context,
	folder string,
	uid uint32,
) (*model.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.checkFolder(folder); err != nil {
		return nil, err
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	if uid == 0 || int(uid) > len(m.messages) {
		return nil, fmt.Errorf("fetching UID %d in %s: %w", uid, folder, ErrNoSuchMessage)
	}
	rec := *m.messages[uid-1]
	return &rec, nil
}

// Move always fails; mbox files are never rewritten.
func (m *MboxFile) Move(_ context.Context, folder string, uid uint32, dest string) error {
	return fmt.Errorf("moving UID %d from %s to %s: %w", uid, folder, dest, ErrReadOnly)
}

// ListFolders returns the single folder name.
func (m *MboxFile) ListFolders(_ context.Context) ([]string, error) {
	return []string{m.folder}, nil
}

func (m *MboxFile) Close() error { return nil }

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
