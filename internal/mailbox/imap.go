package mailbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"go.uber.org/zap"

	"github.com/nhle/mailtriage/internal/model"
)

// IMAPClient wraps go-imap v2 and keeps one authenticated session open
// for the lifetime of a command.
type IMAPClient struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	logger   *zap.Logger

	mu       sync.Mutex
	client   *imapclient.Client
	selected string
}

// NewIMAPClient creates a new IMAP client configuration. No connection is
// made until the first operation.
func NewIMAPClient(cfg model.MailboxConfig, password string, logger *zap.Logger) *IMAPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IMAPClient{
		host:     cfg.Host,
		port:     strconv.Itoa(cfg.Port),
		username: cfg.Username,
		password: password,
		tls:      cfg.Security != "starttls",
		logger:   logger,
	}
}

// connect establishes and authenticates the session if needed.
func (c *IMAPClient) connect(ctx context.Context) (*imapclient.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(c.host, c.port)

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w: %v", addr, ErrUnavailable, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{
			Username: c.username,
			Message:  fmt.Sprintf("authentication failed: %v", err),
		}
	}

	c.logger.Debug("imap session established", zap.String("addr", addr))
	c.client = client
	c.selected = ""
	return client, nil
}

// sessionFor returns a session with folder selected.
func (c *IMAPClient) sessionFor(ctx context.Context, folder string) (*imapclient.Client, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	if c.selected == folder {
		return client, nil
	}

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		if isConnError(err) {
			c.reset()
			return nil, fmt.Errorf("selecting %s: %w: %v", folder, ErrUnavailable, err)
		}
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}
	c.selected = folder
	return client, nil
}

// reset drops a broken session so the next call reconnects.
func (c *IMAPClient) reset() {
	if c.client != nil {
		_ = c.client.Close()
	}
	c.client = nil
	c.selected = ""
}

// Search returns UIDs in folder received within criteria.
func (c *IMAPClient) Search(
	ctx context.Context,
	folder string,
	criteria SearchCriteria,
) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.sessionFor(ctx, folder)
	if err != nil {
		return nil, err
	}

	sc := &imap.SearchCriteria{
		Since:  criteria.Since,
		Before: criteria.Before,
	}

	data, err := client.UIDSearch(sc, nil).Wait()
	if err != nil {
		return nil, c.wrap("searching "+folder, err)
	}

	return sortedUIDs(data.AllUIDs()), nil
}

// ListUIDs returns every UID in folder.
func (c *IMAPClient) ListUIDs(ctx context.Context, folder string) ([]uint32, error) {
	return c.Search(ctx, folder, SearchCriteria{})
}

// Fetch retrieves the envelope, size and body of one message without
// setting \Seen.
func (c *IMAPClient) Fetch(
	ctx context.Context,
	folder string,
	uid uint32,
) (*model.MessageRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.sessionFor(ctx, folder)
	if err != nil {
		return nil, err
	}

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:     true,
		UID:          true,
		RFC822Size:   true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(imap.UID(uid)), fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return nil, c.wrap(fmt.Sprintf("fetching UID %d", uid), err)
		}
		return nil, fmt.Errorf("fetching UID %d in %s: %w", uid, folder, ErrNoSuchMessage)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, c.wrap("collecting message data", err)
	}

	rec := recordFromBuffer(folder, buf)
	if raw := buf.FindBodySection(bodySection); raw != nil {
		body := parseBody(raw)
		rec.BodyPreview = body.Preview
		rec.HasAttachments = body.HasAttachments
	}

	if err := fetchCmd.Close(); err != nil {
		return rec, c.wrap("closing fetch", err)
	}

	return rec, nil
}

// Move moves one message to dest using the MOVE extension (go-imap falls
// back to COPY + STORE \Deleted + UID EXPUNGE of that UID only).
func (c *IMAPClient) Move(
	ctx context.Context,
	folder string,
	uid uint32,
	dest string,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.sessionFor(ctx, folder)
	if err != nil {
		return err
	}

	if _, err := client.Move(imap.UIDSetNum(imap.UID(uid)), dest).Wait(); err != nil {
		return c.wrap(fmt.Sprintf("moving UID %d to %s", uid, dest), err)
	}
	return nil
}

// ListFolders returns every mailbox name on the server.
func (c *IMAPClient) ListFolders(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	boxes, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, c.wrap("listing folders", err)
	}

	names := make([]string, 0, len(boxes))
	for _, b := range boxes {
		names = append(names, b.Mailbox)
	}
	sort.Strings(names)
	return names, nil
}

// Close logs out of the session, if one is open.
func (c *IMAPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Logout().Wait()
	_ = c.client.Close()
	c.client = nil
	c.selected = ""
	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// wrap annotates err and marks broken connections as ErrUnavailable.
func (c *IMAPClient) wrap(action string, err error) error {
	if isConnError(err) {
		c.reset()
		return fmt.Errorf("%s: %w: %v", action, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

func isConnError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return imapErr.Type == imap.StatusResponseTypeBye
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "EOF")
}

// recordFromBuffer maps fetched envelope data to a message record.
func recordFromBuffer(folder string, buf *imapclient.FetchMessageBuffer) *model.MessageRecord {
	uid := uint32(buf.UID)
	rec := &model.MessageRecord{
		ID:        model.MessageKey(folder, uid),
		UID:       uid,
		Folder:    folder,
		SizeBytes: buf.RFC822Size,
	}

	if buf.Envelope != nil {
		rec.MessageIDHeader = buf.Envelope.MessageID
		rec.Subject = buf.Envelope.Subject
		rec.ReceivedAt = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			rec.Sender = strings.ToLower(from.Addr())
			rec.SenderName = from.Name
		}
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = buf.InternalDate
	}

	return rec
}

func sortedUIDs(uids []imap.UID) []uint32 {
	out := make([]uint32, len(uids))
	for i, u := range uids {
		out[i] = uint32(u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
