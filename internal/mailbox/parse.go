package mailbox

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"

	"github.com/nhle/mailtriage/internal/model"
)

// maxPartBytes bounds how much of a single inline part is read.
const maxPartBytes = 256 * 1024

// parsedBody is what the engine needs from a message body.
type parsedBody struct {
	Preview        string
	HasAttachments bool
}

// parseBody extracts a text preview and attachment presence from a raw
// RFC 5322 message. text/plain is preferred; HTML-only messages are
// converted to text.
func parseBody(raw []byte) parsedBody {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Not MIME; treat whatever follows the header as plain text.
		return parsedBody{Preview: makePreview(bodyAfterHeader(raw))}
	}
	defer mr.Close()

	var textBody, htmlBody string
	var out parsedBody

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(io.LimitReader(part.Body, maxPartBytes))
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain") && textBody == "":
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
				htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			out.HasAttachments = true
		}
	}

	switch {
	case strings.TrimSpace(textBody) != "":
		out.Preview = makePreview(textBody)
	case htmlBody != "":
		out.Preview = makePreview(html2text.HTML2Text(htmlBody))
	}
	return out
}

// parseHeader reads the fields the engine keeps from a message header.
func parseHeader(raw []byte, rec *model.MessageRecord) error {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer mr.Close()

	h := mr.Header
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		rec.Sender = strings.ToLower(from[0].Address)
		rec.SenderName = from[0].Name
	}
	if subject, err := h.Subject(); err == nil {
		rec.Subject = subject
	}
	if date, err := h.Date(); err == nil {
		rec.ReceivedAt = date
	}
	if id, err := h.MessageID(); err == nil {
		rec.MessageIDHeader = id
	}
	return nil
}

// makePreview collapses whitespace and truncates to model.PreviewLength
// characters.
func makePreview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= model.PreviewLength {
		return s
	}
	r := []rune(s)
	return string(r[:model.PreviewLength])
}

func bodyAfterHeader(raw []byte) string {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return string(raw[i+4:])
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return string(raw[i+2:])
	}
	return string(raw)
}
