package mailbox

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailtriage/internal/model"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseBodyPrefersPlainText(t *testing.T) {
	raw := crlf(`From: Alice <alice@example.com>
Subject: Lunch
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

Are we   still on
for lunch?
--inner
Content-Type: text/html; charset=utf-8

<p>HTML version</p>
--inner--
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="menu.pdf"

JVBERi0xLjQK
--outer--
`)

	got := parseBody(raw)
	assert.Equal(t, "Are we still on for lunch?", got.Preview)
	assert.True(t, got.HasAttachments)
}

func TestParseBodyHTMLOnly(t *testing.T) {
	raw := crlf(`From: shop@example.com
Content-Type: text/html; charset=utf-8

<html><body><p>Big <b>sale</b> today</p></body></html>
`)

	got := parseBody(raw)
	assert.Contains(t, got.Preview, "Big sale today")
	assert.NotContains(t, got.Preview, "<b>")
	assert.False(t, got.HasAttachments)
}

func TestParseBodyDecodesCharset(t *testing.T) {
	raw := append(crlf(`From: a@example.com
Content-Type: text/plain; charset=iso-8859-1

Caf`), 0xe9, '\r', '\n')

	got := parseBody(raw)
	assert.Equal(t, "Café", got.Preview)
}

func TestParseBodyTruncatesPreview(t *testing.T) {
	raw := crlf("From: a@example.com\nContent-Type: text/plain\n\n" + strings.Repeat("é", 800) + "\n")

	got := parseBody(raw)
	assert.Equal(t, model.PreviewLength, len([]rune(got.Preview)))
}

func TestParseHeader(t *testing.T) {
	raw := crlf(`From: "Bob B." <Bob@Example.COM>
Subject: =?utf-8?q?Caf=C3=A9_meeting?=
Date: Mon, 06 Jan 2025 09:30:00 +0000
Message-ID: <abc@example.com>

hi
`)

	var rec model.MessageRecord
	require.NoError(t, parseHeader(raw, &rec))

	assert.Equal(t, "bob@example.com", rec.Sender)
	assert.Equal(t, "Bob B.", rec.SenderName)
	assert.Equal(t, "Café meeting", rec.Subject)
	assert.Equal(t, "abc@example.com", rec.MessageIDHeader)
	assert.True(t, rec.ReceivedAt.Equal(time.Date(2025, 1, 6, 9, 30, 0, 0, time.UTC)))
}

func TestRecordFromBuffer(t *testing.T) {
	internal := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	buf := &imapclient.FetchMessageBuffer{
		UID:          42,
		RFC822Size:   1234,
		InternalDate: internal,
		Envelope: &imap.Envelope{
			Subject:   "Hello",
			MessageID: "m1@example.com",
			From: []imap.Address{{
				Name:    "Carol",
				Mailbox: "Carol",
				Host:    "Example.org",
			}},
		},
	}

	rec := recordFromBuffer("INBOX", buf)
	assert.Equal(t, "INBOX/42", rec.ID)
	assert.Equal(t, uint32(42), rec.UID)
	assert.Equal(t, "carol@example.org", rec.Sender)
	assert.Equal(t, "Carol", rec.SenderName)
	assert.Equal(t, int64(1234), rec.SizeBytes)
	// Envelope without a date falls back to the internal date.
	assert.Equal(t, internal, rec.ReceivedAt)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(&AuthError{Username: "u", Message: "bad"}))
	assert.True(t, IsFatal(ErrUnavailable))
	assert.True(t, IsFatal(ErrReadOnly))
	assert.False(t, IsFatal(ErrNoSuchMessage))
}
