package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCleanBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "  Hi Dan,  \r\n\r\nCan you review?\r\n", "Hi Dan,\n\nCan you review?"},
		{"gmail reply", "Sounds good.\n\nOn Mon, Jan 15, 2026 at 10:30 AM Amy <amy@x.com> wrote:\n> old text", "Sounds good."},
		{"original message", "Done.\n-----Original Message-----\nFrom: Amy", "Done."},
		{"outlook block", "See below\nFrom: Amy Lee\nSent: Monday\nTo: Dan\nSubject: Re: x\nold", "See below"},
		{"forward", "FYI\n---------- Forwarded message ---------\nstuff", "FYI"},
		{"signature", "Thanks\n-- \nAmy Lee\nCFO", "Thanks"},
		{"mobile", "Ok\nSent from my iPhone", "Ok"},
		{"outlook mobile", "Ok\n\nGet Outlook for iOS", "Ok"},
		{"blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"earliest marker wins", "Top\nSent from my Pixel\nOn Tue, Amy wrote:\nold", "Top"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanBody(tt.in))
		})
	}
}

func TestHTMLToText(t *testing.T) {
	text := HTMLToText("<html><body><p>Hi Dan,</p><p>Please approve &amp; sign.</p></body></html>")
	assert.Contains(t, text, "Hi Dan,")
	assert.Contains(t, text, "Please approve & sign.")
	assert.NotContains(t, text, "<p>")
	assert.NotContains(t, text, "\r")
	assert.Empty(t, HTMLToText(""))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", Preview(" a\n\nb\tc "))
	assert.Len(t, []rune(Preview(strings.Repeat("é", 400))), PreviewChars)
}

func TestBodyIsCapped(t *testing.T) {
	n := NewNormalizer(0, nil, zap.NewNop())
	body := n.Body(strings.Repeat("x", 5000), false)
	assert.Len(t, body, DefaultMaxBodyChars)
	assert.True(t, strings.HasSuffix(body, "..."))
}

func newTestNormalizer() *Normalizer {
	n := NewNormalizer(0, nil, zap.NewNop())
	n.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return n
}

func TestParse_Plain(t *testing.T) {
	raw := "From: Amy Lee <amy@acme.com>\r\n" +
		"To: Dan <dan@acme.com>, ben@acme.com\r\n" +
		"Cc: ops@acme.com\r\n" +
		"Subject: Budget review\r\n" +
		"Date: Mon, 10 Mar 2025 09:30:00 +0100\r\n" +
		"Message-ID: <abc@acme.com>\r\n" +
		"References: <root@acme.com> <mid@acme.com>\r\n" +
		"X-Priority: 1 (Highest)\r\n" +
		"\r\n" +
		"Hi Dan,\r\n\r\nCan you approve the budget by Friday?\r\n\r\nOn Sun, Mar 9, 2025 Ben wrote:\r\n> earlier\r\n"

	msg, err := newTestNormalizer().Parse(strings.NewReader(raw), Envelope{})
	require.NoError(t, err)

	assert.Equal(t, "abc@acme.com", msg.MessageID)
	assert.Equal(t, "<abc@acme.com>", msg.InternetMessageID)
	assert.Equal(t, "root@acme.com", msg.ConversationID)
	assert.Equal(t, "Budget review", msg.Subject)
	assert.Equal(t, "Amy Lee", msg.From.Name)
	assert.Equal(t, "amy@acme.com", msg.From.Email)
	assert.Equal(t, []string{"dan@acme.com", "ben@acme.com"}, msg.To)
	assert.Equal(t, []string{"ops@acme.com"}, msg.Cc)
	assert.Equal(t, "2025-03-10T08:30:00Z", msg.SentAt)
	assert.Equal(t, "2025-03-10T12:00:00Z", msg.ReceivedAt)
	assert.Equal(t, "high", msg.Importance)
	assert.False(t, msg.IsRead)
	assert.False(t, msg.HasAttachments)
	assert.Equal(t, "Hi Dan,\n\nCan you approve the budget by Friday?", msg.BodyText)
	assert.Equal(t, "Hi Dan, Can you approve the budget by Friday?", msg.BodyPreview)
}

func TestParse_MultipartPrefersPlainAndSeesAttachments(t *testing.T) {
	raw := "From: amy@acme.com\r\n" +
		"To: dan@acme.com\r\n" +
		"Subject: Contract\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=outer\r\n" +
		"\r\n" +
		"--outer\r\n" +
		"Content-Type: multipart/alternative; boundary=inner\r\n" +
		"\r\n" +
		"--inner\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Please sign the attached contract.\r\n" +
		"--inner\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Please sign the <b>attached</b> contract.</p>\r\n" +
		"--inner--\r\n" +
		"--outer\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Disposition: attachment; filename=contract.pdf\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"JVBERi0xLjQK\r\n" +
		"--outer--\r\n"

	msg, err := newTestNormalizer().Parse(strings.NewReader(raw), Envelope{})
	require.NoError(t, err)
	assert.Equal(t, "Please sign the attached contract.", msg.BodyText)
	assert.True(t, msg.HasAttachments)
	assert.Equal(t, "normal", msg.Importance)
}

func TestParse_HTMLOnly(t *testing.T) {
	raw := "From: news@shop.com\r\n" +
		"To: dan@acme.com\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"Importance: low\r\n" +
		"\r\n" +
		"<html><body><div>Weekly deals</div><div>Unsubscribe here</div></body></html>\r\n"

	msg, err := newTestNormalizer().Parse(strings.NewReader(raw), Envelope{})
	require.NoError(t, err)
	assert.Contains(t, msg.BodyText, "Weekly deals")
	assert.NotContains(t, msg.BodyText, "<div>")
	assert.Equal(t, "low", msg.Importance)
}

func TestParse_EnvelopeFallback(t *testing.T) {
	raw := "Subject: bare\r\n\r\nhello\r\n"

	msg, err := newTestNormalizer().Parse(strings.NewReader(raw), Envelope{
		From: "bounce@lists.acme.com",
		To:   []string{"dan@acme.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "bounce@lists.acme.com", msg.From.Email)
	assert.Equal(t, []string{"dan@acme.com"}, msg.To)
	assert.Equal(t, "hello", msg.BodyText)
	assert.Empty(t, msg.MessageID)
}
