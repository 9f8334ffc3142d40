package normalize

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/utils"
)

// ErrUnreadable is returned when the message header cannot be parsed at all
var ErrUnreadable = errors.New("unreadable message")

// Envelope carries the SMTP envelope, used when headers are missing
type Envelope struct {
	From string
	To   []string
}

// Normalizer parses RFC 822 messages
type Normalizer struct {
	maxBodyChars  int
	textProcessor *utils.TextProcessor
	logger        *zap.Logger
	now           func() time.Time
}

// NewNormalizer creates a normalizer. maxBodyChars <= 0 selects the default cap.
func NewNormalizer(maxBodyChars int, textProcessor *utils.TextProcessor, logger *zap.Logger) *Normalizer {
	if maxBodyChars <= 0 {
		maxBodyChars = DefaultMaxBodyChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}
	return &Normalizer{
		maxBodyChars:  maxBodyChars,
		textProcessor: textProcessor,
		logger:        logger,
		now:           time.Now,
	}
}

// Body turns raw body content into cleaned, capped body text
func (n *Normalizer) Body(content string, isHTML bool) string {
	if isHTML {
		content = HTMLToText(content)
	}
	return n.textProcessor.ProcessText(CleanBody(content), n.maxBodyChars)
}

// Parse reads one RFC 822 message. Undecodable parts are skipped; the
// envelope fills in a missing From or To.
func (n *Normalizer) Parse(r io.Reader, env Envelope) (*core.NormalizedMessage, error) {
	mr, err := mail.CreateReader(r)
	if mr == nil || (err != nil && !message.IsUnknownCharset(err)) {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if err != nil {
		n.logger.Debug("Unknown charset in message header", zap.Error(err))
	}
	defer mr.Close()

	h := mr.Header
	msg := &core.NormalizedMessage{
		Importance: importance(h.Header),
		ReceivedAt: n.now().UTC().Format(time.RFC3339),
	}

	if id, err := h.MessageID(); err == nil && id != "" {
		msg.InternetMessageID = "<" + id + ">"
		msg.MessageID = id
	}
	if refs, err := h.MsgIDList("References"); err == nil && len(refs) > 0 {
		msg.ConversationID = refs[0]
	} else {
		msg.ConversationID = msg.MessageID
	}
	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = h.Get("Subject")
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		msg.SentAt = date.UTC().Format(time.RFC3339)
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = core.Address{Name: from[0].Name, Email: from[0].Address}
	} else if env.From != "" {
		msg.From = core.Address{Email: env.From}
	}
	msg.To = addresses(h, "To")
	msg.Cc = addresses(h, "Cc")
	if len(msg.To) == 0 && len(msg.Cc) == 0 {
		msg.To = append([]string(nil), env.To...)
	}

	plain, html := n.readParts(mr, msg)
	switch {
	case strings.TrimSpace(plain) != "":
		msg.BodyText = n.Body(plain, false)
	case html != "":
		msg.BodyText = n.Body(html, true)
	}
	msg.BodyPreview = Preview(msg.BodyText)
	return msg, nil
}

// readParts returns the first text/plain and text/html bodies and marks
// attachments on msg
func (n *Normalizer) readParts(mr *mail.Reader, msg *core.NormalizedMessage) (plain, html string) {
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return plain, html
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				n.logger.Debug("Skipping undecodable part", zap.Error(err))
				continue
			}
			n.logger.Debug("Stopped reading message parts", zap.Error(err))
			return plain, html
		}

		switch ph := p.Header.(type) {
		case *mail.AttachmentHeader:
			msg.HasAttachments = true
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			if ct == "" {
				ct = "text/plain"
			}
			switch {
			case ct == "text/plain" && plain == "":
				b, err := io.ReadAll(p.Body)
				if err == nil {
					plain = string(b)
				}
			case ct == "text/html" && html == "":
				b, err := io.ReadAll(p.Body)
				if err == nil {
					html = string(b)
				}
			case !strings.HasPrefix(ct, "text/"):
				msg.HasAttachments = true
			}
		}
	}
}

func addresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a.Address != "" {
			out = append(out, a.Address)
		}
	}
	return out
}

// importance maps Importance and X-Priority headers to Graph style values
func importance(h message.Header) string {
	switch strings.ToLower(strings.TrimSpace(h.Get("Importance"))) {
	case "high":
		return "high"
	case "low":
		return "low"
	}
	prio := strings.TrimSpace(h.Get("X-Priority"))
	switch {
	case strings.HasPrefix(prio, "1"), strings.HasPrefix(prio, "2"):
		return "high"
	case strings.HasPrefix(prio, "4"), strings.HasPrefix(prio, "5"):
		return "low"
	}
	return "normal"
}
