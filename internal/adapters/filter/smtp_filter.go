package filter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/metrics"
	"github.com/mikey/mail-triage/internal/normalize"
	"github.com/mikey/mail-triage/internal/triage"
)

// SMTPFilter is a Postfix content filter. It accepts mail over SMTP, stamps
// the triage decision into headers and re-injects the message at the next hop.
type SMTPFilter struct {
	service    *triage.Service
	normalizer *normalize.Normalizer
	logger     *zap.Logger
	cfg        config.ServerConfig

	mu       sync.Mutex
	server   *smtp.Server
	listener net.Listener
}

// NewSMTPFilter creates a new SMTP content filter
func NewSMTPFilter(service *triage.Service, normalizer *normalize.Normalizer, cfg config.ServerConfig, logger *zap.Logger) *SMTPFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPFilter{
		service:    service,
		normalizer: normalizer,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start starts listening and serving in the background
func (f *SMTPFilter) Start() error {
	l, err := net.Listen("tcp", f.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.cfg.ListenAddress, err)
	}

	server := smtp.NewServer(&smtpBackend{filter: f})
	server.Addr = f.cfg.ListenAddress
	server.Domain = f.cfg.Hostname
	server.ReadTimeout = 30 * time.Second
	server.WriteTimeout = 30 * time.Second
	server.MaxMessageBytes = f.cfg.MaxMessageBytes
	server.MaxRecipients = 50

	f.mu.Lock()
	f.server = server
	f.listener = l
	f.mu.Unlock()

	f.logger.Info("SMTP filter starting",
		zap.String("address", l.Addr().String()),
		zap.String("next_hop", f.cfg.NextHop))

	go func() {
		if err := server.Serve(l); err != nil && err != smtp.ErrServerClosed {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the listening address once started
func (f *SMTPFilter) Addr() net.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// Stop closes the server and commits buffered sender history
func (f *SMTPFilter) Stop() error {
	f.mu.Lock()
	server := f.server
	f.mu.Unlock()

	var err error
	if server != nil {
		err = server.Close()
	}
	f.service.Flush(context.Background())
	return err
}

// ProcessMessage normalizes and triages one raw message
func (f *SMTPFilter) ProcessMessage(ctx context.Context, raw []byte, env normalize.Envelope) (*core.TriageResult, error) {
	msg, err := f.normalizer.Parse(bytes.NewReader(raw), env)
	if err != nil {
		return nil, err
	}
	res, _ := f.service.Decide(ctx, msg)
	return res, nil
}

// stamp replaces any triage headers already present with ours, leaving the
// body untouched
func (f *SMTPFilter) stamp(raw []byte, res *core.TriageResult) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}

	names := f.cfg.Headers
	for _, name := range []string{names.Decision, names.Score, names.Reason, names.Source} {
		h.Del(name)
	}
	h.Set(names.Decision, string(res.Decision))
	h.Set(names.Score, strconv.Itoa(res.Score))
	h.Set(names.Reason, headerValue(res.Reason))
	h.Set(names.Source, string(res.Source))

	var out bytes.Buffer
	if err := textproto.WriteHeader(&out, h); err != nil {
		return nil, fmt.Errorf("failed to write message header: %w", err)
	}
	if _, err := io.Copy(&out, br); err != nil {
		return nil, fmt.Errorf("failed to copy message body: %w", err)
	}
	return out.Bytes(), nil
}

// headerValue folds a free-text value onto one line, Q-encoding non-ASCII
func headerValue(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return mime.QEncoding.Encode("utf-8", s)
}

// relay sends the message to the next hop using go-smtp
func (f *SMTPFilter) relay(sender string, recipients []string, data []byte) error {
	conn, err := net.DialTimeout("tcp", f.cfg.NextHop, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to next hop: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(f.cfg.Hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	accepted := 0
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", rcpt),
				zap.Error(err))
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// handle triages and re-injects one message. Triage problems never block
// delivery; the message is passed on unstamped.
func (f *SMTPFilter) handle(sender string, recipients []string, raw []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	out := raw
	status := "stamped"
	res, err := f.ProcessMessage(ctx, raw, normalize.Envelope{From: sender, To: recipients})
	if err == nil {
		out, err = f.stamp(raw, res)
	}
	if err != nil {
		f.logger.Warn("Passing message through without triage headers",
			zap.String("sender", sender),
			zap.Error(err))
		out = raw
		status = "passthrough"
	}

	if err := f.relay(sender, recipients, out); err != nil {
		metrics.FilteredMessages.WithLabelValues("relay_error").Inc()
		f.logger.Error("Failed to re-inject message",
			zap.String("sender", sender),
			zap.String("next_hop", f.cfg.NextHop),
			zap.Error(err))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary failure re-injecting message",
		}
	}
	metrics.FilteredMessages.WithLabelValues(status).Inc()

	if res != nil {
		f.logger.Info("Processed message",
			zap.String("sender", sender),
			zap.String("decision", string(res.Decision)),
			zap.Int("score", res.Score),
			zap.String("source", string(res.Source)),
			zap.Strings("overrides", res.Overrides))
	}
	return nil
}

type smtpBackend struct {
	filter *SMTPFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

type smtpSession struct {
	filter     *SMTPFilter
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}
	return s.filter.handle(s.sender, s.recipients, raw)
}

func (s *smtpSession) Logout() error {
	return nil
}
