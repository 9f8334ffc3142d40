package filter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/store"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/heuristics"
	"github.com/mikey/mail-triage/internal/normalize"
	"github.com/mikey/mail-triage/internal/triage"
)

const user = "dan@acme.com"

func newService(t *testing.T, userEmail string) (*triage.Service, *store.MemoryStore) {
	t.Helper()
	b := &triage.Builder{
		Weights: heuristics.DefaultWeights(),
		Policy:  triage.DefaultPolicy(),
		Clock:   func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) },
	}
	st := store.NewMemoryStore(nil, nil)
	return triage.NewService(b, userEmail, st, nil, 2, zap.NewNop()), st
}

func headerNames() config.HeaderNames {
	return config.HeaderNames{
		Decision: "X-Triage-Decision",
		Score:    "X-Triage-Score",
		Reason:   "X-Triage-Reason",
		Source:   "X-Triage-Source",
	}
}

const approvalMail = "From: Ben <ben@acme.com>\r\n" +
	"To: dan@acme.com\r\n" +
	"Subject: Please approve the attached agreement by EOD\r\n" +
	"Importance: high\r\n" +
	"X-Triage-Decision: ignore\r\n" +
	"\r\n" +
	"See subject.\r\n"

type captured struct {
	from string
	to   []string
	data []byte
}

type captureBackend struct {
	got chan captured
}

func (b *captureBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &captureSession{got: b.got}, nil
}

type captureSession struct {
	got chan captured
	msg captured
}

func (s *captureSession) Reset()        { s.msg = captured{} }
func (s *captureSession) Logout() error { return nil }

func (s *captureSession) Mail(from string, _ *smtp.MailOptions) error {
	s.msg.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.msg.to = append(s.msg.to, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.msg.data = b
	s.got <- s.msg
	return nil
}

func startNextHop(t *testing.T) (string, chan captured) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	got := make(chan captured, 1)
	srv := smtp.NewServer(&captureBackend{got: got})
	srv.Domain = "localhost"
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })
	return l.Addr().String(), got
}

// sendPlain submits a message without STARTTLS, the way an MTA hands mail to
// a local content filter
func sendPlain(t *testing.T, addr, from string, to []string, msg string) {
	t.Helper()
	c, err := smtp.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Hello("localhost"))
	require.NoError(t, c.Mail(from, nil))
	for _, rcpt := range to {
		require.NoError(t, c.Rcpt(rcpt, nil))
	}
	wc, err := c.Data()
	require.NoError(t, err)
	_, err = io.WriteString(wc, msg)
	require.NoError(t, err)
	require.NoError(t, wc.Close())
	require.NoError(t, c.Quit())
}

func TestSMTPFilter_StampsAndRelays(t *testing.T) {
	nextHop, got := startNextHop(t)
	svc, st := newService(t, user)

	f := NewSMTPFilter(svc, normalize.NewNormalizer(0, nil, nil), config.ServerConfig{
		ListenAddress:   "127.0.0.1:0",
		NextHop:         nextHop,
		Hostname:        "localhost",
		MaxMessageBytes: 1 << 20,
		Headers:         headerNames(),
	}, zap.NewNop())
	require.NoError(t, f.Start())

	sendPlain(t, f.Addr().String(), "ben@acme.com", []string{user}, approvalMail)

	var msg captured
	select {
	case msg = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("message was not relayed")
	}

	data := string(msg.data)
	assert.Equal(t, "ben@acme.com", msg.from)
	assert.Equal(t, []string{user}, msg.to)
	assert.Contains(t, data, "X-Triage-Decision: flag\r\n")
	assert.NotContains(t, data, "X-Triage-Decision: ignore")
	assert.Contains(t, data, "X-Triage-Source: heuristic\r\n")
	assert.Contains(t, data, "X-Triage-Reason: action_phrase_strong (+20)")
	assert.Contains(t, data, "Subject: Please approve the attached agreement by EOD\r\n")
	assert.True(t, strings.HasSuffix(data, "\r\n\r\nSee subject.\r\n"))

	assert.Equal(t, 1, svc.PendingCount())
	require.NoError(t, f.Stop())
	assert.Zero(t, svc.PendingCount())

	profile, err := st.Load(context.Background())
	require.NoError(t, err)
	rec := profile.Lookup("ben@acme.com")
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.FlagCount)
}

func TestSMTPFilter_RelayFailureIsTemporary(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closed := l.Addr().String()
	l.Close()

	svc, _ := newService(t, user)
	f := NewSMTPFilter(svc, normalize.NewNormalizer(0, nil, nil), config.ServerConfig{
		NextHop:  closed,
		Hostname: "localhost",
		Headers:  headerNames(),
	}, nil)

	s := &smtpSession{filter: f}
	require.NoError(t, s.Mail("ben@acme.com", nil))
	require.NoError(t, s.Rcpt(user, nil))
	err = s.Data(strings.NewReader(approvalMail))

	var smtpErr *smtp.SMTPError
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, 451, smtpErr.Code)
}

func TestStamp(t *testing.T) {
	f := NewSMTPFilter(nil, nil, config.ServerConfig{Headers: headerNames()}, nil)
	raw := []byte("Subject: hi\r\nX-Triage-Score: 99\r\n\r\nbody\r\n")

	out, err := f.stamp(raw, &core.TriageResult{
		Decision: core.DecisionSurface,
		Score:    45,
		Reason:   "to_me (+15),\n résumé",
		Source:   core.SourceHeuristicWithAIContext,
	})
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "X-Triage-Score: 45\r\n")
	assert.NotContains(t, s, "99")
	assert.Contains(t, s, "X-Triage-Decision: surface\r\n")
	assert.Contains(t, s, "X-Triage-Source: heuristic_with_ai_context\r\n")
	assert.Contains(t, s, "X-Triage-Reason: =?utf-8?q?")
	assert.True(t, strings.HasSuffix(s, "\r\n\r\nbody\r\n"))
}

func TestDecodeRecords(t *testing.T) {
	array := `[{"message_id":"1","subject":"a","ai":{"classification":"fyi","confidence":0.5}},{"message_id":"2"}]`
	recs, err := DecodeRecords(strings.NewReader("  \n"+array), nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0].MessageID)
	require.NotNil(t, recs[0].AI)
	assert.Equal(t, core.ClassFYI, recs[0].AI.Classification)
	assert.Nil(t, recs[1].AI)

	lines := "{\"message_id\":\"1\"}\n\n{\"message_id\":\"2\",\"to\":[\"dan@acme.com\"]}\n"
	recs, err = DecodeRecords(strings.NewReader(lines), nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{user}, recs[1].To)

	recs, err = DecodeRecords(strings.NewReader(""), nil)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = DecodeRecords(strings.NewReader("{\"message_id\":"), nil)
	assert.Error(t, err)

	_, err = DecodeRecords(strings.NewReader(`[{"message_id":"1"},`), nil)
	assert.Error(t, err)
}

func TestDecodeRecords_WrongFieldTypes(t *testing.T) {
	array := `[
		{"message_id":"1","subject":"ok","to":["dan@acme.com"]},
		{"message_id":"2","subject":"bad to","to":"dan@acme.com","is_read":"false","importance":1,"ai":"yes"},
		"not a message",
		null
	]`
	recs, err := DecodeRecords(strings.NewReader(array), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, []string{user}, recs[0].To)

	bad := recs[1]
	assert.Equal(t, "2", bad.MessageID)
	assert.Equal(t, "bad to", bad.Subject)
	assert.Empty(t, bad.To)
	assert.False(t, bad.IsRead)
	assert.Empty(t, bad.Importance)
	assert.Nil(t, bad.AI)

	lines := `{"message_id":"a"}` + "\n" +
		`{"message_id":"b","importance":1,"from":"ben@acme.com"}` + "\n" +
		`{"message_id":"c","has_attachments":true}` + "\n"
	recs, err = DecodeRecords(strings.NewReader(lines), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "b", recs[1].MessageID)
	assert.Empty(t, recs[1].From.Email)
	assert.True(t, recs[2].HasAttachments)
}

func TestCliFilter_RunBatchWithMalformedRecord(t *testing.T) {
	svc, _ := newService(t, user)
	var console bytes.Buffer
	f := NewCliFilter(svc, normalize.NewNormalizer(0, nil, nil), zap.NewNop(), &console, false)

	input := `{"message_id":"m1","from":{"email":"ben@acme.com"},"to":["dan@acme.com"],"subject":"Please approve the attached agreement by EOD","importance":"high","has_attachments":true}` + "\n" +
		`{"message_id":"m2","from":{"email":"amy@acme.com"},"to":"dan@acme.com","is_read":"false","importance":1}` + "\n"
	recs, err := DecodeRecords(strings.NewReader(input), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	out, err := f.RunBatch(context.Background(), recs)
	require.NoError(t, err)
	require.Len(t, out.Emails, 2)
	assert.Equal(t, core.DecisionFlag, out.Emails[0].Triage.Decision)
	require.NotNil(t, out.Emails[1].Triage)
	assert.Equal(t, "m2", out.Emails[1].Triage.MessageID)
}

func TestCliFilter_RunBatch(t *testing.T) {
	svc, st := newService(t, "")
	var console bytes.Buffer
	f := NewCliFilter(svc, normalize.NewNormalizer(0, nil, nil), zap.NewNop(), &console, false)

	recs := []*Record{
		{NormalizedMessage: core.NormalizedMessage{
			MessageID:      "m1",
			From:           core.Address{Name: "Ben", Email: "ben@acme.com"},
			To:             []string{user},
			Subject:        "Please approve the attached agreement by EOD",
			HasAttachments: true,
			Importance:     "high",
		}},
		{NormalizedMessage: core.NormalizedMessage{
			MessageID: "m2",
			From:      core.Address{Email: "noreply@x.com"},
			To:        []string{user},
			BodyText:  "FYI only. Weekly newsletter. No action needed.",
		}},
	}

	out, err := f.RunBatch(context.Background(), recs)
	require.NoError(t, err)

	require.Len(t, out.Emails, 2)
	require.Len(t, out.FlagCandidates, 1)
	assert.Equal(t, "m1", out.FlagCandidates[0].ID)
	assert.Empty(t, out.SurfaceCandidates)
	assert.Equal(t, core.DecisionIgnore, out.Emails[1].Triage.Decision)

	assert.Contains(t, console.String(), "inferred user email as dan@acme.com")
	assert.Contains(t, console.String(), "TRIAGE SUMMARY (Processed 2 emails)")
	assert.Contains(t, console.String(), "1. [score=")
	assert.Contains(t, console.String(), "Ben: Please approve")

	var doc bytes.Buffer
	require.NoError(t, WriteOutput(&doc, out, 2))
	assert.Contains(t, doc.String(), `"flag_candidates": [`)
	assert.Contains(t, doc.String(), `"surface_candidates": []`)
	assert.Contains(t, doc.String(), `"triage": {`)

	profile, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, profile.Senders, 2)
}

func TestCliFilter_ProcessMessage(t *testing.T) {
	svc, st := newService(t, user)
	var console bytes.Buffer
	f := NewCliFilter(svc, normalize.NewNormalizer(0, nil, nil), nil, &console, true)

	res, err := f.ProcessMessage(context.Background(), []byte(approvalMail), normalize.Envelope{})
	require.NoError(t, err)
	assert.Equal(t, core.DecisionFlag, res.Decision)
	assert.Contains(t, console.String(), "From: Ben\n")
	assert.Contains(t, console.String(), "Decision: flag\n")
	assert.Contains(t, console.String(), "action_phrase_strong")

	require.NoError(t, f.Stop())
	profile, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, profile.Lookup("ben@acme.com"))
}
