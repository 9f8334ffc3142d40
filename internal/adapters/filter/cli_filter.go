package filter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/normalize"
	"github.com/mikey/mail-triage/internal/triage"
)

// Record is one message as read from and written to JSON. The optional "ai"
// field carries a precomputed verdict; "triage" is filled on output.
type Record struct {
	core.NormalizedMessage
	AI     *core.Verdict      `json:"ai,omitempty"`
	Triage *core.TriageResult `json:"triage,omitempty"`
}

// Candidate is a summary line of the output
type Candidate struct {
	ID      string       `json:"id"`
	Subject string       `json:"subject"`
	From    core.Address `json:"from"`
	Score   int          `json:"score"`
	Reason  string       `json:"reason"`
}

// Output is the batch output document
type Output struct {
	Emails            []*Record   `json:"emails"`
	FlagCandidates    []Candidate `json:"flag_candidates"`
	SurfaceCandidates []Candidate `json:"surface_candidates"`
}

// DecodeRecords reads a JSON array of records or one record per line.
// Fields holding the wrong JSON type are left unset and records that are not
// objects are skipped; only unreadable JSON fails the batch.
func DecodeRecords(r io.Reader, logger *zap.Logger) ([]*Record, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	br := bufio.NewReader(r)
	first, err := firstNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	var raws []json.RawMessage
	if first == '[' {
		if err := json.NewDecoder(br).Decode(&raws); err != nil {
			return nil, fmt.Errorf("failed to decode JSON array: %w", err)
		}
	} else {
		dec := json.NewDecoder(br)
		for {
			var raw json.RawMessage
			err := dec.Decode(&raw)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to decode record %d: %w", len(raws)+1, err)
			}
			raws = append(raws, raw)
		}
	}

	out := make([]*Record, 0, len(raws))
	for i, raw := range raws {
		if rec := decodeRecord(raw, i+1, logger); rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func decodeRecord(raw json.RawMessage, n int, logger *zap.Logger) *Record {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		logger.Warn("Skipping record that is not a JSON object", zap.Int("record", n))
		return nil
	}

	rec := &Record{}
	err := json.Unmarshal(raw, rec)
	if err == nil {
		return rec
	}
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) {
		logger.Warn("Skipping undecodable record", zap.Int("record", n), zap.Error(err))
		return nil
	}
	logger.Warn("Record has fields of the wrong type, leaving them unset",
		zap.Int("record", n),
		zap.String("message_id", rec.MessageID),
		zap.Error(err))

	// A non-object "ai" still allocates an empty verdict
	var ai struct {
		AI json.RawMessage `json:"ai"`
	}
	if json.Unmarshal(raw, &ai) == nil {
		if v := bytes.TrimSpace(ai.AI); len(v) > 0 && v[0] != '{' {
			rec.AI = nil
		}
	}
	return rec
}

func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b == ' ' || b == '\t' || b == '\r' || b == '\n' {
			continue
		}
		return b, br.UnreadByte()
	}
}

// CliFilter drives triage from the command line, either over a JSON batch
// or over raw message files
type CliFilter struct {
	service    *triage.Service
	normalizer *normalize.Normalizer
	logger     *zap.Logger
	console    io.Writer
	verbose    bool
}

// NewCliFilter creates a new CLI filter. Summaries go to console.
func NewCliFilter(service *triage.Service, normalizer *normalize.Normalizer, logger *zap.Logger, console io.Writer, verbose bool) *CliFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CliFilter{
		service:    service,
		normalizer: normalizer,
		logger:     logger,
		console:    console,
		verbose:    verbose,
	}
}

// RunBatch triages records as one batch and returns the output document
func (f *CliFilter) RunBatch(ctx context.Context, records []*Record) (*Output, error) {
	items := make([]triage.Item, len(records))
	for i, rec := range records {
		if rec == nil {
			continue
		}
		items[i] = triage.Item{Message: &rec.NormalizedMessage, Verdict: rec.AI}
	}

	start := time.Now()
	batch, err := f.service.RunBatch(ctx, items)
	if err != nil {
		return nil, err
	}
	if batch.Inferred && batch.UserEmail != "" {
		fmt.Fprintf(f.console, "Heuristic: inferred user email as %s\n", batch.UserEmail)
	}

	out := &Output{
		Emails:            make([]*Record, 0, len(records)),
		FlagCandidates:    []Candidate{},
		SurfaceCandidates: []Candidate{},
	}
	for i, rec := range records {
		if rec == nil {
			continue
		}
		rec.AI = batch.Verdicts[i]
		rec.Triage = batch.Results[i]
		out.Emails = append(out.Emails, rec)

		c := Candidate{
			ID:      rec.MessageID,
			Subject: rec.Subject,
			From:    rec.From,
			Score:   rec.Triage.Score,
			Reason:  rec.Triage.Reason,
		}
		switch rec.Triage.Decision {
		case core.DecisionFlag:
			out.FlagCandidates = append(out.FlagCandidates, c)
		case core.DecisionSurface:
			out.SurfaceCandidates = append(out.SurfaceCandidates, c)
		}
	}

	f.printSummary(out)
	f.logger.Debug("Batch finished", zap.Duration("duration", time.Since(start)))
	return out, nil
}

// ProcessMessage triages one raw RFC 822 message and prints the result. The
// decision is committed to sender history on Stop.
func (f *CliFilter) ProcessMessage(ctx context.Context, raw []byte, env normalize.Envelope) (*core.TriageResult, error) {
	msg, err := f.normalizer.Parse(bytes.NewReader(raw), env)
	if err != nil {
		f.logger.Error("Failed to parse message", zap.Error(err))
		return nil, err
	}
	f.logger.Debug("Processing message", zap.String("sender", msg.SenderEmail()))

	fmt.Fprintf(f.console, "\n=== Message ===\n")
	fmt.Fprintf(f.console, "From: %s\n", senderLabel(msg.From))
	fmt.Fprintf(f.console, "To: %s\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(f.console, "Cc: %s\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(f.console, "Subject: %s\n", msg.Subject)
	if f.verbose {
		fmt.Fprintf(f.console, "\nBody:\n%s\n", msg.BodyText)
	}

	res, verdict := f.service.Decide(ctx, msg)

	fmt.Fprintf(f.console, "\n=== Triage ===\n")
	fmt.Fprintf(f.console, "Decision: %s\n", res.Decision)
	fmt.Fprintf(f.console, "Score: %d\n", res.Score)
	fmt.Fprintf(f.console, "Reason: %s\n", res.Reason)
	fmt.Fprintf(f.console, "Source: %s\n", res.Source)
	if len(res.Overrides) > 0 {
		fmt.Fprintf(f.console, "Overrides: %s\n", strings.Join(res.Overrides, ", "))
	}
	if verdict != nil {
		fmt.Fprintf(f.console, "AI: %s (%.0f%%) %s\n", verdict.Classification, verdict.Confidence*100, verdict.Reason)
	}
	if f.verbose {
		for _, c := range res.Breakdown {
			fmt.Fprintf(f.console, "  %-28s %+d\n", c.Signal, c.Points)
		}
	}
	return res, nil
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop commits decisions taken by ProcessMessage
func (f *CliFilter) Stop() error {
	f.service.Flush(context.Background())
	return nil
}

// WriteOutput writes the output document as indented JSON
func WriteOutput(w io.Writer, out *Output, indent int) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", indent))
	}
	return enc.Encode(out)
}

const summaryLimit = 10

func (f *CliFilter) printSummary(out *Output) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(f.console, "\n%s\nTRIAGE SUMMARY (Processed %d emails)\n%s\n", rule, len(out.Emails), rule)
	fmt.Fprintf(f.console, "FLAG CANDIDATES: %d (Action Required)\n", len(out.FlagCandidates))
	printCandidates(f.console, out.FlagCandidates)
	fmt.Fprintf(f.console, "\nSURFACE CANDIDATES: %d (Worth a look)\n", len(out.SurfaceCandidates))
	printCandidates(f.console, out.SurfaceCandidates)
	fmt.Fprintf(f.console, "%s\n\n", rule)
}

func printCandidates(w io.Writer, list []Candidate) {
	for i, c := range list {
		if i == summaryLimit {
			break
		}
		fmt.Fprintf(w, "  %d. [score=%d] [%s] %s: %s\n", i+1, c.Score, c.Reason, senderLabel(c.From), c.Subject)
	}
}

func senderLabel(a core.Address) string {
	switch {
	case a.Name != "":
		return a.Name
	case a.Email != "":
		return a.Email
	}
	return "Unknown"
}
