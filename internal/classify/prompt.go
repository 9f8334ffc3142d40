// Package classify wraps an external model behind a pre-filter, a per-run
// budget and retries, and turns model output into core.Verdict values.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/utils"
)

// DefaultMaxBodyChars caps the body sent to the model
const DefaultMaxBodyChars = 4000

// MaxOutputTokens bounds the model's reply
const MaxOutputTokens = 400

// SystemPrompt instructs the model how to classify
const SystemPrompt = `You are an email triage classifier that helps prioritize inbox messages.

Your job is to analyze emails and determine:
1. The type of email (action request, question, FYI, etc.)
2. Whether it requires the recipient's attention/action
3. Any deadlines or requested actions

IMPORTANT RULES:
- Only use the content provided. Do not infer project context from outside the email.
- Do not invent or hallucinate dates/deadlines that aren't explicitly stated.
- If unclear about classification or deadline, choose "unknown" with low confidence.
- Be conservative: only flag emails that genuinely need action.
- Consider whether the email is addressed directly TO the recipient vs just CC'd.
- Look for question marks, imperative verbs, and urgency indicators.

Respond only with a JSON object matching the email_classification schema.`

// ResponseSchema is the JSON schema the model's reply must satisfy
var ResponseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "classification": {
      "type": "string",
      "enum": ["action_request", "direct_question", "meeting_request", "waiting_on_others", "fyi", "spam_or_noise", "unknown"]
    },
    "should_flag": {"type": "boolean"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reason": {"type": "string"},
    "summary": {"type": "string"},
    "requested_action": {"type": ["string", "null"]},
    "deadline_iso": {"type": ["string", "null"]},
    "asks_me_specifically": {"type": "boolean"},
    "signals": {
      "type": "object",
      "properties": {
        "to_vs_cc": {"type": "string", "enum": ["to", "cc", "unknown"]},
        "contains_question": {"type": "boolean"},
        "contains_imperative": {"type": "boolean"},
        "mentions_deadline": {"type": "boolean"}
      },
      "required": ["to_vs_cc", "contains_question", "contains_imperative", "mentions_deadline"],
      "additionalProperties": false
    }
  },
  "required": ["classification", "should_flag", "confidence", "reason", "summary", "requested_action", "deadline_iso", "asks_me_specifically", "signals"],
  "additionalProperties": false
}`)

// SchemaName is the name the schema is registered under with the model API
const SchemaName = "email_classification"

// BuildUserPrompt renders msg for the model. The body is capped at
// maxBodyChars and falls back to the preview when empty.
func BuildUserPrompt(msg *core.NormalizedMessage, maxBodyChars int) string {
	if msg == nil {
		msg = &core.NormalizedMessage{}
	}
	if maxBodyChars <= 0 {
		maxBodyChars = DefaultMaxBodyChars
	}
	tp := utils.NewTextProcessor(nil)

	fromName := orDefault(msg.From.Name, "Unknown")
	fromEmail := orDefault(msg.From.Email, "unknown@unknown.com")
	to := "Unknown"
	if len(msg.To) > 0 {
		to = strings.Join(msg.To, ", ")
	}
	cc := "None"
	if len(msg.Cc) > 0 {
		cc = strings.Join(msg.Cc, ", ")
	}

	body := tp.ProcessText(msg.BodyText, maxBodyChars)
	if strings.TrimSpace(body) == "" {
		body = tp.ProcessText(msg.BodyPreview, maxBodyChars)
	}

	var b strings.Builder
	b.WriteString("Analyze this email:\n\n")
	fmt.Fprintf(&b, "FROM: %s <%s>\n", fromName, fromEmail)
	fmt.Fprintf(&b, "TO: %s\n", to)
	fmt.Fprintf(&b, "CC: %s\n", cc)
	fmt.Fprintf(&b, "SUBJECT: %s\n", orDefault(msg.Subject, "(No Subject)"))
	fmt.Fprintf(&b, "RECEIVED: %s\n\n", orDefault(msg.ReceivedAt, "Unknown"))
	b.WriteString("BODY:\n")
	b.WriteString(orDefault(body, "(Empty)"))
	b.WriteString("\n\nClassify this email and determine if it requires the recipient's action.")
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ErrInvalidResponse is returned when model output cannot be used
var ErrInvalidResponse = errors.New("invalid model response")

var knownClassifications = map[core.Classification]bool{
	core.ClassActionRequest:   true,
	core.ClassDirectQuestion:  true,
	core.ClassMeetingRequest:  true,
	core.ClassWaitingOnOthers: true,
	core.ClassFYI:             true,
	core.ClassSpamOrNoise:     true,
	core.ClassUnknown:         true,
}

// ParseVerdict decodes the model's reply. Text around the JSON object is
// tolerated. Missing fields take their zero value, so a reply without a
// confidence can never force a flag.
func ParseVerdict(text string) (*core.Verdict, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("%w: no JSON object found: %v", ErrInvalidResponse, err)
		}
		raw = raw[start : end+1]
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	if _, ok := fields["classification"]; !ok {
		return nil, fmt.Errorf("%w: missing classification in %s", ErrInvalidResponse, utils.FirstChars(raw, 100))
	}

	var v core.Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !knownClassifications[v.Classification] {
		v.Classification = core.ClassUnknown
	}
	switch {
	case v.Confidence < 0:
		v.Confidence = 0
	case v.Confidence > 1:
		v.Confidence = 1
	}
	v.ModelShouldFlag = v.ShouldFlag
	return &v, nil
}
