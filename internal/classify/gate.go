package classify

import (
	"regexp"
	"strings"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/utils"
)

// Skip reasons recorded on skipped verdicts
const (
	SkipEmptyBody = "empty_body"
	SkipNoise     = "noise_pattern"
	SkipBudget    = "max_ai_limit"
)

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)noreply|no-reply|do-not-reply|donotreply`),
	regexp.MustCompile(`(?i)notification|automated|auto-generated`),
	regexp.MustCompile(`(?i)newsletter|digest|weekly\s+update`),
	regexp.MustCompile(`(?i)unsubscribe`),
}

// ShouldSkip reports whether msg is not worth a model call. Messages with no
// body or preview are skipped, as is noise by sender or subject unless the
// user is directly in To.
func ShouldSkip(msg *core.NormalizedMessage, userEmail string) (bool, string) {
	if msg == nil {
		return true, SkipEmptyBody
	}
	if strings.TrimSpace(msg.BodyText) == "" && strings.TrimSpace(msg.BodyPreview) == "" {
		return true, SkipEmptyBody
	}

	from := msg.From.Email
	for _, p := range noisePatterns {
		if !p.MatchString(msg.Subject) && !p.MatchString(from) {
			continue
		}
		if userEmail != "" && addressedTo(msg.To, userEmail) {
			continue
		}
		return true, SkipNoise
	}
	return false, ""
}

func addressedTo(list []string, userEmail string) bool {
	for _, a := range list {
		if strings.EqualFold(strings.TrimSpace(a), userEmail) {
			return true
		}
	}
	return false
}

// SkippedVerdict is the placeholder recorded for a message the model never saw
func SkippedVerdict(reason string) *core.Verdict {
	class := core.ClassSpamOrNoise
	if reason != SkipNoise {
		class = core.ClassUnknown
	}
	summary := "Skipped by pre-filter"
	if reason == SkipBudget {
		summary = "Skipped"
	}
	return &core.Verdict{
		Classification: class,
		Reason:         "Skipped: " + reason,
		Summary:        summary,
		Signals:        core.VerdictSignals{ToVsCc: "unknown"},
		Skipped:        true,
		SkipReason:     reason,
	}
}

// ErrorVerdict is recorded when every attempt to reach the model failed
func ErrorVerdict(err error) *core.Verdict {
	msg := err.Error()
	return &core.Verdict{
		Classification: core.ClassUnknown,
		Reason:         "AI error: " + utils.FirstChars(msg, 100),
		Summary:        "Classification failed",
		Signals:        core.VerdictSignals{ToVsCc: "unknown"},
		Error:          msg,
	}
}
