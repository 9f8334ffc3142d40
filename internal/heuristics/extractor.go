// Package heuristics turns a normalized message into named signals and scores
// them against a weight table. Everything here is pure and safe to call from
// many goroutines at once.
package heuristics

import (
	"strings"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/utils"
	"github.com/mikey/mail-triage/internal/vip"
)

const (
	// RecentWindow is how old a message can be and still count as recent
	RecentWindow = 48 * time.Hour

	salutationWindow = 80
)

// Extractor computes FeatureSets for one user
type Extractor struct {
	patterns   *PatternSet
	userEmail  string
	userDomain string
	vip        *vip.List
	now        func() time.Time
}

// ExtractorOption customizes an Extractor
type ExtractorOption func(*Extractor)

// WithClock sets the evaluation clock used for the recency signal
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExtractor creates an extractor for userEmail. patterns and vipList may
// be nil; a nil pattern set is built with names derived from userEmail.
func NewExtractor(patterns *PatternSet, userEmail string, vipList *vip.List, opts ...ExtractorOption) *Extractor {
	userEmail = strings.ToLower(strings.TrimSpace(userEmail))
	if patterns == nil {
		patterns = NewPatternSet(NamesFromEmail(userEmail))
	}
	e := &Extractor{
		patterns:   patterns,
		userEmail:  userEmail,
		userDomain: domainOf(userEmail),
		vip:        vipList,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UserEmail returns the address the extractor evaluates roles against
func (e *Extractor) UserEmail() string {
	return e.userEmail
}

// Extract computes the feature set for msg. It never fails: absent fields
// simply produce falsy signals.
func (e *Extractor) Extract(msg *core.NormalizedMessage) core.FeatureSet {
	if msg == nil {
		msg = &core.NormalizedMessage{}
	}
	p := e.patterns

	sender := msg.SenderEmail()
	senderDomain := domainOf(sender)
	text := utils.FoldText(msg.Subject + "\n" + msg.BodyText + "\n" + msg.BodyPreview)
	subject := strings.ToLower(msg.Subject)
	role := e.recipientRole(msg)
	toCount := len(msg.To)
	totalRecipients := toCount + len(msg.Cc)

	body := msg.BodyText
	if body == "" {
		body = msg.BodyPreview
	}
	opening := utils.FirstChars(strings.TrimSpace(body), salutationWindow)

	hasQuestion := strings.Contains(text, "?")

	f := core.FeatureSet{
		RecipientRole:           role,
		ToCount:                 toCount,
		IsUnread:                !msg.IsRead,
		IsHighImportance:        strings.EqualFold(msg.Importance, "high"),
		HasAttachments:          msg.HasAttachments,
		IsExternalSender:        senderDomain != "" && e.userDomain != "" && senderDomain != e.userDomain,
		IsInternalSender:        senderDomain != "" && e.userDomain != "" && senderDomain == e.userDomain,
		IsVIPSender:             e.vip.Contains(sender),
		IsNoreplySender:         p.NoreplySender.MatchString(sender),
		AutomationPatternHit:    anyMatch(p.Automation, sender) || anyMatch(p.Automation, subject),
		ActionPhraseStrongHits:  countMatches(p.ActionStrong, text),
		ActionPhraseWeakHits:    countMatches(p.ActionWeak, text),
		DirectSalutation:        p.Salutation != nil && p.Salutation.MatchString(opening),
		SmallGroupQuestion:      hasQuestion && totalRecipients > 0 && totalRecipients <= 3,
		ThreadAddition:          p.ThreadAddition.MatchString(text),
		LastRequestPhrase:       p.LastRequest.MatchString(text),
		QuestionPresent:         hasQuestion,
		ImperativePresent:       anyMatch(p.Imperative, text),
		DeadlinePresent:         anyMatch(p.Deadline, text),
		UrgencyPresent:          anyMatch(p.Urgency, text),
		ApprovalWorkflowPresent: anyMatch(p.Approval, text),
		ContractFinancePresent:  anyMatch(p.ContractFinance, text),
		FYIPresent:              anyMatch(p.FYI, text),
		NewsletterPresent:       anyMatch(p.Newsletter, text),
		NoActionPresent:         anyMatch(p.NoAction, text),
		IsRecent:                isRecent(msg.ReceivedAt, e.now()),
		SenderEmail:             sender,
	}

	f.DirectSalutationToMe = f.DirectSalutation && role == core.RoleTo
	f.ThreadAdditionCcMe = f.ThreadAddition && role == core.RoleCc
	f.MultiToNoSalutation = role == core.RoleTo && toCount >= 3 && !f.DirectSalutation

	return f
}

func (e *Extractor) recipientRole(msg *core.NormalizedMessage) core.RecipientRole {
	if e.userEmail == "" {
		return core.RoleUnknown
	}
	if containsAddress(msg.To, e.userEmail) {
		return core.RoleTo
	}
	if containsAddress(msg.Cc, e.userEmail) {
		return core.RoleCc
	}
	return core.RoleUnknown
}

func containsAddress(list []string, addr string) bool {
	for _, a := range list {
		if strings.EqualFold(strings.TrimSpace(a), addr) {
			return true
		}
	}
	return false
}

func domainOf(addr string) string {
	at := strings.Index(addr, "@")
	if at < 0 {
		return ""
	}
	return addr[at+1:]
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts ISO-8601 forms; values without a zone are read as UTC
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func isRecent(receivedAt string, now time.Time) bool {
	ts, ok := parseTimestamp(receivedAt)
	if !ok {
		return false
	}
	return now.Sub(ts) <= RecentWindow
}
