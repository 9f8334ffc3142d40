package heuristics

import (
	"regexp"
	"strings"
)

// PatternSet is the compiled, read-only phrase table used by the extractor.
// Build one with NewPatternSet and share it freely between goroutines.
type PatternSet struct {
	ActionStrong    []*regexp.Regexp
	ActionWeak      []*regexp.Regexp
	Imperative      []*regexp.Regexp
	Deadline        []*regexp.Regexp
	Urgency         []*regexp.Regexp
	Approval        []*regexp.Regexp
	ContractFinance []*regexp.Regexp
	FYI             []*regexp.Regexp
	Newsletter      []*regexp.Regexp
	NoAction        []*regexp.Regexp
	Automation      []*regexp.Regexp

	NoreplySender  *regexp.Regexp
	ThreadAddition *regexp.Regexp
	LastRequest    *regexp.Regexp
	Salutation     *regexp.Regexp
}

var (
	actionStrongExprs = []string{
		`(?i)\bplease\s+(review|approve|confirm|respond|send|share)\b`,
		`(?i)\b(can|could|would)\s+you\b`,
		`(?i)\bneed\s+you\s+to\b`,
		`(?i)\byour\s+(approval|feedback|input|decision)\b`,
		`(?i)\blast request\b`,
	}
	actionWeakExprs = []string{
		`(?i)\breview\b`,
		`(?i)\bapprove\b`,
		`(?i)\bconfirm\b`,
		`(?i)\bschedule\b`,
	}
	imperativeExprs = []string{
		`(?i)\bplease\b`,
		`(?i)\bkindly\b`,
		`(?i)\baction required\b`,
		`(?i)\blet'?s\b`,
		`(?i)\bdo it\b`,
	}
	deadlineExprs = []string{
		`(?i)\bby\s+(eod|cob|end of day|tomorrow|today|monday|tuesday|wednesday|thursday|friday)\b`,
		`(?i)\bdeadline\b`,
		`(?i)\bdue\s+(by|on)?\b`,
		`(?i)\bexpires?\b`,
		`\b\d{4}-\d{2}-\d{2}\b`,
	}
	urgencyExprs = []string{
		`(?i)\burgent\b`,
		`(?i)\basap\b`,
		`(?i)\bhigh priority\b`,
		`(?i)\btime[- ]sensitive\b`,
	}
	approvalExprs = []string{
		`(?i)\b(ready for approval|sign off|signature request|please sign)\b`,
	}
	contractFinanceExprs = []string{
		`(?i)\b(invoice|agreement|contract|quote|purchase order|po)\b`,
	}
	fyiExprs = []string{
		`(?i)\bfyi\b`,
		`(?i)\bfor your information\b`,
		`(?i)\bfor awareness\b`,
	}
	newsletterExprs = []string{
		`(?i)\b(newsletter|digest|weekly update|view in browser)\b`,
	}
	noActionExprs = []string{
		`(?i)\bno action needed\b`,
		`(?i)\bno response required\b`,
		`(?i)\bfyi only\b`,
	}
	automationExprs = []string{
		`(?i)noreply|no-reply|do-not-reply|donotreply`,
		`(?i)notification|automated|auto-generated|alert`,
	}
)

// NewPatternSet compiles the phrase tables. names are the first names (or
// name combinations such as "dan/ben") that count as a direct salutation
// when they open the message body.
func NewPatternSet(names []string) *PatternSet {
	return &PatternSet{
		ActionStrong:    compileAll(actionStrongExprs),
		ActionWeak:      compileAll(actionWeakExprs),
		Imperative:      compileAll(imperativeExprs),
		Deadline:        compileAll(deadlineExprs),
		Urgency:         compileAll(urgencyExprs),
		Approval:        compileAll(approvalExprs),
		ContractFinance: compileAll(contractFinanceExprs),
		FYI:             compileAll(fyiExprs),
		Newsletter:      compileAll(newsletterExprs),
		NoAction:        compileAll(noActionExprs),
		Automation:      compileAll(automationExprs),
		NoreplySender:   regexp.MustCompile(`noreply|no-reply|donotreply|do-not-reply`),
		ThreadAddition:  regexp.MustCompile(`(?i)\badding\s+.+\s+to\s+the\s+(conversation|thread)\b`),
		LastRequest:     regexp.MustCompile(`(?i)\blast request\b`),
		Salutation:      salutationPattern(names),
	}
}

// salutationPattern matches a greeting that opens with one of names followed
// by a separator, e.g. "Dan," or "Hi Dan:". It returns nil when there are no
// usable names, which disables the signal.
func salutationPattern(names []string) *regexp.Regexp {
	var alts []string
	seen := make(map[string]bool)
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		alts = append(alts, regexp.QuoteMeta(n))
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)^\s*(?:(?:hi|hello|hey|dear)\s+)?(` + strings.Join(alts, "|") + `)\s*[,;:]`)
}

// NamesFromEmail guesses salutation names from a mailbox local part, so
// "dan.smith@x.com" yields ["dan"].
func NamesFromEmail(email string) []string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return nil
	}
	local := strings.ToLower(email[:at])
	first := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(first) == 0 || len(first[0]) < 2 {
		return nil
	}
	for _, r := range first[0] {
		if r < 'a' || r > 'z' {
			return nil
		}
	}
	return []string{first[0]}
}

func compileAll(exprs []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func countMatches(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}
