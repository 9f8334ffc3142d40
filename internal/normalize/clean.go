// Package normalize turns raw mail into the canonical message the triage
// engine consumes.
package normalize

import (
	"regexp"
	"strings"

	"github.com/k3a/html2text"
)

// DefaultMaxBodyChars caps body_text, ellipsis included
const DefaultMaxBodyChars = 4000

// PreviewChars is the length of a derived body preview
const PreviewChars = 255

var replyMarkers = []*regexp.Regexp{
	// On Mon, Jan 15, 2026 at 10:30 AM John <john@example.com> wrote:
	regexp.MustCompile(`(?im)^On .+ wrote:\s*$`),
	regexp.MustCompile(`(?im)^-{3,}\s*Original Message\s*-{3,}`),
	// Outlook header block
	regexp.MustCompile(`(?im)^From:\s*.+\n(?:Sent:\s*.+\n)?(?:To:\s*.+\n)?(?:Cc:\s*.+\n)?(?:Subject:\s*.+)?`),
	regexp.MustCompile(`(?im)^-{3,}\s*Forwarded message\s*-{3,}`),
}

var signatureMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^-- \s*$`),
	regexp.MustCompile(`(?im)^Sent from my \w+`),
	regexp.MustCompile(`(?im)^Get Outlook for \w+`),
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// HTMLToText converts an HTML body to plain text with Unix line breaks
func HTMLToText(html string) string {
	if html == "" {
		return ""
	}
	text := html2text.HTML2Text(html)
	return strings.ReplaceAll(text, "\r\n", "\n")
}

// CleanBody keeps only the newest content of a plain text body. Everything
// from the earliest quoted reply, forward header or signature marker on is
// dropped, blank line runs are collapsed and lines are trimmed.
func CleanBody(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	cut := len(text)
	for _, group := range [][]*regexp.Regexp{replyMarkers, signatureMarkers} {
		for _, re := range group {
			if loc := re.FindStringIndex(text); loc != nil && loc[0] < cut {
				cut = loc[0]
			}
		}
	}
	text = blankRuns.ReplaceAllString(text[:cut], "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Preview derives a single-line preview from a body
func Preview(body string) string {
	collapsed := strings.Join(strings.Fields(body), " ")
	r := []rune(collapsed)
	if len(r) > PreviewChars {
		r = r[:PreviewChars]
	}
	return string(r)
}
