package heuristics

import (
	"regexp"
	"strings"

	"github.com/mikey/mail-triage/internal/core"
)

var listLikeLocal = regexp.MustCompile(`(?i)(^|[._-])(all|team|group|list|noreply)($|[._-])`)

// InferUserEmail guesses the mailbox owner as the most frequent recipient
// across msgs, skipping list-like local parts such as "engineering-all".
// Ties go to the address seen first. It returns "" when nothing qualifies.
func InferUserEmail(msgs []*core.NormalizedMessage) string {
	counts := make(map[string]int)
	var order []string

	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		for _, list := range [][]string{msg.To, msg.Cc} {
			for _, addr := range list {
				a := strings.ToLower(strings.TrimSpace(addr))
				at := strings.Index(a, "@")
				if at < 0 {
					continue
				}
				if listLikeLocal.MatchString(a[:at]) {
					continue
				}
				if _, ok := counts[a]; !ok {
					order = append(order, a)
				}
				counts[a]++
			}
		}
	}

	best, bestCount := "", 0
	for _, a := range order {
		if counts[a] > bestCount {
			best, bestCount = a, counts[a]
		}
	}
	return best
}
