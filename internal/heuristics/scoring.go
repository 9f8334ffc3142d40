package heuristics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mikey/mail-triage/internal/core"
)

const (
	// MinScore and MaxScore bound every final score
	MinScore = 0
	MaxScore = 100

	lowSignalReason = "Low-signal message"
)

// signalRule binds a breakdown name to its weight and predicate
type signalRule struct {
	name   string
	weight func(Weights) int
	when   func(core.FeatureSet) bool
}

// signalTable is evaluated front to back; its order is the breakdown order.
// The action phrase entries are handled separately in Score.
var signalTable = []signalRule{
	{"to_me", func(w Weights) int { return w.ToMe }, func(f core.FeatureSet) bool { return f.RecipientRole == core.RoleTo }},
	{"cc_me", func(w Weights) int { return w.CcMe }, func(f core.FeatureSet) bool { return f.RecipientRole == core.RoleCc }},
	{"unknown_recipient_role", func(w Weights) int { return w.UnknownRecipientRole }, func(f core.FeatureSet) bool { return f.RecipientRole == core.RoleUnknown }},
	{"unread", func(w Weights) int { return w.Unread }, func(f core.FeatureSet) bool { return f.IsUnread }},
	{"importance_high", func(w Weights) int { return w.ImportanceHigh }, func(f core.FeatureSet) bool { return f.IsHighImportance }},
	{"has_attachments", func(w Weights) int { return w.HasAttachments }, func(f core.FeatureSet) bool { return f.HasAttachments }},
	{"external_sender", func(w Weights) int { return w.ExternalSender }, func(f core.FeatureSet) bool { return f.IsExternalSender }},
	{"internal_sender", func(w Weights) int { return w.InternalSender }, func(f core.FeatureSet) bool { return f.IsInternalSender }},
	{"vip_sender", func(w Weights) int { return w.VIPSender }, func(f core.FeatureSet) bool { return f.IsVIPSender }},
	{"noreply_sender", func(w Weights) int { return w.NoreplySender }, func(f core.FeatureSet) bool { return f.IsNoreplySender }},
	{"automation_pattern", func(w Weights) int { return w.Automation }, func(f core.FeatureSet) bool { return f.AutomationPatternHit }},
}

var signalTableTail = []signalRule{
	{"direct_salutation", func(w Weights) int { return w.DirectSalutation }, func(f core.FeatureSet) bool { return f.DirectSalutation }},
	{"direct_salutation_to_me", func(w Weights) int { return w.DirectSalutationToMe }, func(f core.FeatureSet) bool { return f.DirectSalutationToMe }},
	{"small_group_question", func(w Weights) int { return w.SmallGroupQuestion }, func(f core.FeatureSet) bool { return f.SmallGroupQuestion }},
	{"thread_addition", func(w Weights) int { return w.ThreadAddition }, func(f core.FeatureSet) bool { return f.ThreadAddition }},
	{"thread_addition_cc_me", func(w Weights) int { return w.ThreadAdditionCcMe }, func(f core.FeatureSet) bool { return f.ThreadAdditionCcMe }},
	{"multi_to_no_salutation", func(w Weights) int { return w.MultiToNoSalutation }, func(f core.FeatureSet) bool { return f.MultiToNoSalutation }},
	{"last_request_phrase", func(w Weights) int { return w.LastRequestPhrase }, func(f core.FeatureSet) bool { return f.LastRequestPhrase }},
	{"question_present", func(w Weights) int { return w.QuestionPresent }, func(f core.FeatureSet) bool { return f.QuestionPresent }},
	{"imperative_present", func(w Weights) int { return w.ImperativePresent }, func(f core.FeatureSet) bool { return f.ImperativePresent }},
	{"deadline_present", func(w Weights) int { return w.DeadlinePresent }, func(f core.FeatureSet) bool { return f.DeadlinePresent }},
	{"urgency_present", func(w Weights) int { return w.UrgencyPresent }, func(f core.FeatureSet) bool { return f.UrgencyPresent }},
	{"approval_workflow", func(w Weights) int { return w.ApprovalWorkflow }, func(f core.FeatureSet) bool { return f.ApprovalWorkflowPresent }},
	{"contract_finance_signal", func(w Weights) int { return w.ContractFinance }, func(f core.FeatureSet) bool { return f.ContractFinancePresent }},
	{"fyi_phrase", func(w Weights) int { return w.FYIPhrase }, func(f core.FeatureSet) bool { return f.FYIPresent }},
	{"newsletter_phrase", func(w Weights) int { return w.NewsletterPhrase }, func(f core.FeatureSet) bool { return f.NewsletterPresent }},
	{"no_action_phrase", func(w Weights) int { return w.NoActionPhrase }, func(f core.FeatureSet) bool { return f.NoActionPresent }},
}

// PriorFunc returns the history adjustment and its breakdown name for a sender
type PriorFunc func(sender string) (int, string)

// Score applies weights to features and adds the sender prior. The running
// total is clamped to [MinScore, MaxScore] once, after every contribution.
func Score(f core.FeatureSet, w Weights, prior PriorFunc) (int, core.ScoreBreakdown) {
	breakdown := make(core.ScoreBreakdown, 0, 16)
	total := 0

	add := func(signal string, points int) {
		if points == 0 {
			return
		}
		total += points
		breakdown = append(breakdown, core.Contribution{Signal: signal, Points: points})
	}
	apply := func(rules []signalRule) {
		for _, r := range rules {
			if r.when(f) {
				add(r.name, r.weight(w))
			}
		}
	}

	apply(signalTable)

	if f.ActionPhraseStrongHits > 0 {
		add("action_phrase_strong", w.ActionPhraseStrong)
	} else if f.ActionPhraseWeakHits > 0 {
		add("action_phrase_weak", w.ActionPhraseWeak)
	}

	apply(signalTableTail)

	if prior != nil {
		points, signal := prior(f.SenderEmail)
		add(signal, points)
	}

	return clampScore(total), breakdown
}

func clampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// SummarizeReasons renders the topN largest positive contributions as
// "signal (+points)". Ties keep breakdown order.
func SummarizeReasons(b core.ScoreBreakdown, topN int) string {
	positive := make([]core.Contribution, 0, len(b))
	for _, c := range b {
		if c.Points > 0 {
			positive = append(positive, c)
		}
	}
	if len(positive) == 0 {
		return lowSignalReason
	}
	sort.SliceStable(positive, func(i, j int) bool {
		return positive[i].Points > positive[j].Points
	})
	if topN > 0 && len(positive) > topN {
		positive = positive[:topN]
	}

	parts := make([]string, len(positive))
	for i, c := range positive {
		parts[i] = fmt.Sprintf("%s (+%d)", c.Signal, c.Points)
	}
	return strings.Join(parts, ", ")
}
