package core

import (
	"strings"
)

// Decision is the triage outcome for a single message
type Decision string

const (
	DecisionIgnore  Decision = "ignore"
	DecisionSurface Decision = "surface"
	DecisionFlag    Decision = "flag"
)

// Rank orders decisions as ignore < surface < flag
func (d Decision) Rank() int {
	switch d {
	case DecisionFlag:
		return 2
	case DecisionSurface:
		return 1
	default:
		return 0
	}
}

// Valid reports whether d is one of the three known decisions
func (d Decision) Valid() bool {
	return d == DecisionFlag || d == DecisionSurface || d == DecisionIgnore
}

// Source records how a TriageResult was produced
type Source string

const (
	SourceHeuristic              Source = "heuristic"
	SourceAIHeuristic            Source = "ai+heuristic"
	SourceHeuristicWithAIContext Source = "heuristic_with_ai_context"
)

// RecipientRole is where the user appears in the recipient lists
type RecipientRole string

const (
	RoleTo      RecipientRole = "to"
	RoleCc      RecipientRole = "cc"
	RoleUnknown RecipientRole = "unknown"
)

// Address is a sender mailbox
type Address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NormalizedMessage is the canonical message handed to the triage engine.
// It is produced by the normalization collaborator and never mutated here.
type NormalizedMessage struct {
	MessageID         string   `json:"message_id"`
	ConversationID    string   `json:"conversation_id,omitempty"`
	InternetMessageID string   `json:"internet_message_id,omitempty"`
	Subject           string   `json:"subject"`
	From              Address  `json:"from"`
	To                []string `json:"to"`
	Cc                []string `json:"cc"`
	ReceivedAt        string   `json:"received_at"`
	SentAt            string   `json:"sent_at,omitempty"`
	IsRead            bool     `json:"is_read"`
	WebLink           string   `json:"web_link,omitempty"`
	HasAttachments    bool     `json:"has_attachments"`
	Importance        string   `json:"importance"`
	BodyPreview       string   `json:"body_preview"`
	BodyText          string   `json:"body_text"`
}

// SenderEmail returns the trimmed, lowercased sender address
func (m *NormalizedMessage) SenderEmail() string {
	if m == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(m.From.Email))
}

// FeatureSet holds the signals extracted from one message
type FeatureSet struct {
	RecipientRole           RecipientRole `json:"recipient_role"`
	ToCount                 int           `json:"to_count"`
	IsUnread                bool          `json:"is_unread"`
	IsHighImportance        bool          `json:"is_high_importance"`
	HasAttachments          bool          `json:"has_attachments"`
	IsExternalSender        bool          `json:"is_external_sender"`
	IsInternalSender        bool          `json:"is_internal_sender"`
	IsVIPSender             bool          `json:"is_vip_sender"`
	IsNoreplySender         bool          `json:"is_noreply_sender"`
	AutomationPatternHit    bool          `json:"automation_pattern_hit"`
	ActionPhraseStrongHits  int           `json:"action_phrase_strong_hits"`
	ActionPhraseWeakHits    int           `json:"action_phrase_weak_hits"`
	DirectSalutation        bool          `json:"direct_salutation"`
	DirectSalutationToMe    bool          `json:"direct_salutation_to_me"`
	SmallGroupQuestion      bool          `json:"small_group_question"`
	ThreadAddition          bool          `json:"thread_addition"`
	ThreadAdditionCcMe      bool          `json:"thread_addition_cc_me"`
	MultiToNoSalutation     bool          `json:"multi_to_no_salutation"`
	LastRequestPhrase       bool          `json:"last_request_phrase"`
	QuestionPresent         bool          `json:"question_present"`
	ImperativePresent       bool          `json:"imperative_present"`
	DeadlinePresent         bool          `json:"deadline_present"`
	UrgencyPresent          bool          `json:"urgency_present"`
	ApprovalWorkflowPresent bool          `json:"approval_workflow_present"`
	ContractFinancePresent  bool          `json:"contract_finance_present"`
	FYIPresent              bool          `json:"fyi_present"`
	NewsletterPresent       bool          `json:"newsletter_present"`
	NoActionPresent         bool          `json:"no_action_present"`
	IsRecent                bool          `json:"is_recent"`
	SenderEmail             string        `json:"sender_email"`
}

// Contribution is a single (signal, points) entry of a score breakdown
type Contribution struct {
	Signal string `json:"signal"`
	Points int    `json:"points"`
}

// ScoreBreakdown lists non-zero contributions in evaluation order
type ScoreBreakdown []Contribution

// Sum adds up all contributions without clamping
func (b ScoreBreakdown) Sum() int {
	total := 0
	for _, c := range b {
		total += c.Points
	}
	return total
}

// Classification is the category assigned by the external classifier
type Classification string

const (
	ClassActionRequest   Classification = "action_request"
	ClassDirectQuestion  Classification = "direct_question"
	ClassMeetingRequest  Classification = "meeting_request"
	ClassWaitingOnOthers Classification = "waiting_on_others"
	ClassFYI             Classification = "fyi"
	ClassSpamOrNoise     Classification = "spam_or_noise"
	ClassUnknown         Classification = "unknown"
)

// Actionable reports whether the classification can promote a message to flag
func (c Classification) Actionable() bool {
	switch c {
	case ClassActionRequest, ClassDirectQuestion, ClassMeetingRequest:
		return true
	}
	return false
}

// VerdictSignals are the classifier's own view of a few message traits
type VerdictSignals struct {
	ToVsCc             string `json:"to_vs_cc"`
	ContainsQuestion   bool   `json:"contains_question"`
	ContainsImperative bool   `json:"contains_imperative"`
	MentionsDeadline   bool   `json:"mentions_deadline"`
}

// Verdict is an externally computed classification. It is advisory only.
type Verdict struct {
	Classification     Classification `json:"classification"`
	ShouldFlag         bool           `json:"should_flag"`
	Confidence         float64        `json:"confidence"`
	Reason             string         `json:"reason"`
	Summary            string         `json:"summary"`
	RequestedAction    *string        `json:"requested_action"`
	DeadlineISO        *string        `json:"deadline_iso"`
	AsksMeSpecifically bool           `json:"asks_me_specifically"`
	Signals            VerdictSignals `json:"signals"`

	ModelShouldFlag bool   `json:"model_should_flag"`
	FinalShouldFlag bool   `json:"final_should_flag"`
	ModelUsed       string `json:"model_used,omitempty"`
	Skipped         bool   `json:"skipped,omitempty"`
	SkipReason      string `json:"skip_reason,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Meets reports whether the verdict clears the bar for forcing a flag
func (v *Verdict) Meets(minConfidence float64) bool {
	if v == nil {
		return false
	}
	return v.Classification.Actionable() && v.Confidence >= minConfidence && v.AsksMeSpecifically
}

// TriageResult is the final decision for one message
type TriageResult struct {
	MessageID string         `json:"message_id,omitempty"`
	Decision  Decision       `json:"decision"`
	Score     int            `json:"priority_score"`
	Reason    string         `json:"reason"`
	Breakdown ScoreBreakdown `json:"score_breakdown"`
	Features  FeatureSet     `json:"features"`
	Source    Source         `json:"source"`
	Overrides []string       `json:"overrides,omitempty"`
}
