package heuristics

import (
	"errors"
	"fmt"
)

// Weights is the point value of each signal. A zero weight disables the
// signal without removing it from the feature set.
type Weights struct {
	ToMe                 int `mapstructure:"to_me" json:"to_me"`
	CcMe                 int `mapstructure:"cc_me" json:"cc_me"`
	UnknownRecipientRole int `mapstructure:"unknown_recipient_role" json:"unknown_recipient_role"`

	Unread         int `mapstructure:"unread" json:"unread"`
	ImportanceHigh int `mapstructure:"importance_high" json:"importance_high"`
	HasAttachments int `mapstructure:"has_attachments" json:"has_attachments"`
	ExternalSender int `mapstructure:"external_sender" json:"external_sender"`
	InternalSender int `mapstructure:"internal_sender" json:"internal_sender"`
	VIPSender      int `mapstructure:"vip_sender" json:"vip_sender"`
	NoreplySender  int `mapstructure:"noreply_sender" json:"noreply_sender"`
	Automation     int `mapstructure:"automation_pattern" json:"automation_pattern"`

	ActionPhraseStrong int `mapstructure:"action_phrase_strong" json:"action_phrase_strong"`
	ActionPhraseWeak   int `mapstructure:"action_phrase_weak" json:"action_phrase_weak"`

	DirectSalutation     int `mapstructure:"direct_salutation" json:"direct_salutation"`
	DirectSalutationToMe int `mapstructure:"direct_salutation_to_me" json:"direct_salutation_to_me"`
	SmallGroupQuestion   int `mapstructure:"small_group_question" json:"small_group_question"`
	ThreadAddition       int `mapstructure:"thread_addition" json:"thread_addition"`
	ThreadAdditionCcMe   int `mapstructure:"thread_addition_cc_me" json:"thread_addition_cc_me"`
	MultiToNoSalutation  int `mapstructure:"multi_to_no_salutation" json:"multi_to_no_salutation"`
	LastRequestPhrase    int `mapstructure:"last_request_phrase" json:"last_request_phrase"`
	QuestionPresent      int `mapstructure:"question_present" json:"question_present"`
	ImperativePresent    int `mapstructure:"imperative_present" json:"imperative_present"`
	DeadlinePresent      int `mapstructure:"deadline_present" json:"deadline_present"`
	UrgencyPresent       int `mapstructure:"urgency_present" json:"urgency_present"`
	ApprovalWorkflow     int `mapstructure:"approval_workflow" json:"approval_workflow"`
	ContractFinance      int `mapstructure:"contract_finance_signal" json:"contract_finance_signal"`

	FYIPhrase        int `mapstructure:"fyi_phrase" json:"fyi_phrase"`
	NewsletterPhrase int `mapstructure:"newsletter_phrase" json:"newsletter_phrase"`
	NoActionPhrase   int `mapstructure:"no_action_phrase" json:"no_action_phrase"`

	SenderHistoryMaxBoost   int `mapstructure:"sender_history_max_boost" json:"sender_history_max_boost"`
	SenderHistoryMaxPenalty int `mapstructure:"sender_history_max_penalty" json:"sender_history_max_penalty"`
}

// DefaultWeights returns the stock weight table. The history penalty floor
// sits below the negated boost ceiling.
func DefaultWeights() Weights {
	return Weights{
		ToMe:                 15,
		CcMe:                 0,
		UnknownRecipientRole: -10,

		Unread:         5,
		ImportanceHigh: 10,
		HasAttachments: 5,
		ExternalSender: 0,
		InternalSender: 5,
		VIPSender:      20,
		NoreplySender:  -25,
		Automation:     -15,

		ActionPhraseStrong: 20,
		ActionPhraseWeak:   8,

		DirectSalutation:     10,
		DirectSalutationToMe: 10,
		SmallGroupQuestion:   8,
		ThreadAddition:       5,
		ThreadAdditionCcMe:   15,
		MultiToNoSalutation:  -8,
		LastRequestPhrase:    15,
		QuestionPresent:      8,
		ImperativePresent:    8,
		DeadlinePresent:      12,
		UrgencyPresent:       10,
		ApprovalWorkflow:     12,
		ContractFinance:      6,

		FYIPhrase:        -10,
		NewsletterPhrase: -20,
		NoActionPhrase:   -20,

		SenderHistoryMaxBoost:   8,
		SenderHistoryMaxPenalty: -12,
	}
}

var (
	// ErrInvalidWeights is wrapped by every Validate failure
	ErrInvalidWeights = errors.New("invalid heuristic weights")
)

// Validate checks the history bounds, which the prior relies on
func (w Weights) Validate() error {
	if w.SenderHistoryMaxBoost < 0 {
		return fmt.Errorf("%w: sender_history_max_boost must be >= 0, got %d", ErrInvalidWeights, w.SenderHistoryMaxBoost)
	}
	if w.SenderHistoryMaxPenalty > 0 {
		return fmt.Errorf("%w: sender_history_max_penalty must be <= 0, got %d", ErrInvalidWeights, w.SenderHistoryMaxPenalty)
	}
	return nil
}
