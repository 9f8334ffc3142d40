// Package triage turns heuristic scores and optional classifier verdicts into
// flag/surface/ignore decisions and runs batches against a sender history
// snapshot.
package triage

import (
	"fmt"
	"strings"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/heuristics"
	"github.com/mikey/mail-triage/internal/senders"
)

// ruleInput is what an override guard sees. score is the heuristic score
// before AI fusion.
type ruleInput struct {
	f        core.FeatureSet
	decision core.Decision
	score    int
	policy   Policy
}

type overrideRule struct {
	name  string
	guard func(in ruleInput) bool
	to    core.Decision
}

func noStrongAsk(f core.FeatureSet) bool {
	return !f.LastRequestPhrase && f.ActionPhraseStrongHits == 0
}

// overrideRules run once, front to back. Promotions follow the dampenings
// and may undo them, so the order is part of the behavior.
var overrideRules = []overrideRule{
	{
		name: "cc_dampening",
		guard: func(in ruleInput) bool {
			return in.decision == core.DecisionFlag &&
				in.f.RecipientRole == core.RoleCc &&
				!in.f.ThreadAdditionCcMe
		},
		to: core.DecisionSurface,
	},
	{
		name: "broad_list_dampening",
		guard: func(in ruleInput) bool {
			return in.decision == core.DecisionFlag &&
				in.f.RecipientRole == core.RoleTo &&
				in.f.ToCount >= in.policy.BroadListMinTo &&
				!in.f.DirectSalutation &&
				noStrongAsk(in.f)
		},
		to: core.DecisionSurface,
	},
	{
		name: "small_group_question_dampening",
		guard: func(in ruleInput) bool {
			return in.decision == core.DecisionFlag &&
				in.f.RecipientRole == core.RoleTo &&
				in.f.SmallGroupQuestion &&
				!in.f.DirectSalutation &&
				!in.f.DeadlinePresent &&
				noStrongAsk(in.f)
		},
		to: core.DecisionSurface,
	},
	{
		name: "direct_salutation_promotion",
		guard: func(in ruleInput) bool {
			asks := in.f.ImperativePresent || in.f.QuestionPresent ||
				in.f.ActionPhraseStrongHits > 0 || in.f.ActionPhraseWeakHits > 0
			return in.f.RecipientRole == core.RoleTo &&
				in.f.DirectSalutation &&
				asks &&
				in.score >= in.policy.SalutationPromotionScore
		},
		to: core.DecisionFlag,
	},
	{
		name: "personal_salutation_small_audience_promotion",
		guard: func(in ruleInput) bool {
			return in.f.DirectSalutationToMe &&
				in.f.ToCount <= in.policy.SmallAudienceMaxTo &&
				in.score >= in.policy.SmallAudiencePromotionScore
		},
		to: core.DecisionFlag,
	},
	{
		name: "cc_thread_addition_promotion",
		guard: func(in ruleInput) bool {
			return in.f.ThreadAdditionCcMe &&
				in.score >= in.policy.ThreadAdditionPromotionScore
		},
		to: core.DecisionFlag,
	},
}

// RuleNames lists the override rules in evaluation order
func RuleNames() []string {
	names := make([]string, len(overrideRules))
	for i, r := range overrideRules {
		names[i] = r.name
	}
	return names
}

// Engine is the decision policy for one user. It holds no mutable state and
// may be shared between goroutines.
type Engine struct {
	extractor *heuristics.Extractor
	weights   heuristics.Weights
	policy    Policy
}

// NewEngine creates an engine
func NewEngine(extractor *heuristics.Extractor, weights heuristics.Weights, policy Policy) *Engine {
	return &Engine{
		extractor: extractor,
		weights:   weights,
		policy:    policy,
	}
}

// Policy returns the engine's thresholds
func (e *Engine) Policy() Policy {
	return e.policy
}

// Extractor returns the engine's feature extractor
func (e *Engine) Extractor() *heuristics.Extractor {
	return e.extractor
}

// Triage decides one message. verdict and profile may both be nil; profile
// is only read.
func (e *Engine) Triage(msg *core.NormalizedMessage, verdict *core.Verdict, profile *senders.Profile) *core.TriageResult {
	features := e.extractor.Extract(msg)
	prior := func(sender string) (int, string) {
		return profile.Prior(sender, e.weights.SenderHistoryMaxBoost, e.weights.SenderHistoryMaxPenalty)
	}
	score, breakdown := heuristics.Score(features, e.weights, prior)

	result := &core.TriageResult{
		Decision:  e.policy.Classify(score),
		Score:     score,
		Reason:    heuristics.SummarizeReasons(breakdown, e.policy.ReasonTopN),
		Breakdown: breakdown,
		Features:  features,
		Source:    core.SourceHeuristic,
	}
	if msg != nil {
		result.MessageID = msg.MessageID
	}

	switch {
	case verdict.Meets(e.policy.MinConfidence):
		result.Decision = core.DecisionFlag
		if result.Score < e.policy.AIScoreFloor {
			result.Score = e.policy.AIScoreFloor
		}
		result.Reason = aiReason(verdict, result.Reason)
		result.Source = core.SourceAIHeuristic
	case verdict != nil:
		result.Source = core.SourceHeuristicWithAIContext
	}

	in := ruleInput{f: features, decision: result.Decision, score: score, policy: e.policy}
	result.Decision, result.Overrides = applyOverrides(overrideRules, in)

	return result
}

// applyOverrides runs rules once in order and returns the final decision and
// the names of the rules that changed it
func applyOverrides(rules []overrideRule, in ruleInput) (core.Decision, []string) {
	var fired []string
	for _, rule := range rules {
		if !rule.guard(in) {
			continue
		}
		if in.decision != rule.to {
			fired = append(fired, rule.name)
		}
		in.decision = rule.to
	}
	return in.decision, fired
}

func aiReason(v *core.Verdict, heuristicReason string) string {
	reason := fmt.Sprintf("AI: %s (%.0f%%) + %s", v.Classification, v.Confidence*100, heuristicReason)
	return strings.TrimSpace(reason)
}
