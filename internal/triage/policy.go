package triage

import (
	"errors"
	"fmt"

	"github.com/mikey/mail-triage/internal/core"
)

// ErrInvalidPolicy is wrapped by every Policy.Validate failure
var ErrInvalidPolicy = errors.New("invalid triage policy")

// Policy holds the decision thresholds. The promotion scores are empirical
// and only exposed so they can be tuned against a labeled set.
type Policy struct {
	FlagThreshold    int     `mapstructure:"flag_threshold"`
	SurfaceThreshold int     `mapstructure:"surface_threshold"`
	MinConfidence    float64 `mapstructure:"min_confidence"`
	AIScoreFloor     int     `mapstructure:"ai_score_floor"`

	BroadListMinTo               int `mapstructure:"broad_list_min_to"`
	SalutationPromotionScore     int `mapstructure:"salutation_promotion_score"`
	SmallAudienceMaxTo           int `mapstructure:"small_audience_max_to"`
	SmallAudiencePromotionScore  int `mapstructure:"small_audience_promotion_score"`
	ThreadAdditionPromotionScore int `mapstructure:"thread_addition_promotion_score"`

	ReasonTopN int `mapstructure:"reason_top_n"`
}

// DefaultPolicy returns the stock thresholds
func DefaultPolicy() Policy {
	return Policy{
		FlagThreshold:    70,
		SurfaceThreshold: 40,
		MinConfidence:    0.75,
		AIScoreFloor:     95,

		BroadListMinTo:               3,
		SalutationPromotionScore:     55,
		SmallAudienceMaxTo:           3,
		SmallAudiencePromotionScore:  40,
		ThreadAdditionPromotionScore: 40,

		ReasonTopN: 3,
	}
}

// Validate rejects thresholds outside [0,100] or in the wrong order, and
// recipient counts below one
func (p Policy) Validate() error {
	inRange := func(name string, v int) error {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: %s must be within [0,100], got %d", ErrInvalidPolicy, name, v)
		}
		return nil
	}
	checks := []struct {
		name string
		v    int
	}{
		{"flag_threshold", p.FlagThreshold},
		{"surface_threshold", p.SurfaceThreshold},
		{"ai_score_floor", p.AIScoreFloor},
		{"salutation_promotion_score", p.SalutationPromotionScore},
		{"small_audience_promotion_score", p.SmallAudiencePromotionScore},
		{"thread_addition_promotion_score", p.ThreadAdditionPromotionScore},
	}
	for _, c := range checks {
		if err := inRange(c.name, c.v); err != nil {
			return err
		}
	}
	if p.FlagThreshold <= p.SurfaceThreshold {
		return fmt.Errorf("%w: flag_threshold (%d) must be greater than surface_threshold (%d)",
			ErrInvalidPolicy, p.FlagThreshold, p.SurfaceThreshold)
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence must be within [0,1], got %g", ErrInvalidPolicy, p.MinConfidence)
	}
	if p.BroadListMinTo < 1 {
		return fmt.Errorf("%w: broad_list_min_to must be at least 1, got %d", ErrInvalidPolicy, p.BroadListMinTo)
	}
	if p.SmallAudienceMaxTo < 1 {
		return fmt.Errorf("%w: small_audience_max_to must be at least 1, got %d", ErrInvalidPolicy, p.SmallAudienceMaxTo)
	}
	return nil
}

// Classify maps a score onto a decision using the thresholds alone
func (p Policy) Classify(score int) core.Decision {
	switch {
	case score >= p.FlagThreshold:
		return core.DecisionFlag
	case score >= p.SurfaceThreshold:
		return core.DecisionSurface
	default:
		return core.DecisionIgnore
	}
}
