package businessrules

import (
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/rule"
)

// Condition strategy names
const (
	CauseDecreaseEffectIncrease = "cause_decrease_effect_increase"
	CauseIncreaseEffectDecrease = "cause_increase_effect_decrease"
	CauseIncreaseEffectIncrease = "cause_increase_effect_increase"
	CauseIncrease               = "cause_increase"
	EffectIncrease              = "effect_increase"
	EffectDecrease              = "effect_decrease"
	CauseHighSeverity           = "cause_high_severity"
	CompetitorPriceAction       = "competitor_price_action"
	LargeInvestment             = "large_investment"
)

// Impact strategy names
const (
	PriceElasticity = "price_elasticity"
	CampaignROI     = "campaign_roi"
	PurchaseAmount  = "purchase_amount"
)

// LargeInvestmentThreshold is the amount an investment must exceed to enable expansion
const LargeInvestmentThreshold = 100000

// RegisterStrategies adds the named conditions and impact calculators the
// default rules reference.
func RegisterStrategies(reg *rule.Registry) error {
	conditions := []struct {
		name string
		c    rule.Condition
	}{
		{CauseDecreaseEffectIncrease, rule.DirectionCondition{Cause: "decrease", Effect: "increase"}},
		{CauseIncreaseEffectDecrease, rule.DirectionCondition{Cause: "increase", Effect: "decrease"}},
		{CauseIncreaseEffectIncrease, rule.DirectionCondition{Cause: "increase", Effect: "increase"}},
		{CauseIncrease, rule.DirectionCondition{Cause: "increase"}},
		{EffectIncrease, rule.DirectionCondition{Effect: "increase"}},
		{EffectDecrease, rule.DirectionCondition{Effect: "decrease"}},
		{CauseHighSeverity, rule.SeverityAtLeast{Side: rule.Cause, Min: event.SeverityHigh}},
		{CompetitorPriceAction, rule.AttributeContains{Side: rule.Cause, Key: "action_type", Substr: "price"}},
		{LargeInvestment, rule.AttributeAbove{Side: rule.Cause, Key: "amount", Threshold: LargeInvestmentThreshold}},
	}
	for _, c := range conditions {
		if err := reg.RegisterCondition(c.name, c.c); err != nil {
			return err
		}
	}

	impacts := []struct {
		name string
		c    rule.ImpactCalculator
	}{
		{PriceElasticity, rule.ScaledAttribute{Side: rule.Cause, Key: "price_change_pct", Factor: 1.5}},
		{CampaignROI, rule.ScaledAttribute{Side: rule.Cause, Key: "budget", Factor: 1.0 / 10000}},
		{PurchaseAmount, rule.ScaledAttribute{Side: rule.Cause, Key: "amount", Factor: 1}},
	}
	for _, i := range impacts {
		if err := reg.RegisterImpact(i.name, i.c); err != nil {
			return err
		}
	}
	return nil
}
