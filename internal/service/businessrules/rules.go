package businessrules

import (
	"go.uber.org/zap"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/rule"
)

func between(cause, effect event.Type) (rule.Pattern, rule.Pattern) {
	return rule.TypePattern(cause), rule.TypePattern(effect)
}

// Rules returns the default business rule set. Every call builds fresh values.
func Rules() []rule.Rule {
	var rules []rule.Rule
	add := func(r rule.Rule, cause, effect event.Type) {
		r.CausePattern, r.EffectPattern = between(cause, effect)
		rules = append(rules, r)
	}

	// pricing and demand
	add(rule.Rule{
		Name:           "price_reduction_increases_demand",
		Description:    "Price reductions typically increase product demand",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthStrong,
		BaseConfidence: 0.85,
		Window:         rule.Between(30, 480),
		Condition:      CauseDecreaseEffectIncrease,
		Impact:         PriceElasticity,
		Tags:           []string{"pricing", "demand"},
		Priority:       10,
	}, event.TypePriceChange, event.TypeDemandChange)
	add(rule.Rule{
		Name:           "price_increase_decreases_demand",
		Description:    "Price increases typically decrease demand for elastic goods",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthModerate,
		BaseConfidence: 0.7,
		Window:         rule.Between(30, 480),
		Condition:      CauseIncreaseEffectDecrease,
		Tags:           []string{"pricing", "demand"},
		Priority:       10,
	}, event.TypePriceChange, event.TypeDemandChange)

	// competition
	add(rule.Rule{
		Name:           "competitor_price_cut_forces_response",
		Description:    "Competitor price reduction forces our price adjustment",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthStrong,
		BaseConfidence: 0.8,
		Window:         rule.Between(60, 2880),
		Condition:      CompetitorPriceAction,
		Tags:           []string{"competition", "pricing"},
		Priority:       9,
	}, event.TypeCompetitorAction, event.TypePriceChange)
	add(rule.Rule{
		Name:           "competitor_action_causes_market_shift",
		Description:    "Major competitor actions shift market dynamics",
		Type:           causal.TypeContributory,
		BaseStrength:   causal.StrengthModerate,
		BaseConfidence: 0.65,
		Window:         rule.Between(120, 4320),
		Tags:           []string{"competition", "market"},
		Priority:       7,
	}, event.TypeCompetitorAction, event.TypeMarketShift)

	// customer behaviour
	add(rule.Rule{
		Name:           "demand_increase_drives_purchases",
		Description:    "Increased demand leads to more purchases",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthVeryStrong,
		BaseConfidence: 0.9,
		Window:         rule.Between(10, 1440),
		Condition:      CauseIncrease,
		Tags:           []string{"demand", "sales"},
		Priority:       10,
	}, event.TypeDemandChange, event.TypePurchase)
	add(rule.Rule{
		Name:           "customer_complaint_causes_churn",
		Description:    "Unresolved complaints lead to customer churn",
		Type:           causal.TypeProbabilistic,
		BaseStrength:   causal.StrengthModerate,
		BaseConfidence: 0.6,
		Window:         rule.Between(1440, 10080),
		Condition:      CauseHighSeverity,
		Tags:           []string{"customer_service", "retention"},
		Priority:       8,
	}, event.TypeCustomerComplaint, event.TypeCustomerChurn)
	add(rule.Rule{
		Name:           "quality_issue_causes_complaints",
		Description:    "Quality issues trigger customer complaints",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthStrong,
		BaseConfidence: 0.85,
		Window:         rule.Between(30, 2880),
		Tags:           []string{"quality", "customer_service"},
		Priority:       9,
	}, event.TypeQualityIssue, event.TypeCustomerComplaint)
	add(rule.Rule{
		Name:           "marketing_campaign_drives_acquisition",
		Description:    "Marketing campaigns lead to customer acquisition",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthStrong,
		BaseConfidence: 0.75,
		Window:         rule.Between(60, 4320),
		Impact:         CampaignROI,
		Tags:           []string{"marketing", "growth"},
		Priority:       8,
	}, event.TypeMarketingCampaign, event.TypeCustomerAcquisition)

	// operations
	add(rule.Rule{
		Name:           "inventory_shortage_from_demand_spike",
		Description:    "Demand spikes cause inventory shortages",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthStrong,
		BaseConfidence: 0.8,
		Window:         rule.Between(30, 720),
		Condition:      CauseIncreaseEffectDecrease,
		Tags:           []string{"inventory", "operations"},
		Priority:       9,
	}, event.TypeDemandChange, event.TypeInventoryChange)
	add(rule.Rule{
		Name:           "supply_disruption_causes_inventory_drop",
		Description:    "Supply chain disruptions reduce inventory levels",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthVeryStrong,
		BaseConfidence: 0.95,
		Window:         rule.Between(60, 1440),
		Condition:      EffectDecrease,
		Tags:           []string{"supply_chain", "inventory"},
		Priority:       10,
	}, event.TypeSupplyChainDisruption, event.TypeInventoryChange)
	add(rule.Rule{
		Name:           "inventory_shortage_triggers_production_increase",
		Description:    "Low inventory triggers production ramp-up",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthStrong,
		BaseConfidence: 0.85,
		Window:         rule.Between(120, 2880),
		Condition:      CauseDecreaseEffectIncrease,
		Tags:           []string{"inventory", "production"},
		Priority:       8,
	}, event.TypeInventoryChange, event.TypeProductionChange)
	add(rule.Rule{
		Name:           "production_increase_raises_costs",
		Description:    "Increased production raises operational costs",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthStrong,
		BaseConfidence: 0.9,
		Window:         rule.Between(30, 480),
		Condition:      CauseIncreaseEffectIncrease,
		Tags:           []string{"production", "costs"},
		Priority:       8,
	}, event.TypeProductionChange, event.TypeCostChange)

	// financial
	add(rule.Rule{
		Name:           "purchases_increase_revenue",
		Description:    "Customer purchases directly increase revenue",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthVeryStrong,
		BaseConfidence: 1.0,
		Window:         rule.Between(1, 60),
		Condition:      EffectIncrease,
		Impact:         PurchaseAmount,
		Tags:           []string{"sales", "revenue"},
		Priority:       10,
	}, event.TypePurchase, event.TypeRevenueChange)
	add(rule.Rule{
		Name:           "cost_increase_reduces_cash_flow",
		Description:    "Rising costs reduce cash flow",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthVeryStrong,
		BaseConfidence: 0.95,
		Window:         rule.Between(30, 1440),
		Condition:      CauseIncreaseEffectDecrease,
		Tags:           []string{"costs", "finance"},
		Priority:       9,
	}, event.TypeCostChange, event.TypeCashFlowChange)
	add(rule.Rule{
		Name:           "investment_enables_expansion",
		Description:    "Strategic investments enable business expansion",
		Type:           causal.TypeConditional,
		BaseStrength:   causal.StrengthModerate,
		BaseConfidence: 0.7,
		Window:         rule.Between(1440, 43200),
		Condition:      LargeInvestment,
		Tags:           []string{"investment", "growth"},
		Priority:       7,
	}, event.TypeInvestment, event.TypeExpansion)

	// strategic
	add(rule.Rule{
		Name:           "product_launch_drives_marketing",
		Description:    "New product launches trigger marketing campaigns",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthStrong,
		BaseConfidence: 0.9,
		Window:         rule.Between(60, 1440),
		Tags:           []string{"product", "marketing"},
		Priority:       8,
	}, event.TypeProductLaunch, event.TypeMarketingCampaign)
	add(rule.Rule{
		Name:           "product_launch_increases_demand",
		Description:    "Successful product launches increase market demand",
		Type:           causal.TypeProbabilistic,
		BaseStrength:   causal.StrengthModerate,
		BaseConfidence: 0.65,
		Window:         rule.Between(1440, 10080),
		Condition:      EffectIncrease,
		Tags:           []string{"product", "demand"},
		Priority:       7,
	}, event.TypeProductLaunch, event.TypeDemandChange)
	add(rule.Rule{
		Name:           "partnership_drives_market_expansion",
		Description:    "Strategic partnerships enable market expansion",
		Type:           causal.TypeContributory,
		BaseStrength:   causal.StrengthModerate,
		BaseConfidence: 0.7,
		Window:         rule.Between(2880, 43200),
		Tags:           []string{"partnership", "growth"},
		Priority:       7,
	}, event.TypePartnership, event.TypeExpansion)

	// external factors
	add(rule.Rule{
		Name:           "regulatory_change_requires_restructuring",
		Description:    "Major regulatory changes force business restructuring",
		Type:           causal.TypeConditional,
		BaseStrength:   causal.StrengthModerate,
		BaseConfidence: 0.6,
		Window:         rule.Between(1440, 43200),
		Condition:      CauseHighSeverity,
		Tags:           []string{"regulatory", "operations"},
		Priority:       7,
	}, event.TypeRegulatoryChange, event.TypeRestructuring)
	add(rule.Rule{
		Name:           "economic_shift_affects_demand",
		Description:    "Economic changes impact consumer demand",
		Type:           causal.TypeContributory,
		BaseStrength:   causal.StrengthModerate,
		BaseConfidence: 0.7,
		Window:         rule.Between(1440, 20160),
		Tags:           []string{"economy", "demand"},
		Priority:       7,
	}, event.TypeEconomicShift, event.TypeDemandChange)
	add(rule.Rule{
		Name:           "tech_change_enables_product_launch",
		Description:    "Technological advances enable new product development",
		Type:           causal.TypeCatalytic,
		BaseStrength:   causal.StrengthModerate,
		BaseConfidence: 0.6,
		Window:         rule.Between(10080, 86400),
		Tags:           []string{"technology", "product"},
		Priority:       6,
	}, event.TypeTechnologicalChange, event.TypeProductLaunch)
	add(rule.Rule{
		Name:           "natural_disaster_disrupts_supply_chain",
		Description:    "Natural disasters cause supply chain disruptions",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthVeryStrong,
		BaseConfidence: 0.95,
		Window:         rule.Between(30, 2880),
		Tags:           []string{"disaster", "supply_chain"},
		Priority:       10,
	}, event.TypeNaturalDisaster, event.TypeSupplyChainDisruption)
	add(rule.Rule{
		Name:           "social_trend_influences_demand",
		Description:    "Social trends shift consumer preferences and demand",
		Type:           causal.TypeContributory,
		BaseStrength:   causal.StrengthWeak,
		BaseConfidence: 0.5,
		Window:         rule.Between(2880, 43200),
		Tags:           []string{"social", "demand"},
		Priority:       5,
	}, event.TypeSocialTrend, event.TypeDemandChange)

	// cascading effects
	add(rule.Rule{
		Name:           "churn_reduces_revenue",
		Description:    "Customer churn directly reduces revenue",
		Type:           causal.TypeDirect,
		BaseStrength:   causal.StrengthVeryStrong,
		BaseConfidence: 0.95,
		Window:         rule.Between(30, 1440),
		Condition:      EffectDecrease,
		Tags:           []string{"retention", "revenue"},
		Priority:       9,
	}, event.TypeCustomerChurn, event.TypeRevenueChange)
	add(rule.Rule{
		Name:           "capacity_increase_enables_production",
		Description:    "Capacity expansion enables production increases",
		Type:           causal.TypeCatalytic,
		BaseStrength:   causal.StrengthStrong,
		BaseConfidence: 0.8,
		Window:         rule.Between(480, 4320),
		Condition:      CauseIncreaseEffectIncrease,
		Tags:           []string{"capacity", "production"},
		Priority:       7,
	}, event.TypeCapacityChange, event.TypeProductionChange)

	return rules
}

// NewLibrary builds a library holding the default rules, logging strategy
// failures through logger.
func NewLibrary(logger *zap.Logger) (*rule.Library, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := rule.NewRegistry()
	if err := RegisterStrategies(reg); err != nil {
		return nil, err
	}
	lib := rule.NewLibrary(reg, rule.WithErrorHandler(func(r rule.Rule, cause, effect *event.Event, err error) {
		logger.Warn("business rule failed",
			zap.String("rule", r.Name),
			zap.String("cause_event_id", cause.ID.String()),
			zap.String("effect_event_id", effect.ID.String()),
			zap.Error(err))
	}))
	if err := lib.AddRules(Rules()...); err != nil {
		return nil, err
	}
	return lib, nil
}
