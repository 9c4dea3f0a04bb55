package businessrules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/rule"
	"github.com/davidleathers/causal-correlation-engine/internal/service/businessrules"
	"github.com/davidleathers/causal-correlation-engine/internal/testutil/fixtures"
)

func TestRules(t *testing.T) {
	rules := businessrules.Rules()
	require.Len(t, rules, 25)

	seen := make(map[string]bool)
	for _, r := range rules {
		assert.False(t, seen[r.Name], "duplicate rule %s", r.Name)
		seen[r.Name] = true
		assert.NoError(t, r.Validate(), r.Name)
		assert.NotNil(t, r.CausePattern.Type, r.Name)
		assert.NotNil(t, r.EffectPattern.Type, r.Name)
	}
}

func TestRegisterStrategies_Twice(t *testing.T) {
	reg := rule.NewRegistry()
	require.NoError(t, businessrules.RegisterStrategies(reg))
	err := businessrules.RegisterStrategies(reg)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestNewLibrary(t *testing.T) {
	lib, err := businessrules.NewLibrary(zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 25, lib.Len())

	priceRules := lib.RulesForCause(fixtures.NewEventBuilder(t).WithType(event.TypePriceChange).Build())
	require.Len(t, priceRules, 2)
	assert.Equal(t, 10, priceRules[0].Priority)
}

func TestNewLibrary_Matches(t *testing.T) {
	lib, err := businessrules.NewLibrary(zaptest.NewLogger(t))
	require.NoError(t, err)

	tests := []struct {
		name     string
		cause    *event.Event
		effect   *event.Event
		wantRule string
		check    func(t *testing.T, d rule.Details)
	}{
		{
			name: "price cut lifts demand",
			cause: fixtures.NewEventBuilder(t).WithType(event.TypePriceChange).AtMinute(0).
				WithDirection("decrease").WithAttribute("price_change_pct", -10).Build(),
			effect: fixtures.NewEventBuilder(t).WithType(event.TypeDemandChange).AtMinute(60).
				WithDirection("increase").Build(),
			wantRule: "price_reduction_increases_demand",
			check: func(t *testing.T, d rule.Details) {
				require.NotNil(t, d.ImpactMagnitude)
				assert.InDelta(t, -15, *d.ImpactMagnitude, 1e-9)
				assert.Equal(t, causal.DirectionNegative, d.ImpactDirection)
			},
		},
		{
			name: "competitor price action",
			cause: fixtures.NewEventBuilder(t).WithType(event.TypeCompetitorAction).AtMinute(0).
				WithAttribute("action_type", "Aggressive PRICE cut").Build(),
			effect:   fixtures.NewEventBuilder(t).WithType(event.TypePriceChange).AtMinute(120).Build(),
			wantRule: "competitor_price_cut_forces_response",
		},
		{
			name: "campaign return on budget",
			cause: fixtures.NewEventBuilder(t).WithType(event.TypeMarketingCampaign).AtMinute(0).
				WithAttribute("budget", 50000).Build(),
			effect:   fixtures.NewEventBuilder(t).WithType(event.TypeCustomerAcquisition).AtMinute(600).Build(),
			wantRule: "marketing_campaign_drives_acquisition",
			check: func(t *testing.T, d rule.Details) {
				require.NotNil(t, d.ImpactMagnitude)
				assert.InDelta(t, 5, *d.ImpactMagnitude, 1e-9)
			},
		},
		{
			name: "large investment enables expansion",
			cause: fixtures.NewEventBuilder(t).WithType(event.TypeInvestment).AtMinute(0).
				WithAttribute("amount", 250000).Build(),
			effect:   fixtures.NewEventBuilder(t).WithType(event.TypeExpansion).AtMinute(2880).Build(),
			wantRule: "investment_enables_expansion",
		},
		{
			name: "severe complaint causes churn",
			cause: fixtures.NewEventBuilder(t).WithType(event.TypeCustomerComplaint).
				WithSeverity(event.SeverityCritical).AtMinute(0).Build(),
			effect:   fixtures.NewEventBuilder(t).WithType(event.TypeCustomerChurn).AtMinute(2000).Build(),
			wantRule: "customer_complaint_causes_churn",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := lib.FindMatchingRules(tt.cause, tt.effect)
			require.Len(t, matches, 1)
			assert.Equal(t, tt.wantRule, matches[0].Rule.Name)
			if tt.check != nil {
				tt.check(t, matches[0].Details)
			}
		})
	}
}

func TestNewLibrary_NonMatches(t *testing.T) {
	lib, err := businessrules.NewLibrary(zaptest.NewLogger(t))
	require.NoError(t, err)

	smallInvestment := fixtures.NewEventBuilder(t).WithType(event.TypeInvestment).AtMinute(0).
		WithAttribute("amount", 5000).Build()
	expansion := fixtures.NewEventBuilder(t).WithType(event.TypeExpansion).AtMinute(2880).Build()
	assert.Empty(t, lib.FindMatchingRules(smallInvestment, expansion))

	mildComplaint := fixtures.NewEventBuilder(t).WithType(event.TypeCustomerComplaint).
		WithSeverity(event.SeverityLow).AtMinute(0).Build()
	churn := fixtures.NewEventBuilder(t).WithType(event.TypeCustomerChurn).AtMinute(2000).Build()
	assert.Empty(t, lib.FindMatchingRules(mildComplaint, churn))
}
