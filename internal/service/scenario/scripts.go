package scenario

import (
	"fmt"
	"time"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
)

func origin(domain, source, department string, stakeholders []string, tags ...string) event.Context {
	return event.Context{
		Domain:       domain,
		Source:       source,
		Department:   department,
		Stakeholders: stakeholders,
		Tags:         tags,
	}
}

// CompetitiveMarket is a competitor price cut followed by a demand drop, a
// pricing response, recovery and the resulting revenue lift.
func (g *Generator) CompetitiveMarket() ([]*event.Event, error) {
	b := g.builder(CompetitiveMarket)

	b.add(step{
		typ:         event.TypeCompetitorAction,
		severity:    event.SeverityHigh,
		title:       "Competitor launches 20% price reduction campaign",
		description: "Main competitor announced aggressive pricing strategy to gain market share",
		ctx:         origin("market", "market_intelligence", "strategy", []string{"sales", "marketing", "pricing"}, "competition", "pricing", "threat"),
		magnitude:   0.2,
		attrs: map[string]any{
			"competitor":       "CompanyX",
			"action_type":      "price_reduction",
			"price_change_pct": -20,
		},
	})
	b.add(step{
		after:       4 * time.Hour,
		typ:         event.TypeMarketShift,
		severity:    event.SeverityMedium,
		title:       "Market dynamics shift toward price sensitivity",
		description: "Customer behavior showing increased price sensitivity",
		ctx:         origin("market", "analytics", "strategy", []string{"leadership", "sales"}, "market_analysis", "customer_behavior"),
		magnitude:   0.15,
		attrs:       map[string]any{"shift_type": "price_sensitive"},
	})
	b.add(step{
		after:       2 * time.Hour,
		typ:         event.TypeDemandChange,
		severity:    event.SeverityHigh,
		title:       "15% drop in product demand",
		description: "Significant decrease in customer demand for our main product line",
		ctx:         origin("sales", "sales_system", "sales", []string{"sales", "operations", "leadership"}, "demand", "sales", "alert"),
		magnitude:   0.15,
		attrs:       map[string]any{"direction": "decrease", "change_pct": -15},
	})
	b.add(step{
		after:       day,
		typ:         event.TypePriceChange,
		severity:    event.SeverityHigh,
		title:       "Price reduction to 15% to match market",
		description: "Strategic decision to reduce prices to remain competitive",
		ctx:         origin("pricing", "pricing_system", "sales", []string{"sales", "finance", "leadership"}, "pricing", "strategy", "response"),
		magnitude:   0.15,
		attrs: map[string]any{
			"direction":        "decrease",
			"price_change_pct": -15,
			"reason":           "competitive_response",
		},
	})
	b.add(step{
		after:       3 * time.Hour,
		typ:         event.TypeMarketingCampaign,
		severity:    event.SeverityMedium,
		title:       "Emergency marketing campaign: 'Best Value Guarantee'",
		description: "Launched targeted campaign to highlight value proposition",
		ctx:         origin("marketing", "marketing_system", "marketing", []string{"marketing", "sales"}, "campaign", "competitive_response"),
		magnitude:   0.5,
		attrs: map[string]any{
			"budget":        50000,
			"duration_days": 14,
			"channels":      []string{"digital", "social", "email"},
		},
	})
	b.add(step{
		after:       8 * time.Hour,
		typ:         event.TypeDemandChange,
		severity:    event.SeverityMedium,
		title:       "Demand recovery: 10% increase",
		description: "Customer demand showing positive response to pricing adjustment",
		ctx:         origin("sales", "sales_system", "sales", []string{"sales", "leadership"}, "demand", "recovery"),
		magnitude:   0.1,
		attrs:       map[string]any{"direction": "increase", "change_pct": 10},
	})
	for i := range 5 {
		s := step{
			offset:      time.Duration(i) * 2 * time.Hour,
			typ:         event.TypePurchase,
			severity:    event.SeverityLow,
			title:       fmt.Sprintf("Bulk purchase order #%d", 1001+i),
			description: "Customer purchase following price adjustment",
			ctx:         origin("sales", "order_system", "sales", []string{"sales"}, "purchase", "revenue"),
			magnitude:   b.uniform(5000, 15000),
			attrs:       map[string]any{"amount": b.uniform(5000, 15000)},
		}
		if i == 0 {
			s.after = 2 * day
		}
		b.add(s)
	}
	b.add(step{
		after:       12 * time.Hour,
		typ:         event.TypeRevenueChange,
		severity:    event.SeverityMedium,
		title:       "Revenue increase: 8% above forecast",
		description: "Positive revenue impact from strategic response",
		ctx:         origin("finance", "finance_system", "finance", []string{"finance", "leadership"}, "revenue", "performance"),
		magnitude:   0.08,
		attrs:       map[string]any{"direction": "increase", "change_pct": 8},
	})
	return b.result()
}

// SupplyChainCrisis is a supplier outage rippling through inventory,
// production and customers until an investment restores capacity.
func (g *Generator) SupplyChainCrisis() ([]*event.Event, error) {
	b := g.builder(SupplyChainCrisis)

	disaster := origin("external", "news_feed", "", []string{"operations", "procurement", "leadership"}, "disaster", "supplier", "critical")
	disaster.Location = "Southeast Region"
	b.add(step{
		typ:         event.TypeNaturalDisaster,
		severity:    event.SeverityCritical,
		title:       "Hurricane disrupts supplier facilities",
		description: "Category 4 hurricane hit main supplier region",
		ctx:         disaster,
		magnitude:   1.0,
		attrs:       map[string]any{"disaster_type": "hurricane", "affected_region": "southeast"},
	})
	b.add(step{
		after:       8 * time.Hour,
		typ:         event.TypeSupplyChainDisruption,
		severity:    event.SeverityCritical,
		title:       "Major supplier offline for 2-3 weeks",
		description: "Primary component supplier cannot fulfill orders",
		ctx:         origin("supply_chain", "supplier_management", "operations", []string{"operations", "production", "leadership"}, "disruption", "critical", "supplier"),
		magnitude:   0.8,
		attrs: map[string]any{
			"supplier_id":            "SUP-001",
			"expected_duration_days": 18,
			"components_affected":    []string{"comp_a", "comp_b"},
		},
	})
	b.add(step{
		after:       12 * time.Hour,
		typ:         event.TypeInventoryChange,
		severity:    event.SeverityHigh,
		title:       "Critical inventory shortage: 60% below safety stock",
		description: "Inventory levels dropping rapidly due to supply shortage",
		ctx:         origin("operations", "inventory_system", "operations", []string{"operations", "production"}, "inventory", "shortage", "alert"),
		magnitude:   0.6,
		attrs:       map[string]any{"direction": "decrease", "below_safety_stock_pct": 60},
	})
	b.add(step{
		after:       day,
		typ:         event.TypeProductionChange,
		severity:    event.SeverityHigh,
		title:       "Production reduced to 40% capacity",
		description: "Manufacturing output limited by component shortage",
		ctx:         origin("operations", "production_system", "production", []string{"production", "operations", "leadership"}, "production", "capacity", "crisis"),
		magnitude:   0.6,
		attrs:       map[string]any{"direction": "decrease", "capacity_pct": 40},
	})
	for i := range 3 {
		s := step{
			offset:      time.Duration(i) * 6 * time.Hour,
			typ:         event.TypeCustomerComplaint,
			severity:    event.SeverityMedium,
			title:       fmt.Sprintf("Delivery delay complaint #%d", 2001+i),
			description: "Customer complaint about order fulfillment delays",
			ctx:         origin("customer_service", "crm_system", "customer_service", []string{"customer_service", "sales"}, "complaint", "delivery", "satisfaction"),
			magnitude:   0.3,
			attrs:       map[string]any{"complaint_type": "delivery_delay"},
		}
		if i == 0 {
			s.after = 2 * day
		}
		b.add(s)
	}
	b.add(step{
		after:       3 * day,
		typ:         event.TypeInvestment,
		severity:    event.SeverityHigh,
		title:       "Emergency investment: $500K for alternative suppliers",
		description: "Fast-track onboarding of backup suppliers",
		ctx:         origin("finance", "finance_system", "procurement", []string{"procurement", "finance", "leadership"}, "investment", "supplier", "emergency"),
		magnitude:   0.5,
		attrs:       map[string]any{"amount": 500000, "purpose": "alternative_supplier"},
	})
	b.add(step{
		after:       day,
		typ:         event.TypeCostChange,
		severity:    event.SeverityHigh,
		title:       "Operating costs up 25% due to premium suppliers",
		description: "Increased costs from emergency supplier arrangements",
		ctx:         origin("finance", "finance_system", "finance", []string{"finance", "leadership"}, "costs", "operations"),
		magnitude:   0.25,
		attrs:       map[string]any{"direction": "increase", "change_pct": 25},
	})
	b.add(step{
		after:       5 * day,
		typ:         event.TypeProductionChange,
		severity:    event.SeverityMedium,
		title:       "Production capacity restored to 75%",
		description: "Alternative suppliers enabling production recovery",
		ctx:         origin("operations", "production_system", "production", []string{"production", "operations"}, "production", "recovery"),
		magnitude:   0.35,
		attrs:       map[string]any{"direction": "increase", "capacity_pct": 75},
	})
	return b.result()
}

// ProductLaunch is a launch driving acquisition, demand, production and
// revenue, ending in a distribution partnership.
func (g *Generator) ProductLaunch() ([]*event.Event, error) {
	b := g.builder(ProductLaunch)

	b.add(step{
		typ:         event.TypeProductLaunch,
		severity:    event.SeverityHigh,
		title:       "Launch: NextGen Smart Widget v2.0",
		description: "Officially launched next generation product with AI features",
		ctx:         origin("product", "product_management", "product", []string{"product", "marketing", "sales", "leadership"}, "launch", "product", "innovation"),
		magnitude:   0.8,
		attrs: map[string]any{
			"product_id":   "PROD-200",
			"product_name": "NextGen Smart Widget v2.0",
			"features":     []string{"AI", "cloud_integration", "mobile_app"},
		},
	})
	b.add(step{
		after:       2 * time.Hour,
		typ:         event.TypeMarketingCampaign,
		severity:    event.SeverityHigh,
		title:       "Product launch campaign: 'The Future Is Here'",
		description: "Multi-channel campaign for new product launch",
		ctx:         origin("marketing", "marketing_system", "marketing", []string{"marketing", "sales"}, "campaign", "launch", "digital"),
		magnitude:   0.9,
		attrs: map[string]any{
			"budget":        200000,
			"duration_days": 30,
			"channels":      []string{"digital", "social", "pr", "events"},
		},
	})
	b.add(step{
		after:       day,
		typ:         event.TypeSocialTrend,
		severity:    event.SeverityMedium,
		title:       "Viral social media trend: #SmartLiving2025",
		description: "Product aligns with trending consumer interest in smart technology",
		ctx:         origin("market", "social_listening", "", []string{"marketing"}, "social", "trend", "viral"),
		magnitude:   0.6,
		attrs:       map[string]any{"trend_type": "technology", "reach": "high"},
	})
	for i := range 4 {
		s := step{
			offset:      time.Duration(i) * 4 * time.Hour,
			typ:         event.TypeCustomerAcquisition,
			severity:    event.SeverityMedium,
			title:       fmt.Sprintf("New customer cohort %d: 150 signups", i+1),
			description: "New customers acquired through launch campaign",
			ctx:         origin("sales", "crm_system", "sales", []string{"sales", "marketing"}, "acquisition", "growth"),
			magnitude:   150,
			attrs:       map[string]any{"count": 150, "source": "launch_campaign"},
		}
		if i == 0 {
			s.after = 2 * day
		}
		b.add(s)
	}
	b.add(step{
		after:       3 * day,
		typ:         event.TypeDemandChange,
		severity:    event.SeverityHigh,
		title:       "Product demand exceeds forecast by 40%",
		description: "Overwhelming positive market response to new product",
		ctx:         origin("sales", "analytics", "sales", []string{"sales", "operations", "product"}, "demand", "success", "forecast"),
		magnitude:   0.4,
		attrs:       map[string]any{"direction": "increase", "change_pct": 40},
	})
	b.add(step{
		after:       day,
		typ:         event.TypeProductionChange,
		severity:    event.SeverityMedium,
		title:       "Production increased to 150% of plan",
		description: "Manufacturing scaled up to meet demand",
		ctx:         origin("operations", "production_system", "production", []string{"production", "operations"}, "production", "scale_up"),
		magnitude:   0.5,
		attrs:       map[string]any{"direction": "increase", "capacity_pct": 150},
	})
	b.add(step{
		after:       2 * day,
		typ:         event.TypeRevenueChange,
		severity:    event.SeverityHigh,
		title:       "Monthly revenue up 35% from new product",
		description: "Significant revenue contribution from successful launch",
		ctx:         origin("finance", "finance_system", "finance", []string{"finance", "leadership"}, "revenue", "success", "growth"),
		magnitude:   0.35,
		attrs:       map[string]any{"direction": "increase", "change_pct": 35},
	})
	b.add(step{
		after:       7 * day,
		typ:         event.TypePartnership,
		severity:    event.SeverityMedium,
		title:       "Strategic partnership with TechCorp for distribution",
		description: "Major retailer partnership secured due to product success",
		ctx:         origin("strategy", "business_development", "strategy", []string{"strategy", "sales", "leadership"}, "partnership", "distribution", "growth"),
		magnitude:   0.7,
		attrs:       map[string]any{"partner": "TechCorp", "type": "distribution"},
	})
	return b.result()
}
