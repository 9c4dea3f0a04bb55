package event

import (
	"fmt"
	"strings"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
)

// Type is the closed business event taxonomy
type Type int

const (
	// Market
	TypeMarketShift Type = iota
	TypeDemandChange
	TypeSupplyChange
	TypePriceChange
	TypeCompetitorAction

	// Customer
	TypeCustomerAcquisition
	TypeCustomerChurn
	TypeCustomerComplaint
	TypeCustomerSatisfaction
	TypePurchase

	// Operational
	TypeProductionChange
	TypeInventoryChange
	TypeQualityIssue
	TypeSupplyChainDisruption
	TypeCapacityChange

	// Financial
	TypeRevenueChange
	TypeCostChange
	TypeInvestment
	TypeCashFlowChange

	// Strategic
	TypeProductLaunch
	TypeMarketingCampaign
	TypePartnership
	TypeExpansion
	TypeRestructuring

	// External
	TypeRegulatoryChange
	TypeEconomicShift
	TypeTechnologicalChange
	TypeNaturalDisaster
	TypeSocialTrend

	typeCount
)

// Category groups event types
type Category int

const (
	CategoryMarket Category = iota
	CategoryCustomer
	CategoryOperational
	CategoryFinancial
	CategoryStrategic
	CategoryExternal
)

func (c Category) String() string {
	switch c {
	case CategoryMarket:
		return "market"
	case CategoryCustomer:
		return "customer"
	case CategoryOperational:
		return "operational"
	case CategoryFinancial:
		return "financial"
	case CategoryStrategic:
		return "strategic"
	case CategoryExternal:
		return "external"
	default:
		return "unknown"
	}
}

var typeNames = [typeCount]string{
	"market_shift", "demand_change", "supply_change", "price_change", "competitor_action",
	"customer_acquisition", "customer_churn", "customer_complaint", "customer_satisfaction", "purchase",
	"production_change", "inventory_change", "quality_issue", "supply_chain_disruption", "capacity_change",
	"revenue_change", "cost_change", "investment", "cash_flow_change",
	"product_launch", "marketing_campaign", "partnership", "expansion", "restructuring",
	"regulatory_change", "economic_shift", "technological_change", "natural_disaster", "social_trend",
}

func (t Type) String() string {
	if !t.Valid() {
		return "unknown"
	}
	return typeNames[t]
}

func (t Type) Valid() bool {
	return t >= 0 && t < typeCount
}

// Category returns the taxonomy group of the type
func (t Type) Category() Category {
	switch {
	case t <= TypeCompetitorAction:
		return CategoryMarket
	case t <= TypePurchase:
		return CategoryCustomer
	case t <= TypeCapacityChange:
		return CategoryOperational
	case t <= TypeCashFlowChange:
		return CategoryFinancial
	case t <= TypeRestructuring:
		return CategoryStrategic
	default:
		return CategoryExternal
	}
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid event type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseType resolves a type from its wire name
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return 0, errors.NewValidationError("UNKNOWN_EVENT_TYPE",
		fmt.Sprintf("unknown event type %q", s)).WithField("event_type")
}

// AllTypes lists every event type in declaration order
func AllTypes() []Type {
	out := make([]Type, 0, typeCount)
	for t := Type(0); t < typeCount; t++ {
		out = append(out, t)
	}
	return out
}

// Severity is an ordinal impact level
type Severity int

const (
	SeverityNegligible Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNegligible:
		return "negligible"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func (s Severity) Valid() bool {
	return s >= SeverityNegligible && s <= SeverityCritical
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	parsed, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseSeverity(s string) (Severity, error) {
	for sev := SeverityNegligible; sev <= SeverityCritical; sev++ {
		if sev.String() == strings.ToLower(strings.TrimSpace(s)) {
			return sev, nil
		}
	}
	return 0, errors.NewValidationError("UNKNOWN_SEVERITY",
		fmt.Sprintf("unknown severity %q", s)).WithField("severity")
}

// AllSeverities lists severities from lowest to highest
func AllSeverities() []Severity {
	return []Severity{SeverityNegligible, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}
