package models

import (
	"fmt"
	"strings"
)

type Tier string

const (
	TierEssential    Tier = "essential"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// Tiers lists every plan in display order.
var Tiers = []Tier{TierEssential, TierProfessional, TierEnterprise}

// The signup form used solo/team/business before the plans were renamed.
var tierAliases = map[string]Tier{
	"essential":    TierEssential,
	"solo":         TierEssential,
	"professional": TierProfessional,
	"team":         TierProfessional,
	"enterprise":   TierEnterprise,
	"business":     TierEnterprise,
}

func ParseTier(s string) (Tier, error) {
	tier, ok := tierAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return tier, nil
}

// DisplayName is the capitalized plan name shown to customers.
func (t Tier) DisplayName() string {
	switch t {
	case TierEssential:
		return "Essential"
	case TierProfessional:
		return "Professional"
	case TierEnterprise:
		return "Enterprise"
	default:
		return string(t)
	}
}

type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingAnnual  BillingCycle = "annual"
)

var BillingCycles = []BillingCycle{BillingMonthly, BillingAnnual}

// ParseBillingCycle defaults an empty value to monthly.
func ParseBillingCycle(s string) (BillingCycle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monthly", "month":
		return BillingMonthly, nil
	case "annual", "annually", "yearly", "year":
		return BillingAnnual, nil
	default:
		return "", fmt.Errorf("unknown billing cycle %q", s)
	}
}
