package enums

import (
	"fmt"
	"strings"
)

// SubscriptionTier is the paid level a user is on. Quotas grow with the tier.
type SubscriptionTier string

const (
	SubscriptionTierFree    SubscriptionTier = "free"
	SubscriptionTierPro     SubscriptionTier = "pro"
	SubscriptionTierProPlus SubscriptionTier = "pro_plus"
)

var validSubscriptionTiers = []SubscriptionTier{
	SubscriptionTierFree,
	SubscriptionTierPro,
	SubscriptionTierProPlus,
}

// String implements fmt.Stringer.
func (t SubscriptionTier) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t SubscriptionTier) IsValid() bool {
	for _, candidate := range validSubscriptionTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsPaid reports whether the tier comes from a billing entitlement.
func (t SubscriptionTier) IsPaid() bool {
	return t == SubscriptionTierPro || t == SubscriptionTierProPlus
}

// ParseSubscriptionTier converts raw input into a SubscriptionTier.
func ParseSubscriptionTier(value string) (SubscriptionTier, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validSubscriptionTiers {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription tier %q", value)
}

// TierFromProductIdentifier maps a billing product id onto a tier. Yearly and
// annual products unlock ProPlus, monthly unlocks Pro, and anything else with
// an active entitlement is treated as Pro.
func TierFromProductIdentifier(productID string) SubscriptionTier {
	id := strings.ToLower(productID)
	switch {
	case strings.Contains(id, "yearly"), strings.Contains(id, "annual"):
		return SubscriptionTierProPlus
	case strings.Contains(id, "monthly"):
		return SubscriptionTierPro
	default:
		return SubscriptionTierPro
	}
}
