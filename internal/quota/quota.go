package quota

import "github.com/angelmondragon/linguamate-backend/pkg/enums"

// Unlimited marks a dimension without a daily cap.
const Unlimited int64 = -1

// Quota is the daily allowance for a tier.
type Quota struct {
	DailyConversations int64 `json:"daily_conversations"`
	DailyCharacters    int64 `json:"daily_characters"`
	DailyMinutes       int64 `json:"daily_minutes"`
}

var quotasByTier = map[enums.SubscriptionTier]Quota{
	enums.SubscriptionTierFree: {
		DailyConversations: 3,
		DailyCharacters:    5000,
		DailyMinutes:       5,
	},
	enums.SubscriptionTierPro: {
		DailyConversations: 100,
		DailyCharacters:    50000,
		DailyMinutes:       60,
	},
	enums.SubscriptionTierProPlus: {
		DailyConversations: Unlimited,
		DailyCharacters:    Unlimited,
		DailyMinutes:       Unlimited,
	},
}

// ForTier returns the quota for tier. Unknown tiers get the free quota.
func ForTier(tier enums.SubscriptionTier) Quota {
	if q, ok := quotasByTier[tier]; ok {
		return q
	}
	return quotasByTier[enums.SubscriptionTierFree]
}

// IsWithinLimit reports whether projected usage fits under limit. Reaching the
// cap exactly is allowed.
func IsWithinLimit(projected, limit int64) bool {
	if limit == Unlimited {
		return true
	}
	return projected <= limit
}

// Remaining returns what is left of limit, or Unlimited.
func Remaining(used, limit int64) int64 {
	if limit == Unlimited {
		return Unlimited
	}
	return max(0, limit-used)
}
