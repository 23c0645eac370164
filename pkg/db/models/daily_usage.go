package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/linguamate-backend/pkg/enums"
)

// DailyUsage holds one user's counters for one UTC calendar day. Date is the
// authoritative day; LastResetAt only detects stale counters.
type DailyUsage struct {
	ID                 uuid.UUID              `gorm:"type:uuid;primaryKey"`
	UserID             string                 `gorm:"column:user_id;not null;uniqueIndex:daily_usage_user_date_key"`
	Date               string                 `gorm:"column:date;not null;uniqueIndex:daily_usage_user_date_key"`
	ConversationsCount int64                  `gorm:"column:conversations_count;not null;default:0"`
	CharactersUsed     int64                  `gorm:"column:characters_used;not null;default:0"`
	MinutesUsed        int64                  `gorm:"column:minutes_used;not null;default:0"`
	SubscriptionTier   enums.SubscriptionTier `gorm:"column:subscription_tier;not null"`
	LimitReached       bool                   `gorm:"column:limit_reached;not null;default:false"`
	LastResetAt        time.Time              `gorm:"column:last_reset_at;not null"`
	CreatedAt          time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (DailyUsage) TableName() string { return "daily_usage" }
