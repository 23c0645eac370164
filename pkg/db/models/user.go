package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/linguamate-backend/pkg/enums"
)

// User is the profile mirrored from the identity provider plus lifetime usage
// totals. Totals only ever grow.
type User struct {
	ID                  uuid.UUID              `gorm:"type:uuid;primaryKey"`
	ExternalID          string                 `gorm:"column:external_id;not null;uniqueIndex"`
	Email               string                 `gorm:"column:email;not null;default:''"`
	FullName            string                 `gorm:"column:full_name;not null;default:''"`
	SubscriptionTier    enums.SubscriptionTier `gorm:"column:subscription_tier;not null;default:'free'"`
	IsPremium           bool                   `gorm:"column:is_premium;not null;default:false"`
	TotalConversations  int64                  `gorm:"column:total_conversations;not null;default:0"`
	TotalCharactersUsed int64                  `gorm:"column:total_characters_used;not null;default:0"`
	TotalMinutesUsed    int64                  `gorm:"column:total_minutes_used;not null;default:0"`
	CreatedAt           time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
