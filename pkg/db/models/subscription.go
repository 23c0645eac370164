package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/linguamate-backend/pkg/enums"
)

// Subscription persists the tier a user is entitled to. Rows are upserted per
// (user_id, billing_subscription_ref); the default free record has empty refs.
type Subscription struct {
	ID                     uuid.UUID              `gorm:"type:uuid;primaryKey"`
	UserID                 string                 `gorm:"column:user_id;not null;index"`
	Tier                   enums.SubscriptionTier `gorm:"column:tier;not null;default:'free'"`
	BillingCustomerRef     string                 `gorm:"column:billing_customer_ref;not null;default:''"`
	BillingSubscriptionRef string                 `gorm:"column:billing_subscription_ref;not null;default:''"`
	CurrentPeriodStart     time.Time              `gorm:"column:current_period_start;not null"`
	CurrentPeriodEnd       time.Time              `gorm:"column:current_period_end;not null"`
	IsActive               bool                   `gorm:"column:is_active;not null"`
	DaysRemaining          int                    `gorm:"column:days_remaining;not null;default:0"`
	CreatedAt              time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string { return "subscriptions" }
