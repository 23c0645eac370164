package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/linguamate-backend/internal/quota"
	"github.com/angelmondragon/linguamate-backend/pkg/db"
	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	"github.com/angelmondragon/linguamate-backend/pkg/enums"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByExternalID retrieves the user linked to the identity provider subject.
// A missing user yields (nil, nil).
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return db.First[models.User](r.db.WithContext(ctx).Where("external_id = ?", externalID))
}

// UpdateProfile overwrites the identity fields present in fields.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// AddTotals bumps the lifetime counters in place. It returns
// gorm.ErrRecordNotFound when no user matches.
func (r *Repository) AddTotals(ctx context.Context, externalID string, delta quota.Counters) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("external_id = ?", externalID).
		Updates(map[string]any{
			"total_conversations":   gorm.Expr("total_conversations + ?", delta.Conversations),
			"total_characters_used": gorm.Expr("total_characters_used + ?", delta.Characters),
			"total_minutes_used":    gorm.Expr("total_minutes_used + ?", delta.Minutes),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateTier stores the tier and premium flag. It reports whether a user matched.
func (r *Repository) UpdateTier(ctx context.Context, externalID string, tier enums.SubscriptionTier, premium bool) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("external_id = ?", externalID).
		Updates(map[string]any{
			"subscription_tier": tier,
			"is_premium":        premium,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
