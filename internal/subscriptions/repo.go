package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/linguamate-backend/pkg/db"
	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	"github.com/angelmondragon/linguamate-backend/pkg/enums"
)

// Repository handles subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindLatestActive(ctx context.Context, userID string) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Subscription, error)
	FindByBillingRef(ctx context.Context, userID, billingSubscriptionRef string) (*models.Subscription, error)
	Create(ctx context.Context, subscription *models.Subscription) error
	Update(ctx context.Context, subscription *models.Subscription) error
	ListForReconciliation(ctx context.Context, cutoff time.Time, limit int) ([]models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindLatestActive(ctx context.Context, userID string) (*models.Subscription, error) {
	return db.First[models.Subscription](r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC"))
}

func (r *repository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var subs []models.Subscription
	if err := query.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) FindByBillingRef(ctx context.Context, userID, billingSubscriptionRef string) (*models.Subscription, error) {
	return db.First[models.Subscription](r.db.WithContext(ctx).
		Where("user_id = ? AND billing_subscription_ref = ?", userID, billingSubscriptionRef).
		Order("created_at DESC"))
}

func (r *repository) Create(ctx context.Context, subscription *models.Subscription) error {
	if subscription.ID == uuid.Nil {
		subscription.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) Update(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

// ListForReconciliation returns paid records that are still active or whose
// period ended after cutoff, most recently touched first.
func (r *repository) ListForReconciliation(ctx context.Context, cutoff time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 250
	}
	paid := []enums.SubscriptionTier{enums.SubscriptionTierPro, enums.SubscriptionTierProPlus}
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("tier IN ?", paid).
		Where("(is_active = ? OR current_period_end >= ?)", true, cutoff).
		Order("updated_at DESC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
