package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/linguamate-backend/internal/quota"
	"github.com/angelmondragon/linguamate-backend/pkg/db"
	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	"github.com/angelmondragon/linguamate-backend/pkg/enums"
)

// Repository persists daily usage rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserAndDate(ctx context.Context, userID, date string) (*models.DailyUsage, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.DailyUsage, error)
	Create(ctx context.Context, record *models.DailyUsage) error
	Reset(ctx context.Context, id uuid.UUID, tier enums.SubscriptionTier, at time.Time) error
	AddCounters(ctx context.Context, id uuid.UUID, delta quota.Counters, tier enums.SubscriptionTier) error
	SetLimitReached(ctx context.Context, id uuid.UUID, reached bool) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByUserAndDate(ctx context.Context, userID, date string) (*models.DailyUsage, error) {
	return db.First[models.DailyUsage](r.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", userID, date).
		Order("created_at ASC"))
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DailyUsage, error) {
	return db.First[models.DailyUsage](r.db.WithContext(ctx), "id = ?", id)
}

func (r *repository) Create(ctx context.Context, record *models.DailyUsage) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) Reset(ctx context.Context, id uuid.UUID, tier enums.SubscriptionTier, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DailyUsage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"conversations_count": 0,
			"characters_used":     0,
			"minutes_used":        0,
			"subscription_tier":   tier,
			"limit_reached":       false,
			"last_reset_at":       at,
		}).Error
}

// AddCounters increments in the database so concurrent writers add up instead
// of overwriting each other.
func (r *repository) AddCounters(ctx context.Context, id uuid.UUID, delta quota.Counters, tier enums.SubscriptionTier) error {
	result := r.db.WithContext(ctx).
		Model(&models.DailyUsage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"conversations_count": gorm.Expr("conversations_count + ?", delta.Conversations),
			"characters_used":     gorm.Expr("characters_used + ?", delta.Characters),
			"minutes_used":        gorm.Expr("minutes_used + ?", delta.Minutes),
			"subscription_tier":   tier,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) SetLimitReached(ctx context.Context, id uuid.UUID, reached bool) error {
	return r.db.WithContext(ctx).
		Model(&models.DailyUsage{}).
		Where("id = ?", id).
		UpdateColumn("limit_reached", reached).Error
}
