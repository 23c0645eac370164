package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/linguamate-backend/internal/quota"
	"github.com/angelmondragon/linguamate-backend/pkg/db"
	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	"github.com/angelmondragon/linguamate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
	"github.com/angelmondragon/linguamate-backend/pkg/metrics"
)

// DayFormat is how calendar days are stored. Days are always computed in UTC.
const DayFormat = "2006-01-02"

// Day returns the UTC calendar day containing t.
func Day(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// Service is the daily usage ledger.
type Service interface {
	GetDailyUsage(ctx context.Context, userID string, tier enums.SubscriptionTier) (*models.DailyUsage, error)
	CheckLimit(ctx context.Context, userID string, tier enums.SubscriptionTier, delta quota.Delta) (quota.Verdict, error)
	Increment(ctx context.Context, userID string, tier enums.SubscriptionTier, delta quota.Delta) (*models.DailyUsage, error)
	Summary(ctx context.Context, userID string, tier enums.SubscriptionTier) (*Summary, error)
}

// Summary is today's consumption next to the tier's caps.
type Summary struct {
	Date         string                 `json:"date"`
	Tier         enums.SubscriptionTier `json:"tier"`
	Used         quota.Counters         `json:"used"`
	Limits       quota.Quota            `json:"limits"`
	Remaining    quota.Counters         `json:"remaining"`
	LimitReached bool                   `json:"limit_reached"`
}

// ServiceParams configure the usage ledger.
type ServiceParams struct {
	Repo    Repository
	Logger  *logger.Logger
	Metrics *metrics.UsageMetrics
	Now     func() time.Time
}

type service struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.UsageMetrics
	now     func() time.Time
}

// NewService builds the ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("usage repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repo,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (s *service) GetDailyUsage(ctx context.Context, userID string, tier enums.SubscriptionTier) (*models.DailyUsage, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "User not authenticated")
	}
	now := s.now().UTC()
	today := Day(now)
	logCtx := s.logg.WithFields(ctx, map[string]any{"user_id": userID, "date": today})

	record, err := s.repo.FindByUserAndDate(ctx, userID, today)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load daily usage")
	}
	if record != nil {
		if Day(record.LastResetAt) == today {
			return record, nil
		}
		if err := s.repo.Reset(ctx, record.ID, tier, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset daily usage")
		}
		record.ConversationsCount = 0
		record.CharactersUsed = 0
		record.MinutesUsed = 0
		record.SubscriptionTier = tier
		record.LimitReached = false
		record.LastResetAt = now
		s.logg.Info(logCtx, "daily usage rolled over")
		return record, nil
	}

	record = &models.DailyUsage{
		ID:               uuid.New(),
		UserID:           userID,
		Date:             today,
		SubscriptionTier: tier,
		LastResetAt:      now,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if !db.IsUniqueViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create daily usage")
		}
		// A concurrent request created today's row first; use theirs.
		existing, findErr := s.repo.FindByUserAndDate(ctx, userID, today)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload daily usage")
		}
		if existing == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "daily usage vanished after duplicate insert")
		}
		s.logg.Info(logCtx, "daily usage created concurrently; reusing existing row")
		return existing, nil
	}
	s.logg.Info(logCtx, "daily usage created")
	return record, nil
}

func (s *service) CheckLimit(ctx context.Context, userID string, tier enums.SubscriptionTier, delta quota.Delta) (quota.Verdict, error) {
	record, err := s.GetDailyUsage(ctx, userID, tier)
	if err != nil {
		return quota.Verdict{}, err
	}
	verdict := quota.Evaluate(countersOf(record), delta, quota.ForTier(tier))
	s.metrics.ObserveVerdict(tier.String(), verdict.Allowed, string(verdict.Dimension))
	if !verdict.Allowed {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":   userID,
			"tier":      tier,
			"dimension": verdict.Dimension,
		})
		s.logg.Info(logCtx, "usage denied")
	}
	return verdict, nil
}

// Increment never rejects: overage is written and flagged through LimitReached.
func (s *service) Increment(ctx context.Context, userID string, tier enums.SubscriptionTier, delta quota.Delta) (*models.DailyUsage, error) {
	record, err := s.GetDailyUsage(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	wasReached := record.LimitReached

	add := delta.Counters()
	if err := s.repo.AddCounters(ctx, record.ID, add, tier); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment daily usage")
	}
	updated, err := s.repo.FindByID(ctx, record.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload daily usage")
	}
	if updated == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, errors.New("row missing"), "reload daily usage")
	}

	reached := quota.ExceedsAny(countersOf(updated), quota.ForTier(tier))
	if reached != updated.LimitReached {
		if err := s.repo.SetLimitReached(ctx, updated.ID, reached); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag daily usage")
		}
		updated.LimitReached = reached
	}

	s.metrics.AddConsumption(tier.String(), string(quota.DimensionConversations), add.Conversations)
	s.metrics.AddConsumption(tier.String(), string(quota.DimensionCharacters), add.Characters)
	s.metrics.AddConsumption(tier.String(), string(quota.DimensionMinutes), add.Minutes)
	if reached && !wasReached {
		s.metrics.IncLimitReached(tier.String())
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":       userID,
			"tier":          tier,
			"conversations": updated.ConversationsCount,
			"characters":    updated.CharactersUsed,
			"minutes":       updated.MinutesUsed,
		})
		s.logg.Warn(logCtx, "daily usage limit reached")
	}
	return updated, nil
}

func (s *service) Summary(ctx context.Context, userID string, tier enums.SubscriptionTier) (*Summary, error) {
	record, err := s.GetDailyUsage(ctx, userID, tier)
	if err != nil {
		return nil, err
	}
	return SummaryOf(record, tier), nil
}

// SummaryOf lays record out against tier's caps without touching the store.
func SummaryOf(record *models.DailyUsage, tier enums.SubscriptionTier) *Summary {
	limits := quota.ForTier(tier)
	used := countersOf(record)
	return &Summary{
		Date:   record.Date,
		Tier:   tier,
		Used:   used,
		Limits: limits,
		Remaining: quota.Counters{
			Conversations: quota.Remaining(used.Conversations, limits.DailyConversations),
			Characters:    quota.Remaining(used.Characters, limits.DailyCharacters),
			Minutes:       quota.Remaining(used.Minutes, limits.DailyMinutes),
		},
		LimitReached: record.LimitReached,
	}
}

func countersOf(record *models.DailyUsage) quota.Counters {
	return quota.Counters{
		Conversations: record.ConversationsCount,
		Characters:    record.CharactersUsed,
		Minutes:       record.MinutesUsed,
	}
}
