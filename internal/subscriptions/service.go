package subscriptions

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	"github.com/angelmondragon/linguamate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
	"github.com/angelmondragon/linguamate-backend/pkg/metrics"
	"github.com/angelmondragon/linguamate-backend/pkg/revenuecat"
)

const (
	defaultPeriodDays    = 30
	defaultLookupLimit   = 10
	defaultEntitlementID = "LinguaMate Pro"
)

// EntitlementSource fetches the billing provider's snapshot for a user.
type EntitlementSource interface {
	GetCustomerInfo(ctx context.Context, appUserID string) (*revenuecat.CustomerInfo, error)
}

// TierSyncer mirrors a resolved paid tier onto the user's profile.
type TierSyncer interface {
	SyncTier(ctx context.Context, externalID string, tier enums.SubscriptionTier) error
}

// Service resolves and persists the tier a user is entitled to.
type Service interface {
	GetOrCreate(ctx context.Context, userID string) (*models.Subscription, error)
	ResolveTier(ctx context.Context, userID string) (enums.SubscriptionTier, error)
	SyncEntitlement(ctx context.Context, userID string, info *revenuecat.CustomerInfo) (*models.Subscription, error)
	SyncFromBilling(ctx context.Context, userID string) (*models.Subscription, error)
	History(ctx context.Context, userID string, limit int) ([]models.Subscription, error)
	Reconcile(ctx context.Context, record *models.Subscription) (ReconcileOutcome, error)
}

// ReconcileOutcome reports what a reconcile pass did to one record.
type ReconcileOutcome string

const (
	ReconcileSynced      ReconcileOutcome = "synced"
	ReconcileExpired     ReconcileOutcome = "expired"
	ReconcileRecomputed  ReconcileOutcome = "recomputed"
	ReconcileUnchanged   ReconcileOutcome = "unchanged"
	ReconcileUnsupported ReconcileOutcome = "unsupported"
)

// ServiceParams groups dependencies for the subscription service. Billing is
// optional; without it tiers come from stored records only.
type ServiceParams struct {
	Repo              Repository
	Billing           EntitlementSource
	TierSyncer        TierSyncer
	EntitlementID     string
	DefaultPeriodDays int
	LookupLimit       int
	Logger            *logger.Logger
	Metrics           *metrics.UsageMetrics
	Now               func() time.Time
}

type service struct {
	repo          Repository
	billing       EntitlementSource
	tierSyncer    TierSyncer
	entitlementID string
	periodDays    int
	lookupLimit   int
	logg          *logger.Logger
	metrics       *metrics.UsageMetrics
	now           func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	entitlementID := strings.TrimSpace(params.EntitlementID)
	if entitlementID == "" {
		entitlementID = defaultEntitlementID
	}
	periodDays := params.DefaultPeriodDays
	if periodDays <= 0 {
		periodDays = defaultPeriodDays
	}
	lookupLimit := params.LookupLimit
	if lookupLimit <= 0 {
		lookupLimit = defaultLookupLimit
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:          params.Repo,
		billing:       params.Billing,
		tierSyncer:    params.TierSyncer,
		entitlementID: entitlementID,
		periodDays:    periodDays,
		lookupLimit:   lookupLimit,
		logg:          params.Logger,
		metrics:       params.Metrics,
		now:           now,
	}, nil
}

// GetOrCreate returns the newest active record, else the newest record of
// any state, else persists a default free record.
func (s *service) GetOrCreate(ctx context.Context, userID string) (*models.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "User not authenticated")
	}
	logCtx := s.logg.WithUserID(ctx, userID)

	active, err := s.repo.FindLatestActive(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active subscription")
	}
	if active != nil {
		return active, nil
	}

	existing, err := s.repo.ListByUser(ctx, userID, s.lookupLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	now := s.now().UTC()
	record := &models.Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		Tier:               enums.SubscriptionTierFree,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, s.periodDays),
		IsActive:           true,
		DaysRemaining:      s.periodDays,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create free subscription")
	}
	s.logg.Info(logCtx, "free subscription created")
	return record, nil
}

func (s *service) ResolveTier(ctx context.Context, userID string) (enums.SubscriptionTier, error) {
	if strings.TrimSpace(userID) == "" {
		return enums.SubscriptionTierFree, pkgerrors.New(pkgerrors.CodeUnauthorized, "User not authenticated")
	}
	logCtx := s.logg.WithUserID(ctx, userID)

	if s.billing != nil {
		info, err := s.billing.GetCustomerInfo(ctx, userID)
		if err != nil {
			return enums.SubscriptionTierFree, err
		}
		if ent, ok := info.ActiveEntitlement(s.entitlementID); ok {
			tier := enums.TierFromProductIdentifier(ent.ProductIdentifier)
			if _, err := s.SyncEntitlement(ctx, userID, info); err != nil {
				s.logg.Error(logCtx, "project billing snapshot failed", err)
			}
			s.logg.Debug(s.logg.WithTier(logCtx, tier.String()), "tier resolved from billing provider")
			return tier, nil
		}
	}

	record, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return enums.SubscriptionTierFree, err
	}
	tier := recordTier(record, s.now().UTC())
	s.logg.Debug(s.logg.WithTier(logCtx, tier.String()), "tier resolved from stored subscription")
	return tier, nil
}

// recordTier honours a stored tier only while its period has not ended.
func recordTier(record *models.Subscription, now time.Time) enums.SubscriptionTier {
	tier, err := enums.ParseSubscriptionTier(record.Tier.String())
	if err != nil {
		return enums.SubscriptionTierFree
	}
	if tier.IsPaid() && !now.Before(record.CurrentPeriodEnd) {
		return enums.SubscriptionTierFree
	}
	return tier
}

// SyncEntitlement projects a billing snapshot onto the user's subscription
// record. Snapshots without the tracked entitlement are ignored.
func (s *service) SyncEntitlement(ctx context.Context, userID string, info *revenuecat.CustomerInfo) (*models.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "User not authenticated")
	}
	logCtx := s.logg.WithUserID(ctx, userID)

	ent, ok := info.ActiveEntitlement(s.entitlementID)
	if !ok {
		s.metrics.IncBillingSync("no_entitlement")
		s.logg.Info(logCtx, "no active entitlement; nothing to sync")
		return nil, nil
	}

	now := s.now().UTC()
	periodEnd := now
	if ent.ExpirationDate != nil {
		periodEnd = ent.ExpirationDate.UTC()
	}
	periodStart := now
	if ent.OriginalPurchaseDate != nil {
		periodStart = ent.OriginalPurchaseDate.UTC()
	}
	tier := enums.TierFromProductIdentifier(ent.ProductIdentifier)
	isActive := ent.WillRenew == nil || *ent.WillRenew
	ref := ent.OriginalTransactionID

	record, err := s.repo.FindByBillingRef(ctx, userID, ref)
	if err != nil {
		s.metrics.IncBillingSync("failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription by billing ref")
	}
	created := record == nil
	if created {
		record = &models.Subscription{ID: uuid.New(), UserID: userID}
	}
	record.Tier = tier
	record.BillingCustomerRef = info.OriginalAppUserID
	record.BillingSubscriptionRef = ref
	record.CurrentPeriodStart = periodStart
	record.CurrentPeriodEnd = periodEnd
	record.IsActive = isActive
	record.DaysRemaining = DaysRemaining(periodEnd, now)

	if created {
		err = s.repo.Create(ctx, record)
	} else {
		err = s.repo.Update(ctx, record)
	}
	if err != nil {
		s.metrics.IncBillingSync("failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
	}
	s.metrics.IncBillingSync("synced")

	syncCtx := s.logg.WithFields(logCtx, map[string]any{
		"tier":           tier,
		"billing_ref":    ref,
		"period_end":     periodEnd,
		"days_remaining": record.DaysRemaining,
		"created":        created,
	})
	s.logg.Info(syncCtx, "subscription synced from billing provider")

	if s.tierSyncer != nil {
		if err := s.tierSyncer.SyncTier(ctx, userID, tier); err != nil {
			s.logg.Error(syncCtx, "mirror tier onto profile failed", err)
		}
	}
	return record, nil
}

// SyncFromBilling fetches the current snapshot and projects it. It backs the
// purchase, restore and webhook flows.
func (s *service) SyncFromBilling(ctx context.Context, userID string) (*models.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "User not authenticated")
	}
	if s.billing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "billing provider not configured")
	}
	info, err := s.billing.GetCustomerInfo(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.SyncEntitlement(ctx, userID, info)
}

// History lists the user's records newest first.
func (s *service) History(ctx context.Context, userID string, limit int) ([]models.Subscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "User not authenticated")
	}
	if limit <= 0 {
		limit = s.lookupLimit
	}
	records, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	return records, nil
}

// Reconcile refreshes one stored paid record. An active entitlement is synced;
// otherwise a lapsed record is deactivated and a running one gets its
// remaining days recomputed.
func (s *service) Reconcile(ctx context.Context, record *models.Subscription) (ReconcileOutcome, error) {
	if record == nil {
		return ReconcileUnchanged, nil
	}
	if s.billing == nil {
		return ReconcileUnsupported, nil
	}
	info, err := s.billing.GetCustomerInfo(ctx, record.UserID)
	if err != nil {
		return "", fmt.Errorf("fetch billing snapshot for %s: %w", record.UserID, err)
	}
	if _, ok := info.ActiveEntitlement(s.entitlementID); ok {
		if _, err := s.SyncEntitlement(ctx, record.UserID, info); err != nil {
			return "", fmt.Errorf("sync entitlement for %s: %w", record.UserID, err)
		}
		return ReconcileSynced, nil
	}

	now := s.now().UTC()
	outcome := ReconcileUnchanged
	if !now.Before(record.CurrentPeriodEnd) {
		if record.IsActive || record.DaysRemaining != 0 {
			record.IsActive = false
			record.DaysRemaining = 0
			outcome = ReconcileExpired
		}
	} else if days := DaysRemaining(record.CurrentPeriodEnd, now); days != record.DaysRemaining {
		record.DaysRemaining = days
		outcome = ReconcileRecomputed
	}
	if outcome == ReconcileUnchanged {
		return outcome, nil
	}
	if err := s.repo.Update(ctx, record); err != nil {
		return "", fmt.Errorf("update subscription %s: %w", record.ID, err)
	}
	if outcome == ReconcileExpired && s.tierSyncer != nil {
		s.mirrorLapsedTier(ctx, record.UserID)
	}
	return outcome, nil
}

func (s *service) mirrorLapsedTier(ctx context.Context, userID string) {
	logCtx := s.logg.WithUserID(ctx, userID)
	other, err := s.repo.FindLatestActive(ctx, userID)
	if err != nil {
		s.logg.Error(logCtx, "check remaining subscriptions failed", err)
		return
	}
	if other != nil && other.Tier.IsPaid() {
		return
	}
	if err := s.tierSyncer.SyncTier(ctx, userID, enums.SubscriptionTierFree); err != nil {
		s.logg.Error(logCtx, "mirror lapsed tier onto profile failed", err)
	}
}

// DaysRemaining counts whole days left until periodEnd, rounding partial days
// up and never going below zero.
func DaysRemaining(periodEnd, now time.Time) int {
	days := math.Ceil(periodEnd.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return int(days)
}
