package subscriptions

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/linguamate-backend/api/middleware"
	"github.com/angelmondragon/linguamate-backend/api/responses"
	"github.com/angelmondragon/linguamate-backend/api/validators"
	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	"github.com/angelmondragon/linguamate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

// Resolver is the read side used by the subscription endpoints.
type Resolver interface {
	GetOrCreate(ctx context.Context, userID string) (*models.Subscription, error)
	ResolveTier(ctx context.Context, userID string) (enums.SubscriptionTier, error)
}

// Syncer re-projects the billing provider's snapshot for a user.
type Syncer interface {
	SyncFromBilling(ctx context.Context, userID string) (*models.Subscription, error)
	History(ctx context.Context, userID string, limit int) ([]models.Subscription, error)
}

type subscriptionResponse struct {
	ID                 uuid.UUID              `json:"id"`
	Tier               enums.SubscriptionTier `json:"tier"`
	IsActive           bool                   `json:"is_active"`
	CurrentPeriodStart time.Time              `json:"current_period_start"`
	CurrentPeriodEnd   time.Time              `json:"current_period_end"`
	DaysRemaining      int                    `json:"days_remaining"`
	BillingRef         string                 `json:"billing_subscription_ref,omitempty"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

type tierResponse struct {
	Tier      enums.SubscriptionTier `json:"tier"`
	IsPremium bool                   `json:"is_premium"`
}

type syncResponse struct {
	Synced       bool                  `json:"synced"`
	Subscription *subscriptionResponse `json:"subscription,omitempty"`
	Tier         tierResponse          `json:"tier"`
}

func toResponse(sub *models.Subscription) *subscriptionResponse {
	if sub == nil {
		return nil
	}
	return &subscriptionResponse{
		ID:                 sub.ID,
		Tier:               sub.Tier,
		IsActive:           sub.IsActive,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		DaysRemaining:      sub.DaysRemaining,
		BillingRef:         sub.BillingSubscriptionRef,
		UpdatedAt:          sub.UpdatedAt,
	}
}

func SubscriptionFetch(svc Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		sub, err := svc.GetOrCreate(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toResponse(sub))
	}
}

func SubscriptionTier(svc Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		tier, err := svc.ResolveTier(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tierResponse{Tier: tier, IsPremium: tier.IsPaid()})
	}
}

// SubscriptionSync runs after an in-app purchase or restore so the backend
// picks up the new entitlement without waiting for the webhook.
func SubscriptionSync(syncer Syncer, resolver Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if syncer == nil || resolver == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		sub, err := syncer.SyncFromBilling(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tier, err := resolver.ResolveTier(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, syncResponse{
			Synced:       sub != nil,
			Subscription: toResponse(sub),
			Tier:         tierResponse{Tier: tier, IsPremium: tier.IsPaid()},
		})
	}
}

func SubscriptionHistory(syncer Syncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if syncer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		records, err := syncer.History(r.Context(), middleware.UserIDFromContext(r.Context()), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]*subscriptionResponse, 0, len(records))
		for i := range records {
			out = append(out, toResponse(&records[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
