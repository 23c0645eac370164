package revenuecatwebhook

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
	"github.com/angelmondragon/linguamate-backend/pkg/revenuecat"
)

// SubscriptionSyncer re-fetches a subscriber snapshot and projects it.
type SubscriptionSyncer interface {
	SyncFromBilling(ctx context.Context, userID string) (*models.Subscription, error)
}

type ServiceParams struct {
	Subscriptions SubscriptionSyncer
	Logger        *logger.Logger
}

// Service turns RevenueCat webhook events into subscription syncs. The event
// body is only used to find affected users; state always comes from a fresh
// subscriber fetch so out-of-order deliveries converge.
type Service struct {
	subs SubscriptionSyncer
	logg *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription syncer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{subs: params.Subscriptions, logg: params.Logger}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *revenuecat.WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
		"product_id": event.ProductID,
	})

	if event.Type == revenuecat.EventTest {
		s.logg.Info(logCtx, "revenuecat test event received")
		return nil
	}

	ids := event.SubscriberIDs()
	if len(ids) == 0 {
		s.logg.Warn(logCtx, "revenuecat event has no identified subscriber")
		return nil
	}

	var errs error
	for _, id := range ids {
		sub, err := s.subs.SyncFromBilling(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sync %s: %w", id, err))
			continue
		}
		userCtx := s.logg.WithUserID(logCtx, id)
		if sub == nil {
			s.logg.Info(userCtx, "revenuecat event processed; no active entitlement")
			continue
		}
		s.logg.Info(s.logg.WithTier(userCtx, sub.Tier.String()), "revenuecat event processed")
	}
	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "sync subscribers from webhook")
	}
	return nil
}
