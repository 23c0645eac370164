package webhooks

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/linguamate-backend/api/responses"
	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
	"github.com/angelmondragon/linguamate-backend/pkg/revenuecat"
)

const maxWebhookBody = 1 << 20

type RevenueCatWebhookService interface {
	HandleEvent(ctx context.Context, event *revenuecat.WebhookEvent) error
}

// RevenueCatWebhookGuard dedupes deliveries by event id. Claim reports
// whether the delivery is the first one.
type RevenueCatWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// RevenueCatWebhook handles subscription lifecycle events. RevenueCat sends
// the configured shared secret verbatim in the Authorization header.
func RevenueCatWebhook(svc RevenueCatWebhookService, secret string, guard RevenueCatWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}
		if strings.TrimSpace(secret) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured"))
			return
		}
		if !authorized(r.Header.Get("Authorization"), secret) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook authorization"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		event, err := revenuecat.ParseWebhook(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}
		ctx = logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": event.Type})

		first, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook event"))
			return
		}
		if !first {
			logg.Info(ctx, "revenuecat.webhook.duplicate")
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if relErr := guard.Release(ctx, event.ID); relErr != nil {
				logg.Error(ctx, "revenuecat.webhook.release_failed", relErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}

func authorized(header, secret string) bool {
	header = strings.TrimSpace(header)
	if subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1 {
		return true
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
