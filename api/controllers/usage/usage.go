package usage

import (
	"context"
	"net/http"

	"github.com/angelmondragon/linguamate-backend/api/middleware"
	"github.com/angelmondragon/linguamate-backend/api/responses"
	"github.com/angelmondragon/linguamate-backend/api/validators"
	"github.com/angelmondragon/linguamate-backend/internal/guard"
	"github.com/angelmondragon/linguamate-backend/internal/quota"
	usagesvc "github.com/angelmondragon/linguamate-backend/internal/usage"
	"github.com/angelmondragon/linguamate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
)

// Guard is the quota gate shared by the usage endpoints.
type Guard interface {
	CanPerformAction(ctx context.Context, userID string, delta quota.Delta) (quota.Verdict, error)
	RecordUsage(ctx context.Context, userID string, delta quota.Delta) (*guard.Recorded, error)
	ResolveTier(ctx context.Context, userID string) (enums.SubscriptionTier, error)
}

// Summarizer reports today's counters next to the tier's caps.
type Summarizer interface {
	Summary(ctx context.Context, userID string, tier enums.SubscriptionTier) (*usagesvc.Summary, error)
}

// UsageCheck answers whether the requested amounts still fit in today's quota.
// A denial is a normal 200 response with allowed=false.
func UsageCheck(g Guard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage guard unavailable"))
			return
		}
		var delta quota.Delta
		if err := validators.DecodeJSONBody(r, &delta); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		verdict, err := g.CanPerformAction(r.Context(), middleware.UserIDFromContext(r.Context()), delta)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, verdict)
	}
}

// UsageRecord adds completed consumption to today's counters and returns the
// summary of the row it wrote. Nothing after the write can fail the request,
// so an idempotent retry never records twice.
func UsageRecord(g Guard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage guard unavailable"))
			return
		}
		var delta quota.Delta
		if err := validators.DecodeJSONBody(r, &delta); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if delta.IsEmpty() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "at least one of conversations, characters or minutes is required"))
			return
		}
		recorded, err := g.RecordUsage(r.Context(), middleware.UserIDFromContext(r.Context()), delta)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if recorded == nil || recorded.Usage == nil {
			responses.WriteSuccess(w, nil)
			return
		}
		responses.WriteSuccess(w, usagesvc.SummaryOf(recorded.Usage, recorded.Tier))
	}
}

func UsageToday(g Guard, summaries Summarizer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g == nil || summaries == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage guard unavailable"))
			return
		}
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "User not authenticated"))
			return
		}
		tier, err := g.ResolveTier(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := summaries.Summary(r.Context(), userID, tier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
