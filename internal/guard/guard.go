// Package guard is the entry point callers use before and after consuming
// conversation, character or minute quota.
package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/linguamate-backend/internal/quota"
	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	"github.com/angelmondragon/linguamate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
)

const notAuthenticated = "User not authenticated"

// SubscriptionResolver answers which tier a user is on.
type SubscriptionResolver interface {
	ResolveTier(ctx context.Context, userID string) (enums.SubscriptionTier, error)
	GetOrCreate(ctx context.Context, userID string) (*models.Subscription, error)
}

// Ledger checks and records daily consumption.
type Ledger interface {
	CheckLimit(ctx context.Context, userID string, tier enums.SubscriptionTier, delta quota.Delta) (quota.Verdict, error)
	Increment(ctx context.Context, userID string, tier enums.SubscriptionTier, delta quota.Delta) (*models.DailyUsage, error)
}

// LifetimeRecorder keeps the per-user running totals.
type LifetimeRecorder interface {
	AddLifetimeUsage(ctx context.Context, externalID string, delta quota.Counters) error
}

// Recorded is what RecordUsage wrote: the tier the delta was charged to and
// today's row after the increment.
type Recorded struct {
	Tier  enums.SubscriptionTier
	Usage *models.DailyUsage
}

// Params wires the guard. Lifetime is optional.
type Params struct {
	Subscriptions SubscriptionResolver
	Ledger        Ledger
	Lifetime      LifetimeRecorder
	Logger        *logger.Logger
}

// Guard composes tier resolution with the daily ledger.
type Guard struct {
	subs     SubscriptionResolver
	ledger   Ledger
	lifetime LifetimeRecorder
	logg     *logger.Logger
}

// New builds a Guard.
func New(params Params) (*Guard, error) {
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription resolver required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("usage ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Guard{
		subs:     params.Subscriptions,
		ledger:   params.Ledger,
		lifetime: params.Lifetime,
		logg:     params.Logger,
	}, nil
}

// CanPerformAction reports whether delta fits in what is left of today's
// quota. Anonymous callers are denied rather than failed.
func (g *Guard) CanPerformAction(ctx context.Context, userID string, delta quota.Delta) (quota.Verdict, error) {
	if strings.TrimSpace(userID) == "" {
		return quota.Denied(notAuthenticated, ""), nil
	}
	tier, err := g.subs.ResolveTier(ctx, userID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			return quota.Denied(notAuthenticated, ""), nil
		}
		return quota.Verdict{}, err
	}
	return g.ledger.CheckLimit(ctx, userID, tier, delta)
}

// RecordUsage adds delta to today's counters and the lifetime totals. It
// records unconditionally; callers check first. Lifetime failures are logged
// and swallowed.
func (g *Guard) RecordUsage(ctx context.Context, userID string, delta quota.Delta) (*Recorded, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, notAuthenticated)
	}
	tier, err := g.subs.ResolveTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	updated, err := g.ledger.Increment(ctx, userID, tier, delta)
	if err != nil {
		return nil, err
	}
	recorded := &Recorded{Tier: tier, Usage: updated}
	if g.lifetime == nil {
		return recorded, nil
	}
	if err := g.lifetime.AddLifetimeUsage(ctx, userID, delta.Counters()); err != nil {
		logCtx := g.logg.WithFields(ctx, map[string]any{"user_id": userID, "tier": tier})
		g.logg.Error(logCtx, "update lifetime totals failed", err)
	}
	return recorded, nil
}

func (g *Guard) ResolveTier(ctx context.Context, userID string) (enums.SubscriptionTier, error) {
	return g.subs.ResolveTier(ctx, userID)
}

func (g *Guard) GetOrCreateSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return g.subs.GetOrCreate(ctx, userID)
}

// Run checks delta, runs fn and records delta once fn succeeds. A denial
// returns a rate limit error carrying the verdict reason and fn is skipped;
// anonymous callers get an unauthorized error instead.
func (g *Guard) Run(ctx context.Context, userID string, delta quota.Delta, fn func(ctx context.Context) error) error {
	if strings.TrimSpace(userID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, notAuthenticated)
	}
	verdict, err := g.CanPerformAction(ctx, userID, delta)
	if err != nil {
		return err
	}
	if !verdict.Allowed {
		return DenialError(verdict)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	_, err = g.RecordUsage(ctx, userID, delta)
	return err
}

// DenialError converts a denied verdict into the error surfaced to clients.
// The not-authenticated denial maps to unauthorized, everything else to a
// rate limit.
func DenialError(verdict quota.Verdict) error {
	if verdict.Reason == notAuthenticated {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, notAuthenticated)
	}
	reason := verdict.Reason
	if reason == "" {
		reason = "Usage limit reached"
	}
	details := map[string]any{}
	if verdict.Dimension != "" {
		details["dimension"] = verdict.Dimension
	}
	return pkgerrors.New(pkgerrors.CodeRateLimit, reason).WithDetails(details)
}
