package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/linguamate-backend/internal/subscriptions"
	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
	"github.com/angelmondragon/linguamate-backend/pkg/metrics"
)

const (
	defaultReconcileLimit    = 250
	defaultReconcileLookback = 7 * 24 * time.Hour
)

type reconcileLister interface {
	ListForReconciliation(ctx context.Context, cutoff time.Time, limit int) ([]models.Subscription, error)
}

// SubscriptionReconciler refreshes one stored subscription record.
type SubscriptionReconciler interface {
	Reconcile(ctx context.Context, record *models.Subscription) (subscriptions.ReconcileOutcome, error)
}

// SubscriptionReconcileJobParams configures the subscription reconcile cron job.
type SubscriptionReconcileJobParams struct {
	Logger        *logger.Logger
	Repo          reconcileLister
	Subscriptions SubscriptionReconciler
	Metrics       *metrics.CronJobMetrics
	Limit         int
	Lookback      time.Duration
	Now           func() time.Time
}

// NewSubscriptionReconcileJob builds a reconciliation cron job.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription reconciler required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &subscriptionReconcileJob{
		logg:     params.Logger,
		repo:     params.Repo,
		subs:     params.Subscriptions,
		metrics:  params.Metrics,
		now:      now,
		limit:    limit,
		lookback: lookback,
	}, nil
}

type subscriptionReconcileJob struct {
	logg     *logger.Logger
	repo     reconcileLister
	subs     SubscriptionReconciler
	metrics  *metrics.CronJobMetrics
	now      func() time.Time
	limit    int
	lookback time.Duration
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

// Run walks paid records that are active or lapsed within the lookback and
// reconciles each. Per-record failures are collected and do not stop the loop.
func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	logCtx := j.logg.WithField(ctx, "job", j.Name())
	cutoff := j.now().UTC().Add(-j.lookback)
	candidates, err := j.repo.ListForReconciliation(logCtx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("list subscriptions for reconciliation: %w", err)
	}

	var errs error
	outcomes := map[subscriptions.ReconcileOutcome]int{}
	for i := range candidates {
		record := &candidates[i]
		outcome, err := j.subs.Reconcile(logCtx, record)
		if err != nil {
			j.metrics.IncReconciled("failed")
			errs = multierr.Append(errs, fmt.Errorf("reconcile subscription %s: %w", record.ID, err))
			continue
		}
		j.metrics.IncReconciled(string(outcome))
		outcomes[outcome]++
		if outcome == subscriptions.ReconcileUnsupported {
			j.logg.Warn(logCtx, "billing provider not configured; stopping reconcile")
			break
		}
		if outcome != subscriptions.ReconcileUnchanged {
			recordCtx := j.logg.WithFields(logCtx, map[string]any{
				"subscription_id": record.ID,
				"user_id":         record.UserID,
				"outcome":         outcome,
			})
			j.logg.Debug(recordCtx, "subscription reconciled")
		}
	}

	reportCtx := j.logg.WithFields(logCtx, map[string]any{
		"candidates": len(candidates),
		"synced":     outcomes[subscriptions.ReconcileSynced],
		"expired":    outcomes[subscriptions.ReconcileExpired],
		"recomputed": outcomes[subscriptions.ReconcileRecomputed],
		"unchanged":  outcomes[subscriptions.ReconcileUnchanged],
		"failed":     len(multierr.Errors(errs)),
	})
	j.logg.Info(reportCtx, "subscription reconcile loop complete")
	return errs
}
