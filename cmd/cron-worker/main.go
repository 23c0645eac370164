package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/linguamate-backend/internal/cron"
	"github.com/angelmondragon/linguamate-backend/internal/subscriptions"
	"github.com/angelmondragon/linguamate-backend/internal/users"
	"github.com/angelmondragon/linguamate-backend/pkg/config"
	"github.com/angelmondragon/linguamate-backend/pkg/db"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
	"github.com/angelmondragon/linguamate-backend/pkg/metrics"
	"github.com/angelmondragon/linguamate-backend/pkg/migrate"
	"github.com/angelmondragon/linguamate-backend/pkg/redis"
	"github.com/angelmondragon/linguamate-backend/pkg/revenuecat"
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	boot := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})

	err = run(ctx, cfg, logg, *once)
	stop()
	if err != nil {
		logg.Error(ctx, "cron worker stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// run wires the worker and blocks until ctx ends or a single cycle finishes.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool) error {
	if !cfg.RevenueCat.Enabled() {
		return errors.New("LINGUAMATE_REVENUECAT_API_KEY is required for reconciliation")
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	billing, err := revenuecat.NewClient(cfg.RevenueCat.APIKey,
		revenuecat.WithBaseURL(cfg.RevenueCat.BaseURL),
		revenuecat.WithTimeout(cfg.RevenueCat.Timeout),
	)
	if err != nil {
		return fmt.Errorf("revenuecat client: %w", err)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	usageMetrics := metrics.NewUsageMetrics(prometheus.DefaultRegisterer)

	userService, err := users.NewService(users.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return fmt.Errorf("user service: %w", err)
	}

	subscriptionRepo := subscriptions.NewRepository(dbClient.DB())
	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              subscriptionRepo,
		Billing:           billing,
		TierSyncer:        userService,
		EntitlementID:     cfg.RevenueCat.EntitlementID,
		DefaultPeriodDays: cfg.Usage.DefaultPeriodDays,
		LookupLimit:       cfg.Usage.SubscriptionLookupLimit,
		Logger:            logg,
		Metrics:           usageMetrics,
	})
	if err != nil {
		return fmt.Errorf("subscription service: %w", err)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	reconcileJob, err := cron.NewSubscriptionReconcileJob(cron.SubscriptionReconcileJobParams{
		Logger:        logg,
		Repo:          subscriptionRepo,
		Subscriptions: subscriptionService,
		Metrics:       cronMetrics,
		Limit:         cfg.Cron.RefreshLimit,
		Lookback:      cfg.Cron.RefreshLookback,
	})
	if err != nil {
		return fmt.Errorf("reconcile job: %w", err)
	}

	registry := cron.NewRegistry()
	if err := registry.Register(reconcileJob); err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    cronMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	if once {
		logg.Info(ctx, "running single cron cycle")
		return service.RunOnce(ctx)
	}

	if cfg.Cron.MetricsAddr != "" {
		srv := metricsServer(cfg.Cron.MetricsAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server failed", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func metricsServer(addr string) *http.Server {
	r := chi.NewRouter()
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
