package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/linguamate-backend/api/routes"
	"github.com/angelmondragon/linguamate-backend/internal/guard"
	"github.com/angelmondragon/linguamate-backend/internal/subscriptions"
	"github.com/angelmondragon/linguamate-backend/internal/usage"
	"github.com/angelmondragon/linguamate-backend/internal/users"
	revenuecatwebhook "github.com/angelmondragon/linguamate-backend/internal/webhooks/revenuecat"
	pkgAuth "github.com/angelmondragon/linguamate-backend/pkg/auth"
	"github.com/angelmondragon/linguamate-backend/pkg/config"
	"github.com/angelmondragon/linguamate-backend/pkg/db"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
	"github.com/angelmondragon/linguamate-backend/pkg/metrics"
	"github.com/angelmondragon/linguamate-backend/pkg/migrate"
	"github.com/angelmondragon/linguamate-backend/pkg/redis"
	"github.com/angelmondragon/linguamate-backend/pkg/revenuecat"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	verifier, err := pkgAuth.NewVerifier(cfg.Auth)
	if err != nil {
		logg.Error(context.Background(), "failed to create token verifier", err)
		os.Exit(1)
	}

	usageMetrics := metrics.NewUsageMetrics(prometheus.DefaultRegisterer)

	userService, err := users.NewService(users.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create user service", err)
		os.Exit(1)
	}

	billing, err := newBillingSource(cfg.RevenueCat)
	if err != nil {
		logg.Error(context.Background(), "failed to create revenuecat client", err)
		os.Exit(1)
	}
	if billing == nil {
		logg.Warn(context.Background(), "revenuecat api key not set, billing sync disabled")
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              subscriptions.NewRepository(dbClient.DB()),
		Billing:           billing,
		TierSyncer:        userService,
		EntitlementID:     cfg.RevenueCat.EntitlementID,
		DefaultPeriodDays: cfg.Usage.DefaultPeriodDays,
		LookupLimit:       cfg.Usage.SubscriptionLookupLimit,
		Logger:            logg,
		Metrics:           usageMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	ledger, err := usage.NewService(usage.ServiceParams{
		Repo:    usage.NewRepository(dbClient.DB()),
		Logger:  logg,
		Metrics: usageMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage service", err)
		os.Exit(1)
	}

	usageGuard, err := guard.New(guard.Params{
		Subscriptions: subscriptionService,
		Ledger:        ledger,
		Lifetime:      userService,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create usage guard", err)
		os.Exit(1)
	}

	webhookService, err := revenuecatwebhook.NewService(revenuecatwebhook.ServiceParams{
		Subscriptions: subscriptionService,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create revenuecat webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := revenuecatwebhook.NewEventDeduper(redisClient, cfg.RevenueCat.WebhookTTL, "revenuecat")
	if err != nil {
		logg.Error(context.Background(), "failed to create revenuecat webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			prometheus.DefaultGatherer,
			verifier,
			usageGuard,
			ledger,
			subscriptionService,
			userService,
			webhookService,
			webhookGuard,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

// newBillingSource returns nil when no RevenueCat key is configured so the
// service degrades to stored records only.
func newBillingSource(cfg config.RevenueCatConfig) (subscriptions.EntitlementSource, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := revenuecat.NewClient(cfg.APIKey,
		revenuecat.WithBaseURL(cfg.BaseURL),
		revenuecat.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}
