package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/linguamate-backend/api/controllers"
	subscriptioncontrollers "github.com/angelmondragon/linguamate-backend/api/controllers/subscriptions"
	usagecontrollers "github.com/angelmondragon/linguamate-backend/api/controllers/usage"
	webhookcontrollers "github.com/angelmondragon/linguamate-backend/api/controllers/webhooks"
	"github.com/angelmondragon/linguamate-backend/api/middleware"
	subscriptionsvc "github.com/angelmondragon/linguamate-backend/internal/subscriptions"
	"github.com/angelmondragon/linguamate-backend/pkg/config"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
	"github.com/angelmondragon/linguamate-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	verifier middleware.TokenVerifier,
	usageGuard usagecontrollers.Guard,
	usageSummaries usagecontrollers.Summarizer,
	subscriptionsService subscriptionsvc.Service,
	profileService controllers.ProfileService,
	webhookService webhookcontrollers.RevenueCatWebhookService,
	webhookGuard webhookcontrollers.RevenueCatWebhookGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	apiPolicy := middleware.NewRateLimitPolicy(
		"api",
		cfg.RateLimit.Window,
		cfg.RateLimit.PerIP,
		cfg.RateLimit.PerUser,
	)

	readiness := map[string]controllers.Pinger{"db": dbP}
	var (
		limiter middleware.RateLimitStore
		replays middleware.IdempotencyStore
	)
	if redisClient != nil {
		readiness["redis"] = redisClient
		limiter = redisClient
		replays = redisClient
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/revenuecat", webhookcontrollers.RevenueCatWebhook(webhookService, cfg.RevenueCat.WebhookAuth, webhookGuard, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(verifier, logg))
		r.Use(middleware.RateLimit(apiPolicy, limiter, logg))

		r.Route("/v1/usage", func(r chi.Router) {
			r.Post("/check", usagecontrollers.UsageCheck(usageGuard, logg))
			r.With(middleware.Idempotency(replays, cfg.Usage.IdempotencyTTL, logg)).
				Post("/record", usagecontrollers.UsageRecord(usageGuard, logg))
			r.Get("/today", usagecontrollers.UsageToday(usageGuard, usageSummaries, logg))
		})

		r.Route("/v1/subscription", func(r chi.Router) {
			r.Get("/", subscriptioncontrollers.SubscriptionFetch(subscriptionsService, logg))
			r.Get("/tier", subscriptioncontrollers.SubscriptionTier(subscriptionsService, logg))
			r.Get("/history", subscriptioncontrollers.SubscriptionHistory(subscriptionsService, logg))
			r.Post("/sync", subscriptioncontrollers.SubscriptionSync(subscriptionsService, subscriptionsService, logg))
		})

		r.Route("/v1/users", func(r chi.Router) {
			r.Get("/me", controllers.UserMe(profileService, logg))
			r.Put("/me", controllers.UserMeUpdate(profileService, logg))
		})
	})

	return r
}
