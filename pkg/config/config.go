package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Auth         AuthConfig
	RevenueCat   RevenueCatConfig
	Usage        UsageConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LINGUAMATE_APP_ENV" required:"true"`
	Port         string `envconfig:"LINGUAMATE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LINGUAMATE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"LINGUAMATE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"LINGUAMATE_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"LINGUAMATE_CORS_ORIGINS" default:"http://localhost:8081,http://localhost:19006"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LINGUAMATE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"LINGUAMATE_DB_DSN"`

	LegacyHost     string `envconfig:"LINGUAMATE_DB_HOST"`
	LegacyPort     int    `envconfig:"LINGUAMATE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LINGUAMATE_DB_USER"`
	LegacyPassword string `envconfig:"LINGUAMATE_DB_PASSWORD"`
	LegacyName     string `envconfig:"LINGUAMATE_DB_NAME"`
	LegacySSLMode  string `envconfig:"LINGUAMATE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LINGUAMATE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LINGUAMATE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LINGUAMATE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LINGUAMATE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"LINGUAMATE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LINGUAMATE_REDIS_URL"`
	Address      string        `envconfig:"LINGUAMATE_REDIS_ADDR"`
	Password     string        `envconfig:"LINGUAMATE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LINGUAMATE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LINGUAMATE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LINGUAMATE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LINGUAMATE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LINGUAMATE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LINGUAMATE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig describes how session tokens minted by the identity provider are verified.
type AuthConfig struct {
	PublicKeyPEM string        `envconfig:"LINGUAMATE_AUTH_PUBLIC_KEY_PEM" required:"true"`
	Issuer       string        `envconfig:"LINGUAMATE_AUTH_ISSUER"`
	ClockSkew    time.Duration `envconfig:"LINGUAMATE_AUTH_CLOCK_SKEW" default:"30s"`
}

type RevenueCatConfig struct {
	APIKey        string        `envconfig:"LINGUAMATE_REVENUECAT_API_KEY"`
	BaseURL       string        `envconfig:"LINGUAMATE_REVENUECAT_BASE_URL" default:"https://api.revenuecat.com/v1"`
	EntitlementID string        `envconfig:"LINGUAMATE_REVENUECAT_ENTITLEMENT_ID" default:"LinguaMate Pro"`
	WebhookAuth   string        `envconfig:"LINGUAMATE_REVENUECAT_WEBHOOK_AUTH"`
	WebhookTTL    time.Duration `envconfig:"LINGUAMATE_REVENUECAT_WEBHOOK_TTL" default:"72h"`
	Timeout       time.Duration `envconfig:"LINGUAMATE_REVENUECAT_TIMEOUT" default:"10s"`
}

// Enabled reports whether the billing provider can be queried server side.
func (r RevenueCatConfig) Enabled() bool {
	return strings.TrimSpace(r.APIKey) != ""
}

type UsageConfig struct {
	DefaultPeriodDays       int           `envconfig:"LINGUAMATE_USAGE_DEFAULT_PERIOD_DAYS" default:"30"`
	SubscriptionLookupLimit int           `envconfig:"LINGUAMATE_USAGE_SUBSCRIPTION_LOOKUP_LIMIT" default:"10"`
	IdempotencyTTL          time.Duration `envconfig:"LINGUAMATE_USAGE_IDEMPOTENCY_TTL" default:"24h"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"LINGUAMATE_CRON_INTERVAL" default:"6h"`
	RefreshLimit    int           `envconfig:"LINGUAMATE_CRON_REFRESH_LIMIT" default:"250"`
	RefreshLookback time.Duration `envconfig:"LINGUAMATE_CRON_REFRESH_LOOKBACK" default:"168h"`
	JobTimeout      time.Duration `envconfig:"LINGUAMATE_CRON_JOB_TIMEOUT" default:"20m"`
	LockTTL         time.Duration `envconfig:"LINGUAMATE_CRON_LOCK_TTL" default:"30m"`
	// MetricsAddr exposes /metrics from the worker when set, e.g. ":9102".
	MetricsAddr string `envconfig:"LINGUAMATE_CRON_METRICS_ADDR"`
}

// RateLimitConfig throttles API callers per fixed window. Zero limits disable
// the corresponding counter.
type RateLimitConfig struct {
	Window  time.Duration `envconfig:"LINGUAMATE_RATE_LIMIT_WINDOW" default:"1m"`
	PerUser int           `envconfig:"LINGUAMATE_RATE_LIMIT_PER_USER" default:"120"`
	PerIP   int           `envconfig:"LINGUAMATE_RATE_LIMIT_PER_IP" default:"600"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LINGUAMATE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
