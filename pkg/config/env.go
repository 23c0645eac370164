package config

// EnvPrefix is handed to envconfig. Fields carry their full key in the
// envconfig tag, which envconfig falls back to when the prefixed key is unset.
const EnvPrefix = "LINGUAMATE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "LINGUAMATE_APP_ENV"
	EnvPort     = "LINGUAMATE_APP_PORT"
	EnvLogLevel = "LINGUAMATE_LOG_LEVEL"

	EnvDBDSN  = "LINGUAMATE_DB_DSN"
	EnvDBHost = "LINGUAMATE_DB_HOST"
	EnvDBUser = "LINGUAMATE_DB_USER"
	EnvDBName = "LINGUAMATE_DB_NAME"

	EnvRedisURL = "LINGUAMATE_REDIS_URL"

	EnvAuthPublicKey = "LINGUAMATE_AUTH_PUBLIC_KEY_PEM"
	EnvAuthIssuer    = "LINGUAMATE_AUTH_ISSUER"

	EnvRevenueCatAPIKey       = "LINGUAMATE_REVENUECAT_API_KEY"
	EnvRevenueCatEntitlement  = "LINGUAMATE_REVENUECAT_ENTITLEMENT_ID"
	EnvRevenueCatWebhookToken = "LINGUAMATE_REVENUECAT_WEBHOOK_AUTH"

	EnvCronInterval = "LINGUAMATE_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
