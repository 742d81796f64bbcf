package config

const EnvPrefix = "QUOTEDESK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv     = "QUOTEDESK_APP_ENV"
	EnvPort       = "QUOTEDESK_APP_PORT"
	EnvDBDSN      = "QUOTEDESK_DB_DSN"
	EnvDBDriver   = "QUOTEDESK_DB_DRIVER"
	EnvDBHost     = "QUOTEDESK_DB_HOST"
	EnvDBUser     = "QUOTEDESK_DB_USER"
	EnvDBName     = "QUOTEDESK_DB_NAME"
	EnvDBPassword = "QUOTEDESK_DB_PASSWORD"
	EnvRedisURL   = "QUOTEDESK_REDIS_URL"
	EnvJWTSecret  = "QUOTEDESK_JWT_SECRET"
	EnvJWTIssuer  = "QUOTEDESK_JWT_ISSUER"

	EnvNotificationTimeout = "QUOTEDESK_NOTIFICATION_TIMEOUT"
	EnvWebhookURL          = "QUOTEDESK_AUTOMATION_WEBHOOK_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
