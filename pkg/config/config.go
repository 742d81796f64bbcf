package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	API           APIConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Outbox        OutboxConfig
	Notifications NotificationsConfig
	Quotes        QuotesConfig
	Cron          CronConfig
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
	Env          string `envconfig:"QUOTEDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"QUOTEDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"QUOTEDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"QUOTEDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"QUOTEDESK_SERVICE_KIND" default:"api"`
}

// APIConfig tunes the HTTP surface. Rate limits apply to quote creation only.
type APIConfig struct {
	CORSOrigins           []string      `envconfig:"QUOTEDESK_CORS_ORIGINS" default:"http://localhost:3000"`
	QuoteCreateWindow     time.Duration `envconfig:"QUOTEDESK_QUOTE_CREATE_WINDOW" default:"1m"`
	QuoteCreateIPLimit    int           `envconfig:"QUOTEDESK_QUOTE_CREATE_IP_LIMIT" default:"30"`
	QuoteCreateActorLimit int           `envconfig:"QUOTEDESK_QUOTE_CREATE_ACTOR_LIMIT" default:"10"`
	ReadHeaderTimeout     time.Duration `envconfig:"QUOTEDESK_READ_HEADER_TIMEOUT" default:"5s"`
	IdleTimeout           time.Duration `envconfig:"QUOTEDESK_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout       time.Duration `envconfig:"QUOTEDESK_SHUTDOWN_TIMEOUT" default:"15s"`
}

type DBConfig struct {
	DSN    string `envconfig:"QUOTEDESK_DB_DSN"`
	Driver string `envconfig:"QUOTEDESK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"QUOTEDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"QUOTEDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"QUOTEDESK_DB_USER"`
	LegacyPassword string `envconfig:"QUOTEDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"QUOTEDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"QUOTEDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"QUOTEDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"QUOTEDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"QUOTEDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"QUOTEDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"QUOTEDESK_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

// IsSQLite reports whether the embedded driver was requested.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"QUOTEDESK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"QUOTEDESK_REDIS_ADDR"`
	Password     string        `envconfig:"QUOTEDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"QUOTEDESK_REDIS_DB" default:"0"`
	Namespace    string        `envconfig:"QUOTEDESK_REDIS_NAMESPACE" default:"qd"`
	PoolSize     int           `envconfig:"QUOTEDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"QUOTEDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"QUOTEDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"QUOTEDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"QUOTEDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies tokens minted by the storefront's session service.
type JWTConfig struct {
	Secret            string `envconfig:"QUOTEDESK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"QUOTEDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"QUOTEDESK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"QUOTEDESK_AUTO_MIGRATE" default:"false"`
}

// EventingConfig tunes delivery claims. A pending claim older than
// ClaimStaleAfter may be taken over by a retry.
type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"QUOTEDESK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	ClaimStaleAfter        time.Duration `envconfig:"QUOTEDESK_EVENTING_CLAIM_STALE_AFTER" default:"30s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"QUOTEDESK_OUTBOX_DISPATCH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"QUOTEDESK_OUTBOX_DISPATCH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"QUOTEDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type NotificationsConfig struct {
	SendgridAPIKey string        `envconfig:"QUOTEDESK_SENDGRID_API_KEY"`
	FromEmail      string        `envconfig:"QUOTEDESK_SENDGRID_FROM_EMAIL"`
	FromName       string        `envconfig:"QUOTEDESK_SENDGRID_FROM_NAME" default:"QuoteDesk"`
	Timeout        time.Duration `envconfig:"QUOTEDESK_NOTIFICATION_TIMEOUT" default:"5s"`

	QuoteCreatedTemplateID    string `envconfig:"QUOTEDESK_TEMPLATE_QUOTE_CREATED"`
	QuoteAuthorizedTemplateID string `envconfig:"QUOTEDESK_TEMPLATE_QUOTE_AUTHORIZED"`
	QuoteRejectedTemplateID   string `envconfig:"QUOTEDESK_TEMPLATE_QUOTE_REJECTED"`
	QuoteCompletedTemplateID  string `envconfig:"QUOTEDESK_TEMPLATE_QUOTE_COMPLETED"`

	WebhookURL    string `envconfig:"QUOTEDESK_AUTOMATION_WEBHOOK_URL"`
	WebhookSecret string `envconfig:"QUOTEDESK_AUTOMATION_WEBHOOK_SECRET"`
}

// EmailEnabled reports whether outbound email has credentials configured.
func (n NotificationsConfig) EmailEnabled() bool {
	return strings.TrimSpace(n.SendgridAPIKey) != "" && strings.TrimSpace(n.FromEmail) != ""
}

// WebhookEnabled reports whether the automation webhook has a target.
func (n NotificationsConfig) WebhookEnabled() bool {
	return strings.TrimSpace(n.WebhookURL) != ""
}

type QuotesConfig struct {
	SequenceName string `envconfig:"QUOTEDESK_QUOTE_SEQUENCE_NAME" default:"quote_number"`
	Currency     string `envconfig:"QUOTEDESK_QUOTE_CURRENCY" default:"USD"`
}

// CronConfig schedules the maintenance jobs run by cmd/cron-worker.
type CronConfig struct {
	Tick                 time.Duration `envconfig:"QUOTEDESK_CRON_TICK" default:"1m"`
	LockTTL              time.Duration `envconfig:"QUOTEDESK_CRON_LOCK_TTL" default:"10m"`
	RetentionEvery       time.Duration `envconfig:"QUOTEDESK_RETENTION_EVERY" default:"24h"`
	OutboxRetention      time.Duration `envconfig:"QUOTEDESK_OUTBOX_RETENTION" default:"720h"`
	DeadLetterRetention  time.Duration `envconfig:"QUOTEDESK_DEAD_LETTER_RETENTION" default:"2160h"`
	OutboxBacklogEvery   time.Duration `envconfig:"QUOTEDESK_OUTBOX_BACKLOG_EVERY" default:"5m"`
	OutboxBacklogWarnAge time.Duration `envconfig:"QUOTEDESK_OUTBOX_BACKLOG_WARN_AGE" default:"15m"`
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
