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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	APIKey       APIKeyConfig
	Quota        QuotaConfig
	Fulfillment  FulfillmentConfig
	Webhooks     WebhookConfig
	HTTP         HTTPConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Fulfillment.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"INKROUTE_APP_ENV" required:"true"`
	Port         string `envconfig:"INKROUTE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"INKROUTE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"INKROUTE_LOG_WARN_STACK" default:"false"`
	PublicURL    string `envconfig:"INKROUTE_PUBLIC_URL" default:"http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type DBConfig struct {
	DSN    string `envconfig:"INKROUTE_DB_DSN"`
	Driver string `envconfig:"INKROUTE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"INKROUTE_DB_HOST"`
	LegacyPort     int    `envconfig:"INKROUTE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"INKROUTE_DB_USER"`
	LegacyPassword string `envconfig:"INKROUTE_DB_PASSWORD"`
	LegacyName     string `envconfig:"INKROUTE_DB_NAME"`
	LegacySSLMode  string `envconfig:"INKROUTE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"INKROUTE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"INKROUTE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"INKROUTE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"INKROUTE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"INKROUTE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"INKROUTE_REDIS_ADDR"`
	Password     string        `envconfig:"INKROUTE_REDIS_PASSWORD"`
	DB           int           `envconfig:"INKROUTE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"INKROUTE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"INKROUTE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"INKROUTE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"INKROUTE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"INKROUTE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"INKROUTE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"INKROUTE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"INKROUTE_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenHours int    `envconfig:"INKROUTE_REFRESH_TOKEN_TTL_HOURS" default:"720"`
}

func (j JWTConfig) TTL() time.Duration {
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

func (j JWTConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(j.RefreshTokenHours) * time.Hour
}

// APIKeyConfig holds the argon2id parameters used to hash store API keys.
type APIKeyConfig struct {
	ArgonMemoryKB    int `envconfig:"INKROUTE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"INKROUTE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"INKROUTE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"INKROUTE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"INKROUTE_ARGON_KEY_LEN" default:"32"`
}

type QuotaConfig struct {
	WarningThresholdPct int `envconfig:"INKROUTE_QUOTA_WARNING_THRESHOLD_PCT" default:"80"`
}

type FulfillmentConfig struct {
	FlatShippingCents int64         `envconfig:"INKROUTE_FLAT_SHIPPING_CENTS" default:"500"`
	MaxJobAttempts    int           `envconfig:"INKROUTE_FULFILLMENT_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay    time.Duration `envconfig:"INKROUTE_FULFILLMENT_RETRY_BASE_DELAY" default:"1m"`
	RetryMaxDelay     time.Duration `envconfig:"INKROUTE_FULFILLMENT_RETRY_MAX_DELAY" default:"1h"`
	DispatchBatchSize int           `envconfig:"INKROUTE_FULFILLMENT_DISPATCH_BATCH" default:"50"`
	DefaultStrategy   string        `envconfig:"INKROUTE_PROVIDER_STRATEGY" default:"balanced"`
}

func (f FulfillmentConfig) validate() error {
	if f.FlatShippingCents < 0 {
		return fmt.Errorf("%s must not be negative", EnvFlatShipping)
	}
	if f.MaxJobAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvFulfillmentMaxAttempts)
	}
	return nil
}

type WebhookConfig struct {
	DedupeTTL         time.Duration `envconfig:"INKROUTE_WEBHOOK_DEDUPE_TTL" default:"72h"`
	ShopifySecret     string        `envconfig:"INKROUTE_SHOPIFY_WEBHOOK_SECRET"`
	ShopifyAPIVersion string        `envconfig:"INKROUTE_SHOPIFY_API_VERSION" default:"2024-04"`
	RateLimitPerMin   int           `envconfig:"INKROUTE_WEBHOOK_RATE_LIMIT_PER_MIN" default:"600"`
	AdapterTimeout    time.Duration `envconfig:"INKROUTE_PLATFORM_ADAPTER_TIMEOUT" default:"10s"`
	IdempotencyTTL    time.Duration `envconfig:"INKROUTE_IDEMPOTENCY_TTL" default:"24h"`
	MaxBodyBytes      int64         `envconfig:"INKROUTE_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
}

// HTTPConfig tunes the REST surface: CORS, login throttling and per-caller rate limits.
type HTTPConfig struct {
	CORSOrigins       []string      `envconfig:"INKROUTE_CORS_ORIGINS" default:"http://localhost:3000"`
	LoginWindow       time.Duration `envconfig:"INKROUTE_LOGIN_RATE_WINDOW" default:"15m"`
	LoginIPLimit      int           `envconfig:"INKROUTE_LOGIN_RATE_IP_LIMIT" default:"30"`
	LoginEmailLimit   int           `envconfig:"INKROUTE_LOGIN_RATE_EMAIL_LIMIT" default:"5"`
	RequestsPerMinute int           `envconfig:"INKROUTE_HTTP_RATE_LIMIT_PER_MIN" default:"300"`
	MaxBodyBytes      int64         `envconfig:"INKROUTE_HTTP_MAX_BODY_BYTES" default:"1048576"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"INKROUTE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"INKROUTE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"INKROUTE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic      string `envconfig:"INKROUTE_PUBSUB_ORDERS_TOPIC" default:"ink-order-events"`
	FulfillmentTopic string `envconfig:"INKROUTE_PUBSUB_FULFILLMENT_TOPIC" default:"ink-fulfillment-events"`
	// AlertsSubscription is attached to FulfillmentTopic and feeds the notification worker.
	AlertsSubscription string `envconfig:"INKROUTE_PUBSUB_ALERTS_SUBSCRIPTION" default:"ink-fulfillment-alerts"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"INKROUTE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"INKROUTE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"INKROUTE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval     time.Duration `envconfig:"INKROUTE_CRON_INTERVAL" default:"1m"`
	LockTTL      time.Duration `envconfig:"INKROUTE_CRON_LOCK_TTL" default:"5m"`
	OrphanGrace  time.Duration `envconfig:"INKROUTE_CRON_ORPHAN_GRACE" default:"15m"`
	ReconcileAll bool          `envconfig:"INKROUTE_CRON_RECONCILE_ALL" default:"true"`

	ReconcileEvery        time.Duration `envconfig:"INKROUTE_CRON_RECONCILE_EVERY" default:"1h"`
	CleanupEvery          time.Duration `envconfig:"INKROUTE_CRON_CLEANUP_EVERY" default:"24h"`
	NotificationRetention time.Duration `envconfig:"INKROUTE_NOTIFICATION_RETENTION" default:"720h"`
	OutboxRetention       time.Duration `envconfig:"INKROUTE_OUTBOX_RETENTION" default:"720h"`
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
