package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App             AppConfig
	DB              DBConfig
	Redis           RedisConfig
	JWT             JWTConfig
	FeatureFlags    FeatureFlagsConfig
	Pricing         PricingConfig
	RedeemRateLimit RedeemRateLimitConfig
	Idempotency     IdempotencyConfig
	GCP             GCPConfig
	PubSub          PubSubConfig
	Outbox          OutboxConfig
	Cron            CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"BLENDPOINT_APP_ENV" required:"true"`
	Port         string   `envconfig:"BLENDPOINT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"BLENDPOINT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"BLENDPOINT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"BLENDPOINT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BLENDPOINT_DB_DSN"`
	Driver string `envconfig:"BLENDPOINT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BLENDPOINT_DB_HOST"`
	LegacyPort     int    `envconfig:"BLENDPOINT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BLENDPOINT_DB_USER"`
	LegacyPassword string `envconfig:"BLENDPOINT_DB_PASSWORD"`
	LegacyName     string `envconfig:"BLENDPOINT_DB_NAME"`
	LegacySSLMode  string `envconfig:"BLENDPOINT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BLENDPOINT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BLENDPOINT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BLENDPOINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BLENDPOINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery logs statements slower than this; zero silences GORM.
	SlowQuery time.Duration `envconfig:"BLENDPOINT_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BLENDPOINT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BLENDPOINT_REDIS_ADDR"`
	Password     string        `envconfig:"BLENDPOINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"BLENDPOINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BLENDPOINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BLENDPOINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BLENDPOINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BLENDPOINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BLENDPOINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BLENDPOINT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BLENDPOINT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BLENDPOINT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BLENDPOINT_AUTO_MIGRATE" default:"false"`
}

// PricingConfig carries the flat checkout tax rate and the loyalty earn rate.
type PricingConfig struct {
	TaxRate       string `envconfig:"BLENDPOINT_PRICING_TAX_RATE" default:"0"`
	PointsPerUnit string `envconfig:"BLENDPOINT_LOYALTY_POINTS_PER_UNIT" default:"0"`
}

// TaxRateDecimal returns the parsed tax rate (0.0825 means 8.25%).
func (p PricingConfig) TaxRateDecimal() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(p.TaxRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

// PointsPerUnitDecimal returns how many points each currency unit of an order earns.
func (p PricingConfig) PointsPerUnitDecimal() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(p.PointsPerUnit))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (p PricingConfig) validate() error {
	for env, raw := range map[string]string{EnvTaxRate: p.TaxRate, EnvPointsPerUnit: p.PointsPerUnit} {
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s must be a decimal: %w", env, err)
		}
		if value.IsNegative() {
			return fmt.Errorf("%s must not be negative", env)
		}
	}
	if p.TaxRateDecimal().GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be a fraction below 1", EnvTaxRate)
	}
	return nil
}

type RedeemRateLimitConfig struct {
	Window        time.Duration `envconfig:"BLENDPOINT_REDEEM_RATE_LIMIT_WINDOW" default:"1m"`
	CustomerLimit int           `envconfig:"BLENDPOINT_REDEEM_RATE_LIMIT_CUSTOMER_LIMIT" default:"10"`
	IPLimit       int           `envconfig:"BLENDPOINT_REDEEM_RATE_LIMIT_IP_LIMIT" default:"60"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"BLENDPOINT_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"BLENDPOINT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"BLENDPOINT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	LoyaltyTopic string `envconfig:"BLENDPOINT_PUBSUB_LOYALTY_TOPIC" default:"blendpoint-loyalty-events"`
	// OrderedDelivery keys messages by aggregate so one wallet's events arrive in order.
	OrderedDelivery bool `envconfig:"BLENDPOINT_PUBSUB_ORDERED_DELIVERY" default:"true"`
	// CreateTopic lets dev and emulator setups create a missing topic at boot.
	CreateTopic bool `envconfig:"BLENDPOINT_PUBSUB_CREATE_TOPIC" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"BLENDPOINT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"BLENDPOINT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"BLENDPOINT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	LockTTL        time.Duration `envconfig:"BLENDPOINT_OUTBOX_LOCK_TTL" default:"30s"`
}

// CronConfig drives the background maintenance worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"BLENDPOINT_CRON_INTERVAL" default:"15m"`
	LockTTL             time.Duration `envconfig:"BLENDPOINT_CRON_LOCK_TTL" default:"10m"`
	CartIdleTTL         time.Duration `envconfig:"BLENDPOINT_CART_IDLE_TTL" default:"72h"`
	CartSweepBatch      int           `envconfig:"BLENDPOINT_CART_SWEEP_BATCH" default:"200"`
	OutboxRetentionDays int           `envconfig:"BLENDPOINT_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxPruneBatch    int           `envconfig:"BLENDPOINT_OUTBOX_PRUNE_BATCH" default:"500"`
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
