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
	FeatureFlags FeatureFlagsConfig
	IDs          IDConfig
	Orders       OrdersConfig
	Payments     PaymentsConfig
	Delivery     DeliveryConfig
	Admin        AdminConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
	Eventing     EventingConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KEYSHOP_APP_ENV" required:"true"`
	Port         string `envconfig:"KEYSHOP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KEYSHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KEYSHOP_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"KEYSHOP_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	return splitList(a.CORSOrigins)
}

type ServiceConfig struct {
	Kind string `envconfig:"KEYSHOP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"KEYSHOP_DB_DSN"`
	Driver string `envconfig:"KEYSHOP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KEYSHOP_DB_HOST"`
	LegacyPort     int    `envconfig:"KEYSHOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KEYSHOP_DB_USER"`
	LegacyPassword string `envconfig:"KEYSHOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"KEYSHOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"KEYSHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KEYSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KEYSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KEYSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KEYSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"KEYSHOP_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KEYSHOP_REDIS_URL"`
	Address      string        `envconfig:"KEYSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"KEYSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"KEYSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KEYSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KEYSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KEYSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KEYSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KEYSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"KEYSHOP_AUTO_MIGRATE" default:"false"`
}

// IDConfig configures the snowflake node used for order codes.
type IDConfig struct {
	NodeID int64 `envconfig:"KEYSHOP_NODE_ID" default:"1"`
}

type OrdersConfig struct {
	ReservationWindow time.Duration `envconfig:"KEYSHOP_ORDER_RESERVATION_WINDOW" default:"30m"`
	MaxLines          int           `envconfig:"KEYSHOP_ORDER_MAX_LINES" default:"20"`
	MaxQuantity       int           `envconfig:"KEYSHOP_ORDER_MAX_QUANTITY" default:"50"`
}

type PaymentsConfig struct {
	FeedURL       string        `envconfig:"KEYSHOP_PAYMENTS_FEED_URL"`
	FeedToken     string        `envconfig:"KEYSHOP_PAYMENTS_FEED_TOKEN"`
	FeedLimit     int           `envconfig:"KEYSHOP_PAYMENTS_FEED_LIMIT" default:"100"`
	FeedTimeout   time.Duration `envconfig:"KEYSHOP_PAYMENTS_FEED_TIMEOUT" default:"10s"`
	WebhookSecret string        `envconfig:"KEYSHOP_PAYMENTS_WEBHOOK_SECRET" required:"true"`
	WebhookTTL    time.Duration `envconfig:"KEYSHOP_PAYMENTS_WEBHOOK_DEDUP_TTL" default:"72h"`

	AmountTolerance float64       `envconfig:"KEYSHOP_PAYMENTS_AMOUNT_TOLERANCE" default:"0.95"`
	Lookback        time.Duration `envconfig:"KEYSHOP_PAYMENTS_LOOKBACK" default:"180m"`
	ClockSkew       time.Duration `envconfig:"KEYSHOP_PAYMENTS_CLOCK_SKEW" default:"10m"`
	PollGrace       time.Duration `envconfig:"KEYSHOP_PAYMENTS_POLL_GRACE" default:"2m"`
	PollMaxAge      time.Duration `envconfig:"KEYSHOP_PAYMENTS_POLL_MAX_AGE" default:"24h"`

	BankName      string `envconfig:"KEYSHOP_PAYMENTS_BANK_NAME"`
	AccountNumber string `envconfig:"KEYSHOP_PAYMENTS_ACCOUNT_NUMBER"`
	AccountHolder string `envconfig:"KEYSHOP_PAYMENTS_ACCOUNT_HOLDER"`
}

type DeliveryConfig struct {
	Secret       string `envconfig:"KEYSHOP_DELIVERY_SECRET" required:"true"`
	ValidityDays int    `envconfig:"KEYSHOP_DELIVERY_TOKEN_DAYS" default:"7"`
}

type AdminConfig struct {
	JWTSecret          string `envconfig:"KEYSHOP_ADMIN_JWT_SECRET"`
	JWTIssuer          string `envconfig:"KEYSHOP_ADMIN_JWT_ISSUER" default:"keyshop"`
	JWTExpirationMins  int    `envconfig:"KEYSHOP_ADMIN_JWT_EXPIRATION_MINUTES" default:"60"`
	OperatorKeyHash    string `envconfig:"KEYSHOP_ADMIN_OPERATOR_KEY_HASH"`
	OperatorArgonMemKB int    `envconfig:"KEYSHOP_ADMIN_ARGON_MEMORY_KB" default:"65536"`
}

// Enabled reports whether the admin surface has the secrets it needs.
func (a AdminConfig) Enabled() bool {
	return strings.TrimSpace(a.JWTSecret) != "" && strings.TrimSpace(a.OperatorKeyHash) != ""
}

// TokenTTL returns the admin JWT lifetime.
func (a AdminConfig) TokenTTL() time.Duration {
	if a.JWTExpirationMins <= 0 {
		return time.Hour
	}
	return time.Duration(a.JWTExpirationMins) * time.Minute
}

type RateLimitConfig struct {
	OrdersWindow     time.Duration `envconfig:"KEYSHOP_RATE_LIMIT_ORDERS_WINDOW" default:"10m"`
	OrdersIPLimit    int           `envconfig:"KEYSHOP_RATE_LIMIT_ORDERS_IP_LIMIT" default:"20"`
	OrdersEmailLimit int           `envconfig:"KEYSHOP_RATE_LIMIT_ORDERS_EMAIL_LIMIT" default:"5"`
	CheckWindow      time.Duration `envconfig:"KEYSHOP_RATE_LIMIT_CHECK_WINDOW" default:"1m"`
	CheckIPLimit     int           `envconfig:"KEYSHOP_RATE_LIMIT_CHECK_IP_LIMIT" default:"10"`
	CheckEmailLimit  int           `envconfig:"KEYSHOP_RATE_LIMIT_CHECK_EMAIL_LIMIT" default:"6"`
}

// CronConfig sets each job's cadence. The reconciler and the reaper default
// to five minutes; retention only needs a daily pass.
type CronConfig struct {
	Tick           time.Duration `envconfig:"KEYSHOP_CRON_TICK" default:"15s"`
	ReconcileEvery time.Duration `envconfig:"KEYSHOP_CRON_RECONCILE_EVERY" default:"5m"`
	ExpireEvery    time.Duration `envconfig:"KEYSHOP_CRON_EXPIRE_EVERY" default:"5m"`
	RetentionEvery time.Duration `envconfig:"KEYSHOP_CRON_RETENTION_EVERY" default:"24h"`
	LockTTL        time.Duration `envconfig:"KEYSHOP_CRON_LOCK_TTL" default:"4m"`
	MetricsAddr    string        `envconfig:"KEYSHOP_CRON_METRICS_ADDR" default:":9102"`
}

type EventingConfig struct {
	IdempotencyTTL  time.Duration `envconfig:"KEYSHOP_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
	OutboxRetention int           `envconfig:"KEYSHOP_EVENTING_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetention    int           `envconfig:"KEYSHOP_EVENTING_DLQ_RETENTION_DAYS" default:"90"`
}

type OutboxConfig struct {
	Broker         string `envconfig:"KEYSHOP_OUTBOX_BROKER" default:"pubsub"`
	BatchSize      int    `envconfig:"KEYSHOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"KEYSHOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"KEYSHOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	MetricsAddr    string `envconfig:"KEYSHOP_OUTBOX_METRICS_ADDR" default:":9103"`
}

func (o OutboxConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(o.Broker)) {
	case BrokerPubSub, BrokerKafka:
		return nil
	}
	return fmt.Errorf("%s must be one of %s, %s", EnvOutboxBroker, BrokerPubSub, BrokerKafka)
}

// BrokerName returns the normalized broker name.
func (o OutboxConfig) BrokerName() string {
	return strings.ToLower(strings.TrimSpace(o.Broker))
}

type GCPConfig struct {
	ProjectID       string `envconfig:"KEYSHOP_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"KEYSHOP_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"KEYSHOP_PUBSUB_ORDERS_TOPIC" default:"ks-order-events"`
	NotificationTopic string `envconfig:"KEYSHOP_PUBSUB_NOTIFICATION_TOPIC" default:"ks-notification-events"`
}

type KafkaConfig struct {
	Brokers string `envconfig:"KEYSHOP_KAFKA_BROKERS"`
}

// BrokerList splits the comma separated broker list.
func (k KafkaConfig) BrokerList() []string {
	return splitList(k.Brokers)
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

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
