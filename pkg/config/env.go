package config

const (
	EnvPrefix = "KEYSHOP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	BrokerPubSub = "pubsub"
	BrokerKafka  = "kafka"
)

const (
	EnvAppEnv               = "KEYSHOP_APP_ENV"
	EnvPort                 = "KEYSHOP_APP_PORT"
	EnvDBDSN                = "KEYSHOP_DB_DSN"
	EnvDBHost               = "KEYSHOP_DB_HOST"
	EnvDBUser               = "KEYSHOP_DB_USER"
	EnvDBName               = "KEYSHOP_DB_NAME"
	EnvRedisURL             = "KEYSHOP_REDIS_URL"
	EnvWebhookSecret        = "KEYSHOP_PAYMENTS_WEBHOOK_SECRET"
	EnvDeliverySecret       = "KEYSHOP_DELIVERY_SECRET"
	EnvReservationWindow    = "KEYSHOP_ORDER_RESERVATION_WINDOW"
	EnvOutboxBroker         = "KEYSHOP_OUTBOX_BROKER"
	EnvKafkaBrokers         = "KEYSHOP_KAFKA_BROKERS"
	EnvPaymentsFeedURL      = "KEYSHOP_PAYMENTS_FEED_URL"
	EnvPaymentsTolerance    = "KEYSHOP_PAYMENTS_AMOUNT_TOLERANCE"
	EnvCronReconcileEvery   = "KEYSHOP_CRON_RECONCILE_EVERY"
	EnvCORSOrigins          = "KEYSHOP_CORS_ORIGINS"
	EnvAdminJWTSecret       = "KEYSHOP_ADMIN_JWT_SECRET"
	EnvAdminOperatorKeyHash = "KEYSHOP_ADMIN_OPERATOR_KEY_HASH"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
