package config

const (
	EnvPrefix = "STOCKSYNC"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
	defaultSQLiteDSN = "file:stocksync.db?cache=shared&_foreign_keys=on"

	TransportPubSub = "pubsub"
	TransportKafka  = "kafka"
)

const (
	EnvAppEnv       = "STOCKSYNC_APP_ENV"
	EnvPort         = "STOCKSYNC_APP_PORT"
	EnvLogLevel     = "STOCKSYNC_LOG_LEVEL"
	EnvServiceKind  = "STOCKSYNC_SERVICE_KIND"
	EnvDBDSN        = "STOCKSYNC_DB_DSN"
	EnvDBDriver     = "STOCKSYNC_DB_DRIVER"
	EnvDBHost       = "STOCKSYNC_DB_HOST"
	EnvDBPort       = "STOCKSYNC_DB_PORT"
	EnvDBUser       = "STOCKSYNC_DB_USER"
	EnvDBPassword   = "STOCKSYNC_DB_PASSWORD"
	EnvDBName       = "STOCKSYNC_DB_NAME"
	EnvRedisURL     = "STOCKSYNC_REDIS_URL"
	EnvJWTSecret    = "STOCKSYNC_JWT_SECRET"
	EnvJWTIssuer    = "STOCKSYNC_JWT_ISSUER"
	EnvJWTExpMins   = "STOCKSYNC_JWT_EXPIRATION_MINUTES"
	EnvAutoMigrate  = "STOCKSYNC_AUTO_MIGRATE"
	EnvGCPProjectID = "STOCKSYNC_GCP_PROJECT_ID"

	EnvSyncBatchSize        = "STOCKSYNC_SYNC_BATCH_SIZE"
	EnvSyncPollInterval     = "STOCKSYNC_SYNC_POLL_INTERVAL"
	EnvSyncMaxRetries       = "STOCKSYNC_SYNC_MAX_RETRIES"
	EnvSyncCleanupAfterDays = "STOCKSYNC_SYNC_CLEANUP_AFTER_DAYS"
	EnvWebhookTimeout       = "STOCKSYNC_WEBHOOK_HANDLER_TIMEOUT"

	EnvEventingTransport   = "STOCKSYNC_EVENTING_TRANSPORT"
	EnvKafkaBrokers        = "STOCKSYNC_KAFKA_BROKERS"
	EnvPubSubInventoryTopic = "STOCKSYNC_PUBSUB_INVENTORY_TOPIC"
	EnvCredentialsKey      = "STOCKSYNC_CREDENTIALS_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
