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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Sync         SyncConfig
	Webhooks     WebhookConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Security     SecurityConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOCKSYNC_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOCKSYNC_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"STOCKSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOCKSYNC_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"STOCKSYNC_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"STOCKSYNC_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKSYNC_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKSYNC_DB_DSN"`
	Driver string `envconfig:"STOCKSYNC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKSYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKSYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKSYNC_DB_USER"`
	LegacyPassword string `envconfig:"STOCKSYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKSYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOCKSYNC_DB_SLOW_QUERY" default:"200ms"`
}

// IsSQLite reports whether the embedded sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKSYNC_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOCKSYNC_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOCKSYNC_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOCKSYNC_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TokenTTL returns the operator token lifetime configured in minutes.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate      bool `envconfig:"STOCKSYNC_AUTO_MIGRATE" default:"false"`
	RequireAuth      bool `envconfig:"STOCKSYNC_REQUIRE_AUTH" default:"true"`
	VerifyWebhookSig bool `envconfig:"STOCKSYNC_VERIFY_WEBHOOK_SIGNATURES" default:"false"`
}

// SyncConfig drives the outbound channel sync worker and its maintenance jobs.
type SyncConfig struct {
	BatchSize        int           `envconfig:"STOCKSYNC_SYNC_BATCH_SIZE" default:"10"`
	PollInterval     time.Duration `envconfig:"STOCKSYNC_SYNC_POLL_INTERVAL" default:"5s"`
	MaxRetries       int           `envconfig:"STOCKSYNC_SYNC_MAX_RETRIES" default:"5"`
	AdapterTimeout   time.Duration `envconfig:"STOCKSYNC_SYNC_ADAPTER_TIMEOUT" default:"30s"`
	StuckAfter       time.Duration `envconfig:"STOCKSYNC_SYNC_STUCK_AFTER" default:"15m"`
	CleanupAfterDays int           `envconfig:"STOCKSYNC_SYNC_CLEANUP_AFTER_DAYS" default:"7"`
	ChannelRateLimit int           `envconfig:"STOCKSYNC_SYNC_CHANNEL_RATE_LIMIT" default:"120"`
	ChannelRateWin   time.Duration `envconfig:"STOCKSYNC_SYNC_CHANNEL_RATE_WINDOW" default:"1m"`
	SimulatedLatency time.Duration `envconfig:"STOCKSYNC_SYNC_SIMULATED_LATENCY" default:"100ms"`
	MetricsAddr      string        `envconfig:"STOCKSYNC_SYNC_METRICS_ADDR" default:":9091"`
}

type WebhookConfig struct {
	HandlerTimeout time.Duration `envconfig:"STOCKSYNC_WEBHOOK_HANDLER_TIMEOUT" default:"10s"`
	GuardTTL       time.Duration `envconfig:"STOCKSYNC_WEBHOOK_GUARD_TTL" default:"2m"`
	MaxBodyBytes   int64         `envconfig:"STOCKSYNC_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
	IPRateLimit    int           `envconfig:"STOCKSYNC_WEBHOOK_IP_RATE_LIMIT" default:"600"`
	RateWindow     time.Duration `envconfig:"STOCKSYNC_WEBHOOK_RATE_WINDOW" default:"1m"`
}

type EventingConfig struct {
	Transport            string        `envconfig:"STOCKSYNC_EVENTING_TRANSPORT" default:"pubsub"`
	OutboxIdempotencyTTL time.Duration `envconfig:"STOCKSYNC_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Transport)) {
	case TransportPubSub, TransportKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvEventingTransport, TransportPubSub, TransportKafka)
	}
}

// UsesKafka reports whether outbox events are published to kafka instead of pubsub.
func (e EventingConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Transport), TransportKafka)
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOCKSYNC_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOCKSYNC_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOCKSYNC_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	InventoryTopic string `envconfig:"STOCKSYNC_PUBSUB_INVENTORY_TOPIC" default:"ss-inventory-events"`
	OrdersTopic    string `envconfig:"STOCKSYNC_PUBSUB_ORDERS_TOPIC" default:"ss-order-events"`
	SyncTopic      string `envconfig:"STOCKSYNC_PUBSUB_SYNC_TOPIC" default:"ss-sync-events"`
}

type KafkaConfig struct {
	Brokers        []string      `envconfig:"STOCKSYNC_KAFKA_BROKERS"`
	InventoryTopic string        `envconfig:"STOCKSYNC_KAFKA_INVENTORY_TOPIC" default:"inventory-events"`
	OrdersTopic    string        `envconfig:"STOCKSYNC_KAFKA_ORDERS_TOPIC" default:"order-events"`
	SyncTopic      string        `envconfig:"STOCKSYNC_KAFKA_SYNC_TOPIC" default:"sync-events"`
	WriteTimeout   time.Duration `envconfig:"STOCKSYNC_KAFKA_WRITE_TIMEOUT" default:"5s"`
}

type BigQueryConfig struct {
	Dataset        string `envconfig:"STOCKSYNC_BIGQUERY_DATASET" default:"stocksync"`
	InventoryTable string `envconfig:"STOCKSYNC_BIGQUERY_INVENTORY_TABLE" default:"inventory_snapshots"`
}

// Enabled reports whether inventory snapshots can be exported.
func (b BigQueryConfig) Enabled(gcp GCPConfig) bool {
	return strings.TrimSpace(gcp.ProjectID) != "" && strings.TrimSpace(b.Dataset) != ""
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STOCKSYNC_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"STOCKSYNC_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"STOCKSYNC_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"STOCKSYNC_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"STOCKSYNC_OUTBOX_DLQ_RETENTION" default:"2160h"`
	MetricsAddr    string        `envconfig:"STOCKSYNC_OUTBOX_METRICS_ADDR" default:":9092"`
}

// CronConfig sets the cron worker tick and how often each job is due.
type CronConfig struct {
	Tick           time.Duration `envconfig:"STOCKSYNC_CRON_TICK" default:"1m"`
	LockTTL        time.Duration `envconfig:"STOCKSYNC_CRON_LOCK_TTL" default:"10m"`
	SyncRetryEvery time.Duration `envconfig:"STOCKSYNC_CRON_SYNC_RETRY_EVERY" default:"1m"`
	StuckEvery     time.Duration `envconfig:"STOCKSYNC_CRON_STUCK_RECOVERY_EVERY" default:"5m"`
	CleanupEvery   time.Duration `envconfig:"STOCKSYNC_CRON_SYNC_CLEANUP_EVERY" default:"24h"`
	LowStockEvery  time.Duration `envconfig:"STOCKSYNC_CRON_LOW_STOCK_EVERY" default:"1h"`
	RetentionEvery time.Duration `envconfig:"STOCKSYNC_CRON_OUTBOX_RETENTION_EVERY" default:"24h"`
	SnapshotEvery  time.Duration `envconfig:"STOCKSYNC_CRON_INVENTORY_SNAPSHOT_EVERY" default:"24h"`
	InstanceID     string        `envconfig:"STOCKSYNC_INSTANCE_ID"`
}

type SecurityConfig struct {
	// CredentialsKey is a base64 encoded 32 byte key used to seal channel API credentials.
	CredentialsKey string `envconfig:"STOCKSYNC_CREDENTIALS_KEY"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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
