package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Remote    RemoteConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Queue     QueueConfig
	Webhook   WebhookConfig
	Audit     AuditConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"membersync"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	APIKey      string `envconfig:"API_KEY" default:""`
}

// RemoteConfig holds settings for the remote membership system. The remote
// system is the source of truth during migration; running without it is
// meaningless, so credentials and endpoints are required.
type RemoteConfig struct {
	BaseURL          string        `envconfig:"REMOTE_BASE_URL" required:"true"`
	TokenURL         string        `envconfig:"REMOTE_TOKEN_URL" required:"true"`
	AccountID        string        `envconfig:"REMOTE_ACCOUNT_ID" required:"true"`
	APIKey           string        `envconfig:"REMOTE_API_KEY" required:"true"`
	APISecret        string        `envconfig:"REMOTE_API_SECRET" required:"true"`
	Timeout          time.Duration `envconfig:"REMOTE_TIMEOUT" default:"10s"`
	MaxRetries       int           `envconfig:"REMOTE_MAX_RETRIES" default:"3"`
	BackoffBase      time.Duration `envconfig:"REMOTE_BACKOFF_BASE" default:"500ms"`
	BackoffCap       time.Duration `envconfig:"REMOTE_BACKOFF_CAP" default:"8s"`
	MaxBodyBytes     int64         `envconfig:"REMOTE_MAX_BODY_BYTES" default:"1048576"`
	BreakerThreshold uint32        `envconfig:"REMOTE_BREAKER_THRESHOLD" default:"5"`
	BreakerReset     time.Duration `envconfig:"REMOTE_BREAKER_RESET" default:"30s"`
	TokenBuffer      time.Duration `envconfig:"REMOTE_TOKEN_BUFFER" default:"60s"`
	PageSize         int           `envconfig:"REMOTE_PAGE_SIZE" default:"100"`
	MaxPages         int           `envconfig:"REMOTE_MAX_PAGES" default:"50"`
}

// CacheConfig holds member cache settings.
type CacheConfig struct {
	Type         string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL          time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	StaleAfter   time.Duration `envconfig:"CACHE_STALE_AFTER" default:"30m"`
	FreshWindow  time.Duration `envconfig:"CACHE_FRESH_WINDOW" default:"30s"`
	MaxEntries   int           `envconfig:"CACHE_MAX_ENTRIES" default:"1000"`
	Retention    time.Duration `envconfig:"CACHE_RETENTION" default:"24h"`
	SyncInterval time.Duration `envconfig:"CACHE_SYNC_INTERVAL" default:"15m"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// RateLimitConfig holds fixed-window budgets per operation class.
type RateLimitConfig struct {
	Window     time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	ReadLimit  int           `envconfig:"RATE_LIMIT_READ" default:"100"`
	WriteLimit int           `envconfig:"RATE_LIMIT_WRITE" default:"30"`
	AuthLimit  int           `envconfig:"RATE_LIMIT_AUTH" default:"10"`
}

// QueueConfig holds pending-write queue and processor settings.
type QueueConfig struct {
	Type          string        `envconfig:"QUEUE_DB_TYPE" default:"sqlite"` // sqlite, mysql, or memory
	Path          string        `envconfig:"QUEUE_DB_PATH" default:"./data/pending.db"`
	Interval      time.Duration `envconfig:"QUEUE_INTERVAL" default:"60s"`
	MaxAttempts   int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"10"`
	MaxAge        time.Duration `envconfig:"QUEUE_MAX_AGE" default:"24h"`
	InlineRetries int           `envconfig:"QUEUE_INLINE_RETRIES" default:"2"`
	InlineBackoff time.Duration `envconfig:"QUEUE_INLINE_BACKOFF" default:"1s"`

	// MySQL settings, used when Type is mysql.
	MySQLHost     string `envconfig:"QUEUE_MYSQL_HOST" default:"localhost"`
	MySQLPort     int    `envconfig:"QUEUE_MYSQL_PORT" default:"3306"`
	MySQLName     string `envconfig:"QUEUE_MYSQL_NAME" default:"membersync"`
	MySQLUser     string `envconfig:"QUEUE_MYSQL_USER" default:"root"`
	MySQLPassword string `envconfig:"QUEUE_MYSQL_PASS" default:""`
}

// WebhookConfig holds inbound webhook validation settings.
type WebhookConfig struct {
	Secret        string        `envconfig:"WEBHOOK_SECRET" default:""`
	MaxEventAge   time.Duration `envconfig:"WEBHOOK_MAX_EVENT_AGE" default:"5m"`
	RetentionTTL  time.Duration `envconfig:"WEBHOOK_RETENTION_TTL" default:"24h"`
	PruneInterval time.Duration `envconfig:"WEBHOOK_PRUNE_INTERVAL" default:"1h"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Path string `envconfig:"AUDIT_DB_PATH" default:"./data/audit.db"`
}

// MySQLDSN returns the MySQL data source name for the pending-write queue.
func (q *QueueConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		q.MySQLUser, q.MySQLPassword, q.MySQLHost, q.MySQLPort, q.MySQLName)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error. Missing required remote
// settings fail here rather than surfacing later as half-working sync.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
