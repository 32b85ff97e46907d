package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/igabaycare/care-api/pkg/messaging/kafka"
	"github.com/igabaycare/care-api/pkg/messaging/redis"
	"github.com/igabaycare/care-api/pkg/worker"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Adyen         AdyenConfig         `mapstructure:"adyen"`
	PayMongo      PayMongoConfig      `mapstructure:"paymongo"`
	SMTP          SMTPConfig          `mapstructure:"smtp"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Reminder      ReminderConfig      `mapstructure:"reminder"`
	Outbox        OutboxConfig        `mapstructure:"outbox"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Sentry        SentryConfig        `mapstructure:"sentry"`
	Log           LogConfig           `mapstructure:"log"`
	Retention     RetentionConfig     `mapstructure:"retention"`
	Booking       BookingConfig       `mapstructure:"booking"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	HealthPort      int           `mapstructure:"health_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// EncryptionKey is a hex AES key for sealing prescription text.
	EncryptionKey string `mapstructure:"encryption_key"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig leaves URL empty to run without Redis.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	GroupID     string   `mapstructure:"group_id"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// ElasticsearchConfig leaves Addresses empty to disable directory search.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

func (c JWTConfig) TTL() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

type AdyenConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	MerchantAccount string        `mapstructure:"merchant_account"`
	HMACKey         string        `mapstructure:"hmac_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type PayMongoConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	SecretKey          string        `mapstructure:"secret_key"`
	WebhookSecret      string        `mapstructure:"webhook_secret"`
	LiveMode           bool          `mapstructure:"live_mode"`
	SignatureTolerance time.Duration `mapstructure:"signature_tolerance"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// SMTPConfig leaves Host empty to log emails instead of sending them.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type NotificationConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryBase     time.Duration `mapstructure:"retry_base"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RetryBatch    int           `mapstructure:"retry_batch"`
}

type ReminderConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type OutboxConfig struct {
	Broker        string        `mapstructure:"broker"`
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type WebhookConfig struct {
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type CacheConfig struct {
	ClinicListTTL time.Duration `mapstructure:"clinic_list_ttl"`
}

type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	Environment      string  `mapstructure:"environment"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RetentionConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	WebhookEvents time.Duration `mapstructure:"webhook_events"`
	OutboxEvents  time.Duration `mapstructure:"outbox_events"`
	AuditLogs     time.Duration `mapstructure:"audit_logs"`
}

type BookingConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// Location falls back to UTC when the zone database lacks Timezone.
func (c BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// secrets are read from IGABAY_* environment variables and win over the file.
type secrets struct {
	JWTSecret             string `envconfig:"JWT_SECRET"`
	DatabasePassword      string `envconfig:"DATABASE_PASSWORD"`
	DatabaseEncryptionKey string `envconfig:"DATABASE_ENCRYPTION_KEY"`
	AdyenAPIKey           string `envconfig:"ADYEN_API_KEY"`
	AdyenHMACKey          string `envconfig:"ADYEN_HMAC_KEY"`
	PayMongoSecretKey     string `envconfig:"PAYMONGO_SECRET_KEY"`
	PayMongoWebhookSecret string `envconfig:"PAYMONGO_WEBHOOK_SECRET"`
	SMTPPassword          string `envconfig:"SMTP_PASSWORD"`
	SentryDSN             string `envconfig:"SENTRY_DSN"`
}

const envPrefix = "IGABAY"

// LoadConfig reads config.yml from the given directories (or the default
// search path), applies defaults and overlays secrets from the environment.
// A missing file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	config.applySecrets(s)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applySecrets(s secrets) {
	overlay := func(dst *string, val string) {
		if val != "" {
			*dst = val
		}
	}
	overlay(&c.JWT.Secret, s.JWTSecret)
	overlay(&c.Database.Password, s.DatabasePassword)
	overlay(&c.Database.EncryptionKey, s.DatabaseEncryptionKey)
	overlay(&c.Adyen.APIKey, s.AdyenAPIKey)
	overlay(&c.Adyen.HMACKey, s.AdyenHMACKey)
	overlay(&c.PayMongo.SecretKey, s.PayMongoSecretKey)
	overlay(&c.PayMongo.WebhookSecret, s.PayMongoWebhookSecret)
	overlay(&c.SMTP.Password, s.SMTPPassword)
	overlay(&c.Sentry.DSN, s.SentryDSN)
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required (set IGABAY_JWT_SECRET)"))
	}
	if c.JWT.ExpiryHours <= 0 {
		errs = append(errs, errors.New("jwt.expiry_hours must be positive"))
	}
	switch c.Outbox.Broker {
	case "memory", "redis", "kafka":
	default:
		errs = append(errs, fmt.Errorf("outbox.broker must be memory, redis or kafka, got %q", c.Outbox.Broker))
	}
	if c.Outbox.Broker == "redis" && c.Redis.URL == "" {
		errs = append(errs, errors.New("outbox.broker redis requires redis.url"))
	}
	if c.Outbox.Broker == "kafka" && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("outbox.broker kafka requires kafka.brokers"))
	}
	if k := c.Database.EncryptionKey; k != "" {
		if b, err := hex.DecodeString(k); err != nil || (len(b) != 16 && len(b) != 24 && len(b) != 32) {
			errs = append(errs, errors.New("database.encryption_key must be a hex AES-128, AES-192 or AES-256 key"))
		}
	}
	if c.Notification.MaxAttempts <= 0 {
		errs = append(errs, errors.New("notification.max_attempts must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"notification.retry_interval": c.Notification.RetryInterval,
		"reminder.poll_interval":      c.Reminder.PollInterval,
		"retention.interval":          c.Retention.Interval,
		"outbox.poll_interval":        c.Outbox.PollInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "20s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "igabay")
	v.SetDefault("database.name", "igabaycare")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("kafka.group_id", "care-api")
	v.SetDefault("kafka.topic_prefix", "igabay.")

	v.SetDefault("elasticsearch.index", "clinics")

	v.SetDefault("jwt.issuer", "igabaycare")
	v.SetDefault("jwt.expiry_hours", 24)

	v.SetDefault("adyen.base_url", "https://checkout-test.adyen.com/v71")
	v.SetDefault("adyen.timeout", "15s")

	v.SetDefault("paymongo.base_url", "https://api.paymongo.com")
	v.SetDefault("paymongo.signature_tolerance", "5m")
	v.SetDefault("paymongo.timeout", "15s")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "IgabayCare <no-reply@igabaycare.com>")

	v.SetDefault("notification.max_attempts", 5)
	v.SetDefault("notification.retry_base", "30s")
	v.SetDefault("notification.retry_interval", "30s")
	v.SetDefault("notification.retry_batch", 50)

	v.SetDefault("reminder.poll_interval", "1m")
	v.SetDefault("reminder.batch_size", 100)

	v.SetDefault("outbox.broker", "memory")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "5s")
	v.SetDefault("outbox.retry_attempts", 5)
	v.SetDefault("outbox.retry_delay", "30s")

	v.SetDefault("webhook.dedup_ttl", "72h")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("cors.max_age", "12h")

	v.SetDefault("cache.clinic_list_ttl", "2m")

	v.SetDefault("sentry.traces_sample_rate", 0.1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("retention.interval", "24h")
	v.SetDefault("retention.webhook_events", "2160h")
	v.SetDefault("retention.outbox_events", "720h")
	v.SetDefault("retention.audit_logs", "8760h")

	v.SetDefault("booking.timezone", "Asia/Manila")
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
	}
}

func (c *RedisConfig) ToClientConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *KafkaConfig) ToBrokerConfig() kafka.Config {
	return kafka.Config{
		Brokers:     c.Brokers,
		GroupID:     c.GroupID,
		TopicPrefix: c.TopicPrefix,
	}
}
