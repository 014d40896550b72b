package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "LICENSE_BOT_"

type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	HTTP        HTTPConfig        `yaml:"http"`
	GRPC        GRPCConfig        `yaml:"grpc"`
	Storage     StorageConfig     `yaml:"storage"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Outbox      OutboxConfig      `yaml:"outbox"`
	Platform    PlatformConfig    `yaml:"platform"`
	Notifier    NotifierConfig    `yaml:"notifier"`
	Relay       RelayConfig       `yaml:"relay"`
	Licenses    LicensesConfig    `yaml:"licenses"`
	Publish     PublishConfig     `yaml:"publish"`
	AutoPublish AutoPublishConfig `yaml:"auto_publish"`
	Admins      []string          `yaml:"admins"`
	Auth        AuthConfig        `yaml:"auth"`
	Status      StatusConfig      `yaml:"status"`
}

type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

type HTTPConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type GRPCConfig struct {
	Port           int           `yaml:"port"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	Postgres PostgresConfig `yaml:"postgres"`
	Pebble   PebbleConfig   `yaml:"pebble"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LogQueries      bool          `yaml:"log_queries"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type PebbleConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type KafkaConfig struct {
	Brokers            []string      `yaml:"brokers"`
	ConsumerGroup      string        `yaml:"consumer_group"`
	TopicThreadCreated string        `yaml:"topic_thread_created"`
	TopicThreadDeleted string        `yaml:"topic_thread_deleted"`
	TopicPostEvents    string        `yaml:"topic_post_events"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	HandleTimeout      time.Duration `yaml:"handle_timeout"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

type PlatformConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
}

type NotifierConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RelayConfig struct {
	QueueSize      int           `yaml:"queue_size"`
	Workers        int           `yaml:"workers"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type LicensesConfig struct {
	Path string `yaml:"path"`
}

type PublishConfig struct {
	MaxTemplatesPerOwner int           `yaml:"max_templates_per_owner"`
	PlatformTimeout      time.Duration `yaml:"platform_timeout"`
	LockTimeout          time.Duration `yaml:"lock_timeout"`
	NotifyBackupChanges  bool          `yaml:"notify_backup_changes"`
}

type AutoPublishConfig struct {
	AllowedChannelIDs   []string      `yaml:"allowed_channel_ids"`
	AllowlistPath       string        `yaml:"allowlist_path"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout"`
	DedupTTL            time.Duration `yaml:"dedup_ttl"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
}

type AuthConfig struct {
	Issuer        string `yaml:"issuer"`
	Secret        string `yaml:"secret"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type StatusConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Cron      string `yaml:"cron"`
	ChannelID string `yaml:"channel_id"`
	MessageID string `yaml:"message_id"`
}

func defaultConfig() Config {
	return Config{
		Service: ServiceConfig{Name: "dc-license-bot", LogLevel: "info"},
		HTTP:    HTTPConfig{Port: 8080, ReadHeaderTimeout: 5 * time.Second, ShutdownTimeout: 10 * time.Second},
		GRPC:    GRPCConfig{Port: 9090, HealthInterval: 15 * time.Second},
		Storage: StorageConfig{
			Driver:   "memory",
			Postgres: PostgresConfig{MaxOpenConns: 20, ConnMaxLifetime: 30 * time.Minute, AutoMigrate: true},
			Pebble:   PebbleConfig{Path: "data/license-bot"},
		},
		Redis: RedisConfig{KeyPrefix: "license-bot:"},
		Kafka: KafkaConfig{
			ConsumerGroup:      "dc-license-bot",
			TopicThreadCreated: "platform.thread_created",
			TopicThreadDeleted: "platform.thread_deleted",
			TopicPostEvents:    "license.post_events",
			PollInterval:       2 * time.Second,
			HandleTimeout:      30 * time.Second,
		},
		Outbox: OutboxConfig{PollInterval: 2 * time.Second, BatchSize: 100},
		Platform: PlatformConfig{
			BaseURL:        "https://discord.com/api/v10",
			RequestTimeout: 10 * time.Second,
			RatePerSecond:  5,
			Burst:          5,
		},
		Notifier: NotifierConfig{Timeout: 10 * time.Second},
		Relay: RelayConfig{
			QueueSize:      256,
			Workers:        4,
			MaxAttempts:    5,
			BaseBackoff:    time.Second,
			MaxBackoff:     30 * time.Second,
			AttemptTimeout: 10 * time.Second,
			ShutdownGrace:  10 * time.Second,
		},
		Licenses: LicensesConfig{Path: "configs/system_licenses.jsonc"},
		Publish: PublishConfig{
			MaxTemplatesPerOwner: 5,
			PlatformTimeout:      10 * time.Second,
			LockTimeout:          30 * time.Second,
			NotifyBackupChanges:  true,
		},
		AutoPublish: AutoPublishConfig{
			ConfirmationTimeout: 180 * time.Second,
			DedupTTL:            5 * time.Minute,
			SweepInterval:       15 * time.Second,
		},
		Auth:   AuthConfig{Issuer: "dc-license-bot"},
		Status: StatusConfig{Cron: "*/5 * * * *"},
	}
}

// LoadConfig layers defaults, an optional .env file, the YAML file at path
// and LICENSE_BOT_* environment variables, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if unmarshalErr := yaml.Unmarshal(raw, &cfg); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	applyEnv(&cfg)
	cfg.Admins = trimNonEmpty(cfg.Admins)
	cfg.Kafka.Brokers = trimNonEmpty(cfg.Kafka.Brokers)
	cfg.AutoPublish.AllowedChannelIDs = trimNonEmpty(cfg.AutoPublish.AllowedChannelIDs)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Service.Name = envOrDefault("SERVICE_NAME", cfg.Service.Name)
	cfg.Service.LogLevel = envOrDefault("LOG_LEVEL", cfg.Service.LogLevel)
	cfg.HTTP.Port = envInt("HTTP_PORT", cfg.HTTP.Port)
	cfg.GRPC.Port = envInt("GRPC_PORT", cfg.GRPC.Port)

	cfg.Storage.Driver = envOrDefault("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.Postgres.DSN = envOrDefault("POSTGRES_DSN", cfg.Storage.Postgres.DSN)
	cfg.Storage.Postgres.MaxOpenConns = envInt("POSTGRES_MAX_OPEN_CONNS", cfg.Storage.Postgres.MaxOpenConns)
	cfg.Storage.Postgres.AutoMigrate = envBool("POSTGRES_AUTO_MIGRATE", cfg.Storage.Postgres.AutoMigrate)
	cfg.Storage.Pebble.Path = envOrDefault("PEBBLE_PATH", cfg.Storage.Pebble.Path)

	cfg.Redis.URL = envOrDefault("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Password = envOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envInt("REDIS_DB", cfg.Redis.DB)

	cfg.Kafka.Brokers = envCSV("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.ConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.Kafka.ConsumerGroup)
	cfg.Kafka.HandleTimeout = envDuration("KAFKA_HANDLE_TIMEOUT", cfg.Kafka.HandleTimeout)

	cfg.Platform.BaseURL = envOrDefault("PLATFORM_BASE_URL", cfg.Platform.BaseURL)
	cfg.Platform.Token = envOrDefault("PLATFORM_TOKEN", cfg.Platform.Token)

	cfg.Notifier.Enabled = envBool("NOTIFIER_ENABLED", cfg.Notifier.Enabled)
	cfg.Notifier.Endpoint = envOrDefault("NOTIFIER_ENDPOINT", cfg.Notifier.Endpoint)
	cfg.Notifier.Token = envOrDefault("NOTIFIER_TOKEN", cfg.Notifier.Token)

	cfg.Relay.Workers = envInt("RELAY_WORKERS", cfg.Relay.Workers)
	cfg.Relay.QueueSize = envInt("RELAY_QUEUE_SIZE", cfg.Relay.QueueSize)
	cfg.Relay.ShutdownGrace = envDuration("RELAY_SHUTDOWN_GRACE", cfg.Relay.ShutdownGrace)

	cfg.Licenses.Path = envOrDefault("LICENSES_PATH", cfg.Licenses.Path)
	cfg.AutoPublish.AllowedChannelIDs = envCSV("AUTO_PUBLISH_ALLOWED_CHANNELS", cfg.AutoPublish.AllowedChannelIDs)
	cfg.AutoPublish.AllowlistPath = envOrDefault("AUTO_PUBLISH_ALLOWLIST_PATH", cfg.AutoPublish.AllowlistPath)
	cfg.AutoPublish.ConfirmationTimeout = envDuration("AUTO_PUBLISH_CONFIRMATION_TIMEOUT", cfg.AutoPublish.ConfirmationTimeout)
	cfg.Admins = envCSV("ADMINS", cfg.Admins)

	cfg.Auth.Issuer = envOrDefault("AUTH_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.Secret = envOrDefault("AUTH_SECRET", cfg.Auth.Secret)
	cfg.Auth.WebhookSecret = envOrDefault("WEBHOOK_SECRET", cfg.Auth.WebhookSecret)

	cfg.Status.Enabled = envBool("STATUS_ENABLED", cfg.Status.Enabled)
	cfg.Status.Cron = envOrDefault("STATUS_CRON", cfg.Status.Cron)
	cfg.Status.ChannelID = envOrDefault("STATUS_CHANNEL_ID", cfg.Status.ChannelID)
	cfg.Status.MessageID = envOrDefault("STATUS_MESSAGE_ID", cfg.Status.MessageID)
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver")
		}
	case "pebble":
		if c.Storage.Pebble.Path == "" {
			return fmt.Errorf("storage.pebble.path is required for the pebble driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.HTTP.Port <= 0 {
		return fmt.Errorf("http.port must be positive")
	}
	if c.Notifier.Enabled && c.Notifier.Endpoint == "" {
		return fmt.Errorf("notifier.endpoint is required when the notifier is enabled")
	}
	if c.Status.Enabled {
		if !gronx.IsValid(c.Status.Cron) {
			return fmt.Errorf("invalid status cron expression: %s", c.Status.Cron)
		}
		if c.Status.ChannelID == "" || c.Status.MessageID == "" {
			return fmt.Errorf("status.channel_id and status.message_id are required when status is enabled")
		}
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(envPrefix + name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(envPrefix + name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(envPrefix + name))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(envPrefix + name))
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(envPrefix + name))
	if raw == "" {
		return fallback
	}
	items := strings.Split(raw, ",")
	return trimNonEmpty(items)
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
