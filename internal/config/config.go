package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all Fare Guardian configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig defines database settings. Driver is sqlite, postgres or memory.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// SchedulerConfig defines the polling loop.
type SchedulerConfig struct {
	Interval              time.Duration `mapstructure:"interval"`
	InterAlertDelay       time.Duration `mapstructure:"inter_alert_delay"`
	PurgeHour             int           `mapstructure:"purge_hour"`
	DealRetention         time.Duration `mapstructure:"deal_retention"`
	NotificationRetention time.Duration `mapstructure:"notification_retention"`
}

// NotifyConfig defines notification delivery.
type NotifyConfig struct {
	Cooldown       time.Duration `mapstructure:"cooldown"`
	DefaultChannel string        `mapstructure:"default_channel"`
}

// SourcesConfig points at the price source definitions.
type SourcesConfig struct {
	File    string `mapstructure:"file"`
	Default string `mapstructure:"default"`
}

// CacheConfig defines the optional Redis search cache.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	RedisAddr string        `mapstructure:"redis_addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// ChannelsConfig defines delivery integrations.
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// TelegramConfig defines Telegram bot settings.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// KafkaConfig defines the deal event topic.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ServerConfig defines the status API.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A .env
// file in the working directory, if present, is loaded into the
// environment first.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".fareguard"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults; every key is listed so that FG_* variables can override it.
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", filepath.Join(home, ".fareguard", "fareguard.db"))
	v.SetDefault("storage.dsn", "")
	v.SetDefault("scheduler.interval", "30m")
	v.SetDefault("scheduler.inter_alert_delay", "2s")
	v.SetDefault("scheduler.purge_hour", 3)
	v.SetDefault("scheduler.deal_retention", "720h")          // 30 days
	v.SetDefault("scheduler.notification_retention", "2160h") // 90 days
	v.SetDefault("notify.cooldown", "24h")
	v.SetDefault("notify.default_channel", "")
	v.SetDefault("sources.file", filepath.Join(home, ".fareguard", "sources.yaml"))
	v.SetDefault("sources.default", "")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("channels.telegram.enabled", false)
	v.SetDefault("channels.telegram.token", "")
	v.SetDefault("channels.slack.enabled", false)
	v.SetDefault("channels.slack.webhook_url", "")
	v.SetDefault("channels.slack.channel", "#fare-deals")
	v.SetDefault("channels.webhook.enabled", false)
	v.SetDefault("channels.webhook.url", "")
	v.SetDefault("channels.webhook.secret", "")
	v.SetDefault("channels.kafka.enabled", false)
	v.SetDefault("channels.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("channels.kafka.topic", "fare-deals")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("FG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval)
	}
	if c.Scheduler.PurgeHour < 0 || c.Scheduler.PurgeHour > 23 {
		return fmt.Errorf("scheduler.purge_hour must be between 0 and 23, got %d", c.Scheduler.PurgeHour)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for the postgres driver")
	}
	return nil
}
