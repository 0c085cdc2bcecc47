package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/orderbot/core/order"
)

// TelegramConfig holds the bot credential and the fixed order recipient.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// RecipientID is the chat that receives completed orders.
	RecipientID int64 `yaml:"recipient_id" envconfig:"GROUP_CHAT_ID"`
}

// WebhookConfig specifies the inbound HTTP listener and the public address
// Telegram delivers updates to.
type WebhookConfig struct {
	URL              string `yaml:"url" envconfig:"RENDER_EXTERNAL_URL"`
	Listen           string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port             int    `yaml:"port" envconfig:"PORT"`
	HealthPath       string `yaml:"health_path" envconfig:"WEBHOOK_HEALTH_PATH"`
	MetricsPath      string `yaml:"metrics_path" envconfig:"WEBHOOK_METRICS_PATH"`
	DropPending      bool   `yaml:"drop_pending" envconfig:"WEBHOOK_DROP_PENDING"`
	SkipRegistration bool   `yaml:"skip_registration" envconfig:"WEBHOOK_SKIP_REGISTRATION"`
}

// DispatchConfig tunes the per-conversation executor.
type DispatchConfig struct {
	Workers           int `yaml:"workers" envconfig:"DISPATCH_WORKERS"`
	QueueSize         int `yaml:"queue_size" envconfig:"DISPATCH_QUEUE_SIZE"`
	KeyBacklog        int `yaml:"key_backlog" envconfig:"DISPATCH_KEY_BACKLOG"`
	ShutdownTimeoutMS int `yaml:"shutdown_timeout_ms" envconfig:"DISPATCH_SHUTDOWN_TIMEOUT_MS"`
}

// DeliveryConfig bounds outbound message delivery.
type DeliveryConfig struct {
	AttemptTimeoutMS int `yaml:"attempt_timeout_ms" envconfig:"DELIVERY_TIMEOUT_MS"`

	// MaxRetries is a pointer so that an explicit 0 (no retries) differs
	// from unset.
	MaxRetries     *int `yaml:"max_retries" envconfig:"DELIVERY_MAX_RETRIES"`
	RetryBackoffMS int  `yaml:"retry_backoff_ms" envconfig:"DELIVERY_RETRY_BACKOFF_MS"`
	MaxDurationMS  int  `yaml:"max_duration_ms" envconfig:"DELIVERY_MAX_DURATION_MS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// QueueLines bounds the async writer queue. Lines beyond it are dropped.
	QueueLines int `yaml:"queue_lines" envconfig:"LOG_QUEUE_LINES"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// DatabaseConfig holds the optional order archive connection. The archive
// is disabled while Host is empty.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// Enabled reports whether an archive database is configured.
func (d DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(d.Host) != ""
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	Texts    order.Texts    `yaml:"texts" ignored:"true"`
}

const (
	defaultListen          = "0.0.0.0"
	defaultPort            = 8443
	defaultHealthPath      = "/health"
	defaultMetricsPath     = "/metrics"
	defaultWorkers         = 4
	defaultQueueSize       = 1024
	defaultKeyBacklog      = 16
	defaultShutdownTimeout = 10 * time.Second
	defaultAttemptTimeout  = 10 * time.Second
	defaultMaxRetries      = 3
	defaultRetryBackoff    = time.Second
	defaultMaxDuration     = 30 * time.Second
)

// Load reads configuration from an optional YAML file and environment variables.
// An empty path means environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and applies defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (BOT_TOKEN)")
	}
	if cfg.Telegram.RecipientID == 0 {
		return fmt.Errorf("telegram.recipient_id is required (GROUP_CHAT_ID)")
	}

	raw := strings.TrimRight(strings.TrimSpace(cfg.Webhook.URL), "/")
	if raw == "" {
		return fmt.Errorf("webhook.url is required (RENDER_EXTERNAL_URL)")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("invalid webhook.url %q; expected an absolute http(s) URL", cfg.Webhook.URL)
	}
	cfg.Webhook.URL = raw

	if strings.TrimSpace(cfg.Webhook.Listen) == "" {
		cfg.Webhook.Listen = defaultListen
	}
	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = defaultPort
	}
	if cfg.Webhook.Port < 0 || cfg.Webhook.Port > 65535 {
		return fmt.Errorf("webhook.port must be within 1..65535, got %d", cfg.Webhook.Port)
	}
	cfg.Webhook.HealthPath = normalizePath(cfg.Webhook.HealthPath, defaultHealthPath)
	cfg.Webhook.MetricsPath = normalizePath(cfg.Webhook.MetricsPath, defaultMetricsPath)
	if cfg.Webhook.HealthPath == cfg.WebhookPath() || cfg.Webhook.MetricsPath == cfg.WebhookPath() {
		return fmt.Errorf("health and metrics paths must differ from the webhook path")
	}

	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = defaultWorkers
	}
	if cfg.Dispatch.QueueSize <= 0 {
		cfg.Dispatch.QueueSize = defaultQueueSize
	}
	if cfg.Dispatch.KeyBacklog <= 0 {
		cfg.Dispatch.KeyBacklog = defaultKeyBacklog
	}
	if cfg.Dispatch.KeyBacklog > cfg.Dispatch.QueueSize {
		return fmt.Errorf("dispatch.key_backlog (%d) must not exceed dispatch.queue_size (%d)", cfg.Dispatch.KeyBacklog, cfg.Dispatch.QueueSize)
	}
	if cfg.Dispatch.ShutdownTimeoutMS <= 0 {
		cfg.Dispatch.ShutdownTimeoutMS = int(defaultShutdownTimeout / time.Millisecond)
	}

	if cfg.Delivery.AttemptTimeoutMS <= 0 {
		cfg.Delivery.AttemptTimeoutMS = int(defaultAttemptTimeout / time.Millisecond)
	}
	if cfg.Delivery.MaxRetries == nil {
		retries := defaultMaxRetries
		cfg.Delivery.MaxRetries = &retries
	}
	if *cfg.Delivery.MaxRetries < 0 {
		return fmt.Errorf("delivery.max_retries must be >= 0")
	}
	if cfg.Delivery.RetryBackoffMS <= 0 {
		cfg.Delivery.RetryBackoffMS = int(defaultRetryBackoff / time.Millisecond)
	}
	if cfg.Delivery.MaxDurationMS <= 0 {
		cfg.Delivery.MaxDurationMS = int(defaultMaxDuration / time.Millisecond)
	}

	if cfg.Database.Enabled() {
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 4
		}
		if cfg.Database.MigrationsDir == "" {
			cfg.Database.MigrationsDir = "migrations"
		}
	}

	cfg.Texts = cfg.Texts.WithDefaults()
	return nil
}

// WebhookPath is the secret-bearing path Telegram posts updates to.
func (c *Config) WebhookPath() string {
	return "/" + c.Telegram.Token
}

// WebhookURL is the public address registered with Telegram.
func (c *Config) WebhookURL() string {
	return c.Webhook.URL + c.WebhookPath()
}

// ListenAddr is the host:port the ingress server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Webhook.Listen, c.Webhook.Port)
}

// ShutdownTimeout bounds the drain of pending conversation events.
func (d DispatchConfig) ShutdownTimeout() time.Duration {
	return time.Duration(d.ShutdownTimeoutMS) * time.Millisecond
}

func normalizePath(p, def string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return def
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// AttemptTimeout bounds one outbound Telegram call.
func (d DeliveryConfig) AttemptTimeout() time.Duration {
	return time.Duration(d.AttemptTimeoutMS) * time.Millisecond
}

// Retries is the number of delivery retries after the first attempt.
func (d DeliveryConfig) Retries() int {
	if d.MaxRetries == nil {
		return defaultMaxRetries
	}
	return *d.MaxRetries
}

// RetryBackoff is the base delay between delivery attempts.
func (d DeliveryConfig) RetryBackoff() time.Duration {
	return time.Duration(d.RetryBackoffMS) * time.Millisecond
}

// MaxDuration caps the time spent on one delivery including retries.
func (d DeliveryConfig) MaxDuration() time.Duration {
	return time.Duration(d.MaxDurationMS) * time.Millisecond
}
