package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. CHAT_API_BASE_URL.
const EnvPrefix = "CHAT"

// Config holds all client configuration
type Config struct {
	API      APIConfig
	Auth     AuthConfig
	Realtime RealtimeConfig
	UI       UIConfig
	Cache    CacheConfig
	Queue    QueueConfig
	Archive  ArchiveConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// APIConfig locates the chat backend. BaseURL also decides the socket scheme.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// AuthConfig holds the API token, given inline or through a file.
type AuthConfig struct {
	Token     string
	TokenFile string
}

// RealtimeConfig tunes the conversation socket and the polling fallback.
type RealtimeConfig struct {
	ReconnectDelay time.Duration
	PollInterval   time.Duration
	WriteWait      time.Duration
	PingPeriod     time.Duration
	PendingWindow  time.Duration // 0 = pending messages match forever
}

// UIConfig holds display settings.
type UIConfig struct {
	BannerTimeout time.Duration
	Username      string
}

// CacheConfig enables the list cache when RedisURL is set.
type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// QueueConfig configures scheduled sends.
type QueueConfig struct {
	RedisURL    string
	Concurrency int
	Queues      string // CSV like "chat=2,default=1"
}

// ArchiveConfig configures the transcript archive.
type ArchiveConfig struct {
	DatabaseURL string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string
}

// Options controls where Load looks for configuration.
type Options struct {
	ConfigFile string // explicit file; empty searches for chatctl.yaml
	EnvFile    string // dotenv file; empty loads ./.env when present
}

// Load reads configuration with the following priority (highest first):
// 1. Environment variables with CHAT_ prefix (e.g., CHAT_AUTH_TOKEN)
// 2. the dotenv file, which only fills variables not already set
// 3. chatctl.yaml
// 4. Built-in defaults
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("chatctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/chatctl")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || opts.ConfigFile != "" {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		API: APIConfig{
			BaseURL: v.GetString("api.base_url"),
			Timeout: v.GetDuration("api.timeout"),
		},
		Auth: AuthConfig{
			Token:     v.GetString("auth.token"),
			TokenFile: v.GetString("auth.token_file"),
		},
		Realtime: RealtimeConfig{
			ReconnectDelay: v.GetDuration("realtime.reconnect_delay"),
			PollInterval:   v.GetDuration("realtime.poll_interval"),
			WriteWait:      v.GetDuration("realtime.write_wait"),
			PingPeriod:     v.GetDuration("realtime.ping_period"),
			PendingWindow:  v.GetDuration("realtime.pending_window"),
		},
		UI: UIConfig{
			BannerTimeout: v.GetDuration("ui.banner_timeout"),
			Username:      v.GetString("ui.username"),
		},
		Cache: CacheConfig{
			RedisURL: v.GetString("cache.redis_url"),
			TTL:      v.GetDuration("cache.ttl"),
		},
		Queue: QueueConfig{
			RedisURL:    v.GetString("queue.redis_url"),
			Concurrency: v.GetInt("queue.concurrency"),
			Queues:      v.GetString("queue.queues"),
		},
		Archive: ArchiveConfig{
			DatabaseURL: v.GetString("archive.database_url"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		// a missing default .env is fine
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load env file %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", 15*time.Second)

	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_file", "")

	v.SetDefault("realtime.reconnect_delay", 5*time.Second)
	v.SetDefault("realtime.poll_interval", 5*time.Second)
	v.SetDefault("realtime.write_wait", 10*time.Second)
	v.SetDefault("realtime.ping_period", 30*time.Second)
	v.SetDefault("realtime.pending_window", time.Duration(0))

	v.SetDefault("ui.banner_timeout", 5*time.Second)
	v.SetDefault("ui.username", "")

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("queue.redis_url", "")
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.queues", "chat=1")

	v.SetDefault("archive.database_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("metrics.addr", "")
}

func (c *Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("api.base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Realtime.ReconnectDelay <= 0 {
		return fmt.Errorf("realtime.reconnect_delay must be positive")
	}
	if c.Realtime.PollInterval <= 0 {
		return fmt.Errorf("realtime.poll_interval must be positive")
	}
	if c.Realtime.PendingWindow < 0 {
		return fmt.Errorf("realtime.pending_window cannot be negative")
	}
	if c.UI.BannerTimeout <= 0 {
		return fmt.Errorf("ui.banner_timeout must be positive")
	}
	if c.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue.concurrency must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
