// Package config loads scraper configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// StreamConfig holds the realtime stream settings.
type StreamConfig struct {
	URL               string        `mapstructure:"url"`
	APIKey            string        `mapstructure:"api_key"`
	ReceiveTimeout    time.Duration `mapstructure:"receive_timeout"`
	SubscribeDelay    time.Duration `mapstructure:"subscribe_delay"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectWait  time.Duration `mapstructure:"max_reconnect_wait"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"` // 0 = retry forever
}

// APIConfig holds the REST polling settings.
type APIConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PageSize     int           `mapstructure:"page_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
}

// PollConfig holds the polling ingestion settings.
type PollConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	TradeTokens     int           `mapstructure:"trade_tokens"` // top N tokens to fetch trades for
	TradesPerToken  int           `mapstructure:"trades_per_token"`
	NewLaunchWindow time.Duration `mapstructure:"new_launch_window"`
	MinMarketCap    float64       `mapstructure:"min_market_cap"`
	MinVolume       float64       `mapstructure:"min_volume"`
}

// CollectConfig holds the persistence and stats cadence.
type CollectConfig struct {
	PersistInterval time.Duration `mapstructure:"persist_interval"`
	StatsInterval   time.Duration `mapstructure:"stats_interval"`
}

// StorageConfig holds the archiver backends.
type StorageConfig struct {
	OutputDir     string `mapstructure:"output_dir"`
	OutputFormat  string `mapstructure:"output_format"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
}

// ServerConfig holds the metrics/health HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Config is the full scraper configuration.
type Config struct {
	Stream  StreamConfig  `mapstructure:"stream"`
	API     APIConfig     `mapstructure:"api"`
	Poll    PollConfig    `mapstructure:"poll"`
	Collect CollectConfig `mapstructure:"collect"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
}

// Load reads configuration from the given YAML file (or config.yaml in
// the working directory when empty), layered under PUMPFEED_* env vars.
// A .env file next to the process is loaded first so API keys never
// have to live in the YAML.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("PUMPFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configFile == "" {
			// No config file, run on defaults and environment.
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stream.url", "wss://pumpportal.fun/api/data")
	v.SetDefault("stream.receive_timeout", "60s")
	v.SetDefault("stream.subscribe_delay", "100ms")
	v.SetDefault("stream.reconnect_delay", "5s")
	v.SetDefault("stream.max_reconnect_wait", "60s")
	v.SetDefault("stream.reconnect_attempts", 5)

	v.SetDefault("api.base_url", "https://pumpportal.fun")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.page_size", 100)
	v.SetDefault("api.max_retries", 5)
	v.SetDefault("api.retry_delay", "5s")
	v.SetDefault("api.max_backoff", "45s")
	v.SetDefault("api.request_delay", "2s")

	v.SetDefault("poll.interval", "20s")
	v.SetDefault("poll.max_tokens", 500)
	v.SetDefault("poll.trade_tokens", 50)
	v.SetDefault("poll.trades_per_token", 100)
	v.SetDefault("poll.new_launch_window", "24h")
	v.SetDefault("poll.min_market_cap", 0.0)
	v.SetDefault("poll.min_volume", 0.0)

	v.SetDefault("collect.persist_interval", "20s")
	v.SetDefault("collect.stats_interval", "30s")

	v.SetDefault("storage.output_dir", "data")
	v.SetDefault("storage.output_format", "json")

	v.SetDefault("server.addr", ":8080")
}

// bindEnvVars explicitly binds every key so env vars apply even when no
// config file exists.
func bindEnvVars(v *viper.Viper) {
	keys := []string{
		"stream.url",
		"stream.api_key",
		"stream.receive_timeout",
		"stream.subscribe_delay",
		"stream.reconnect_delay",
		"stream.max_reconnect_wait",
		"stream.reconnect_attempts",
		"api.base_url",
		"api.timeout",
		"api.page_size",
		"api.max_retries",
		"api.retry_delay",
		"api.max_backoff",
		"api.request_delay",
		"poll.interval",
		"poll.max_tokens",
		"poll.trade_tokens",
		"poll.trades_per_token",
		"poll.new_launch_window",
		"poll.min_market_cap",
		"poll.min_volume",
		"collect.persist_interval",
		"collect.stats_interval",
		"storage.output_dir",
		"storage.output_format",
		"storage.postgres_dsn",
		"storage.clickhouse_dsn",
		"server.addr",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// Validate checks the settings a running scraper depends on.
func (c *Config) Validate() error {
	if c.Stream.URL == "" {
		return errors.New("stream.url is required")
	}
	if c.Stream.ReconnectDelay <= 0 {
		return errors.New("stream.reconnect_delay must be positive")
	}
	if c.Stream.MaxReconnectWait < c.Stream.ReconnectDelay {
		return errors.New("stream.max_reconnect_wait must be at least stream.reconnect_delay")
	}
	if c.API.PageSize <= 0 {
		return errors.New("api.page_size must be positive")
	}
	if c.API.MaxBackoff < c.API.RetryDelay {
		return errors.New("api.max_backoff must be at least api.retry_delay")
	}
	if c.Poll.Interval <= 0 {
		return errors.New("poll.interval must be positive")
	}
	if c.Poll.MaxTokens <= 0 {
		return errors.New("poll.max_tokens must be positive")
	}
	if c.Collect.PersistInterval <= 0 {
		return errors.New("collect.persist_interval must be positive")
	}
	if c.Collect.StatsInterval <= 0 {
		return errors.New("collect.stats_interval must be positive")
	}
	switch c.Storage.OutputFormat {
	case "json", "csv", "both":
	default:
		return fmt.Errorf("storage.output_format must be json, csv or both, got %q", c.Storage.OutputFormat)
	}
	return nil
}
