package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `env:", prefix=SERVER_"`
	Finnhub   FinnhubConfig   `env:", prefix=FINNHUB_"`
	StockData StockDataConfig `env:", prefix=STOCKDATA_"`
	NewsAPI   NewsAPIConfig   `env:", prefix=NEWSAPI_"`
	Stream    StreamConfig    `env:", prefix=STREAM_"`
	Poll      PollConfig      `env:", prefix=POLL_"`
	Reconcile ReconcileConfig `env:", prefix=RECONCILE_"`
	Watch     WatchConfig     `env:", prefix=WATCH_"`
	Redis     RedisConfig     `env:", prefix=REDIS_"`
	NATS      NATSConfig      `env:", prefix=NATS_"`
	Logging   LoggingConfig   `env:", prefix=LOG_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
	CORSOrigins  []string      `env:"CORS_ORIGINS, default=*"`
}

// FinnhubConfig holds Finnhub provider configuration
type FinnhubConfig struct {
	APIKey  string        `env:"API_KEY"`
	BaseURL string        `env:"BASE_URL, default=https://finnhub.io/api/v1"`
	Timeout time.Duration `env:"TIMEOUT, default=10s"`
}

// StockDataConfig holds StockData.org provider configuration
type StockDataConfig struct {
	APIToken string        `env:"API_TOKEN"`
	BaseURL  string        `env:"BASE_URL, default=https://api.stockdata.org/v1"`
	Timeout  time.Duration `env:"TIMEOUT, default=10s"`
}

// NewsAPIConfig holds the fallback news provider configuration
type NewsAPIConfig struct {
	APIKey   string        `env:"API_KEY"`
	BaseURL  string        `env:"BASE_URL, default=https://newsapi.org/v2"`
	Timeout  time.Duration `env:"TIMEOUT, default=10s"`
	PageSize int           `env:"PAGE_SIZE, default=6"`
}

// StreamConfig holds streaming connection configuration
type StreamConfig struct {
	URL         string        `env:"URL, default=wss://ws.finnhub.io"`
	BackoffBase time.Duration `env:"BACKOFF_BASE, default=1s"`
	BackoffMax  time.Duration `env:"BACKOFF_MAX, default=30s"`
	SeriesCap   int           `env:"SERIES_CAP, default=80"`
	TickRecency time.Duration `env:"TICK_RECENCY, default=15s"`
}

// PollConfig holds the polling fallback configuration
type PollConfig struct {
	Interval   time.Duration `env:"INTERVAL, default=8s"`
	MaxSymbols int           `env:"MAX_SYMBOLS, default=10"`
}

// ReconcileConfig holds reconciliation tuning
type ReconcileConfig struct {
	Resolution        string        `env:"RESOLUTION, default=5"`
	RangeMinutes      int           `env:"RANGE_MINUTES, default=180"`
	RetryResolution   string        `env:"RETRY_RESOLUTION, default=15"`
	RetryRangeMinutes int           `env:"RETRY_RANGE_MINUTES, default=360"`
	FallbackPrice     float64       `env:"FALLBACK_PRICE, default=100"`
	RefreshInterval   time.Duration `env:"REFRESH_INTERVAL, default=60s"`
}

// WatchConfig holds the default watchlist
type WatchConfig struct {
	Symbols []string `env:"SYMBOLS, default=GOOGL,AAPL,MSFT,AMZN,TSLA,NVDA"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool          `env:"ENABLED, default=false"`
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
	TTL          time.Duration `env:"TTL, default=5m"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	Enabled       bool          `env:"ENABLED, default=false"`
	URL           string        `env:"URL, default=nats://localhost:4222"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=json"`
	Output string `env:"OUTPUT, default=stdout"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	ctx := context.Background()
	var cfg Config

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Stream.URL == "" {
		return fmt.Errorf("stream URL is required")
	}

	if c.Stream.SeriesCap <= 0 {
		return fmt.Errorf("series cap must be positive: %d", c.Stream.SeriesCap)
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive: %s", c.Poll.Interval)
	}

	if c.Stream.BackoffBase <= 0 || c.Stream.BackoffMax < c.Stream.BackoffBase {
		return fmt.Errorf("invalid backoff window: base=%s max=%s", c.Stream.BackoffBase, c.Stream.BackoffMax)
	}

	if c.Reconcile.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive: %s", c.Reconcile.RefreshInterval)
	}

	return nil
}

// GetRedisAddr returns Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetServerAddr returns server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
