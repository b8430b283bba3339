package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://finnhub.io/api/v1", cfg.Finnhub.BaseURL)
	assert.Equal(t, "wss://ws.finnhub.io", cfg.Stream.URL)
	assert.Equal(t, time.Second, cfg.Stream.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Stream.BackoffMax)
	assert.Equal(t, 80, cfg.Stream.SeriesCap)
	assert.Equal(t, 8*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 10, cfg.Poll.MaxSymbols)
	assert.Equal(t, "5", cfg.Reconcile.Resolution)
	assert.Equal(t, 100.0, cfg.Reconcile.FallbackPrice)
	assert.Equal(t, []string{"GOOGL", "AAPL", "MSFT", "AMZN", "TSLA", "NVDA"}, cfg.Watch.Symbols)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POLL_INTERVAL", "3s")
	t.Setenv("WATCH_SYMBOLS", "IBM,ORCL")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Poll.Interval)
	assert.Equal(t, []string{"IBM", "ORCL"}, cfg.Watch.Symbols)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Stream: StreamConfig{
				URL:         "wss://ws.example.test",
				BackoffBase: time.Second,
				BackoffMax:  30 * time.Second,
				SeriesCap:   80,
			},
			Poll: PollConfig{Interval: 8 * time.Second},
		}
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Stream.URL = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Stream.SeriesCap = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Poll.Interval = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Stream.BackoffMax = time.Millisecond
	assert.Error(t, cfg.Validate())
}

func TestGetAddrs(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
	}

	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddr())
	assert.Equal(t, "localhost:6379", cfg.GetRedisAddr())
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := `# comment line
export FINNHUB_API_KEY=abc123
STOCKDATA_API_TOKEN="quoted value"
EMPTY_LINE_FOLLOWS=

not_a_pair
`
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0644))

	t.Setenv("FINNHUB_API_KEY", "")
	t.Setenv("STOCKDATA_API_TOKEN", "")

	require.NoError(t, loadEnvFile(envPath))

	assert.Equal(t, "abc123", os.Getenv("FINNHUB_API_KEY"))
	assert.Equal(t, "quoted value", os.Getenv("STOCKDATA_API_TOKEN"))
}

func TestLoadEnvFile_SystemEnvWins(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("FINNHUB_API_KEY=from-file\n"), 0644))

	t.Setenv("FINNHUB_API_KEY", "from-system")

	require.NoError(t, loadEnvFile(envPath))
	assert.Equal(t, "from-system", os.Getenv("FINNHUB_API_KEY"))
}
