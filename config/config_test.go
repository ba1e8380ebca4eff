package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yitech/pricechart/model/selection"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricechart.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, selection.Default(), cfg.DefaultSelection())
	assert.Equal(t, time.Second, cfg.Feed.ReconnectInitial.Duration)
	assert.Equal(t, 30*time.Second, cfg.Feed.ReconnectMax.Duration)
	assert.Equal(t, 100, cfg.Buffer.Capacity)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "binance", cfg.Feed.Exchange)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddr)
}

func TestLoadMergesFile(t *testing.T) {
	path := writeTOML(t, `
log_level = "debug"

[selection]
symbol = "btcusdt"
interval = "4h"

[feed]
exchange = "okx"
reconnect_initial = "250ms"
reconnect_max = "5s"
backfill = true

[store]
backend = "redis"

[redis]
addr = "cache:6379"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, selection.New("btcusdt", "4h"), cfg.DefaultSelection())
	assert.Equal(t, "okx", cfg.Feed.Exchange)
	assert.Equal(t, 250*time.Millisecond, cfg.Feed.ReconnectInitial.Duration)
	assert.True(t, cfg.Feed.Backfill)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	// Untouched sections keep their defaults.
	assert.Equal(t, 100, cfg.Buffer.Capacity)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	_, err := Load(writeTOML(t, `[feed`))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRICECHART_FEED_EXCHANGE", "bybit")
	t.Setenv("PRICECHART_BUFFER_CAPACITY", "250")
	t.Setenv("PRICECHART_BUFFER_SNAPSHOT_EVERY", "not-a-number")
	t.Setenv("PRICECHART_FEED_RECONNECT_MAX", "1m")
	t.Setenv("PRICECHART_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "bybit", cfg.Feed.Exchange)
	assert.Equal(t, 250, cfg.Buffer.Capacity)
	assert.Equal(t, 0, cfg.Buffer.SnapshotEvery, "unparsable values are ignored")
	assert.Equal(t, time.Minute, cfg.Feed.ReconnectMax.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.Feed.Exchange = "kraken"
	cfg.Buffer.Capacity = 0
	cfg.Store.Backend = "s3"
	cfg.Chart.Timezone = "Mars/Olympus"
	cfg.Selection.Symbol = "eth-usdt"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"log_level", "exchange", "capacity", "backend", "timezone", "selection"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateReconnectBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Feed.ReconnectInitial = duration{10 * time.Second}
	cfg.Feed.ReconnectMax = duration{time.Second}
	assert.ErrorContains(t, cfg.Validate(), "reconnect_max")
}
