package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path on top of Defaults, then applies
// PRICECHART_* environment overrides (a .env file is loaded first if
// present). A missing file is not an error. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// ── Selection ──
	setStr(&cfg.Selection.Symbol, "PRICECHART_SELECTION_SYMBOL")
	setStr(&cfg.Selection.Interval, "PRICECHART_SELECTION_INTERVAL")

	// ── Feed ──
	setStr(&cfg.Feed.Exchange, "PRICECHART_FEED_EXCHANGE")
	setStr(&cfg.Feed.WsURL, "PRICECHART_FEED_WS_URL")
	setStr(&cfg.Feed.RestURL, "PRICECHART_FEED_REST_URL")
	setDuration(&cfg.Feed.ReconnectInitial, "PRICECHART_FEED_RECONNECT_INITIAL")
	setDuration(&cfg.Feed.ReconnectMax, "PRICECHART_FEED_RECONNECT_MAX")
	setBool(&cfg.Feed.Backfill, "PRICECHART_FEED_BACKFILL")

	// ── Buffer ──
	setInt(&cfg.Buffer.Capacity, "PRICECHART_BUFFER_CAPACITY")
	setInt(&cfg.Buffer.SnapshotEvery, "PRICECHART_BUFFER_SNAPSHOT_EVERY")

	// ── Store ──
	setStr(&cfg.Store.Backend, "PRICECHART_STORE_BACKEND")
	setStr(&cfg.Store.Path, "PRICECHART_STORE_PATH")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PRICECHART_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PRICECHART_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PRICECHART_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PRICECHART_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PRICECHART_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PRICECHART_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Prefix, "PRICECHART_REDIS_PREFIX")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PRICECHART_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PRICECHART_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PRICECHART_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PRICECHART_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PRICECHART_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PRICECHART_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PRICECHART_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.MaxConns, "PRICECHART_POSTGRES_MAX_CONNS")

	// ── Chart ──
	setStr(&cfg.Chart.Output, "PRICECHART_CHART_OUTPUT")
	setInt(&cfg.Chart.Width, "PRICECHART_CHART_WIDTH")
	setInt(&cfg.Chart.Height, "PRICECHART_CHART_HEIGHT")
	setStr(&cfg.Chart.Timezone, "PRICECHART_CHART_TIMEZONE")

	// ── Server ──
	setStr(&cfg.Server.GRPCAddr, "PRICECHART_SERVER_GRPC_ADDR")
	setStr(&cfg.Server.HTTPAddr, "PRICECHART_SERVER_HTTP_ADDR")
	setStringSlice(&cfg.Server.CORSOrigins, "PRICECHART_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PRICECHART_LOG_LEVEL")
}

// Each helper only mutates the target when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
