// Package config defines the daemon's TOML configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yitech/pricechart/model/selection"
)

// Config is the top-level configuration.
type Config struct {
	Selection SelectionConfig `toml:"selection"`
	Feed      FeedConfig      `toml:"feed"`
	Buffer    BufferConfig    `toml:"buffer"`
	Store     StoreConfig     `toml:"store"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Chart     ChartConfig     `toml:"chart"`
	Server    ServerConfig    `toml:"server"`
	LogLevel  string          `toml:"log_level"`
}

// SelectionConfig is used when nothing has been persisted yet.
type SelectionConfig struct {
	Symbol   string `toml:"symbol"`
	Interval string `toml:"interval"`
}

type FeedConfig struct {
	Exchange         string   `toml:"exchange"`
	WsURL            string   `toml:"ws_url"`
	RestURL          string   `toml:"rest_url"`
	ReconnectInitial duration `toml:"reconnect_initial"`
	ReconnectMax     duration `toml:"reconnect_max"`
	// Backfill seeds an empty window from the REST kline history.
	Backfill bool `toml:"backfill"`
}

type BufferConfig struct {
	Capacity int `toml:"capacity"`
	// SnapshotEvery saves the window after this many ticks; 0 saves only on
	// switch and shutdown.
	SnapshotEvery int `toml:"snapshot_every"`
}

type StoreConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Prefix     string `toml:"prefix"`
}

type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"max_conns"`
}

type ChartConfig struct {
	// Output is the PNG file rewritten on every redraw; empty disables it.
	Output   string `toml:"output"`
	Width    int    `toml:"width"`
	Height   int    `toml:"height"`
	Timezone string `toml:"timezone"`
}

type ServerConfig struct {
	GRPCAddr    string   `toml:"grpc_addr"`
	HTTPAddr    string   `toml:"http_addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration wraps time.Duration so it can be decoded from a TOML string
// such as "1s" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sensible defaults.
func Defaults() Config {
	return Config{
		Selection: SelectionConfig{
			Symbol:   selection.DefaultSymbol,
			Interval: string(selection.DefaultInterval),
		},
		Feed: FeedConfig{
			Exchange:         "binance",
			ReconnectInitial: duration{time.Second},
			ReconnectMax:     duration{30 * time.Second},
		},
		Buffer: BufferConfig{
			Capacity: 100,
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    "pricechart.json",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			Prefix:     "pricechart:",
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "pricechart",
			User:     "postgres",
			SSLMode:  "disable",
			MaxConns: 4,
		},
		Chart: ChartConfig{
			Width:    1024,
			Height:   512,
			Timezone: "UTC",
		},
		Server: ServerConfig{
			GRPCAddr:    ":50051",
			HTTPAddr:    ":8080",
			CORSOrigins: []string{"*"},
		},
		LogLevel: "info",
	}
}

var (
	validExchanges = map[string]bool{"binance": true, "bybit": true, "okx": true}
	validBackends  = map[string]bool{"memory": true, "file": true, "redis": true, "postgres": true}
	validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// DefaultSelection is the configured fallback selection.
func (c *Config) DefaultSelection() selection.Selection {
	return selection.New(c.Selection.Symbol, c.Selection.Interval)
}

// SlogLevel maps LogLevel to a slog.Level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Location loads Chart.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Chart.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Chart.Timezone)
}

// Validate checks the configuration for errors and returns a combined
// error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if err := c.DefaultSelection().Validate(); err != nil {
		errs = append(errs, "selection: "+err.Error())
	}

	// Feed
	if !validExchanges[strings.ToLower(c.Feed.Exchange)] {
		errs = append(errs, fmt.Sprintf("feed: unknown exchange %q (valid: binance, bybit, okx)", c.Feed.Exchange))
	}
	if c.Feed.ReconnectInitial.Duration <= 0 {
		errs = append(errs, "feed: reconnect_initial must be > 0")
	}
	if c.Feed.ReconnectMax.Duration < c.Feed.ReconnectInitial.Duration {
		errs = append(errs, "feed: reconnect_max must be >= reconnect_initial")
	}

	// Buffer
	if c.Buffer.Capacity < 1 {
		errs = append(errs, "buffer: capacity must be >= 1")
	}
	if c.Buffer.SnapshotEvery < 0 {
		errs = append(errs, "buffer: snapshot_every must be >= 0")
	}

	// Store
	backend := strings.ToLower(c.Store.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: memory, file, redis, postgres)", c.Store.Backend))
	}
	if backend == "file" && c.Store.Path == "" {
		errs = append(errs, "store: path must not be empty for the file backend")
	}
	if backend == "redis" && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if backend == "postgres" && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}

	// Chart
	if c.Chart.Width < 1 || c.Chart.Height < 1 {
		errs = append(errs, fmt.Sprintf("chart: width and height must be >= 1, got %dx%d", c.Chart.Width, c.Chart.Height))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("chart: timezone %q: %v", c.Chart.Timezone, err))
	}

	// Server
	if c.Server.GRPCAddr == "" && c.Server.HTTPAddr == "" {
		errs = append(errs, "server: at least one of grpc_addr and http_addr must be set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
