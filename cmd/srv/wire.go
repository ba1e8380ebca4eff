package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/yitech/pricechart/adapter"
	"github.com/yitech/pricechart/adapter/binance"
	"github.com/yitech/pricechart/adapter/bybit"
	"github.com/yitech/pricechart/adapter/okx"
	"github.com/yitech/pricechart/config"
	"github.com/yitech/pricechart/store"
	"github.com/yitech/pricechart/store/file"
	"github.com/yitech/pricechart/store/memory"
	"github.com/yitech/pricechart/store/postgres"
	"github.com/yitech/pricechart/store/redis"
)

// newExchange picks the venue dialect. config.Validate has already rejected
// unknown names; anything else falls back to Binance.
func newExchange(cfg config.FeedConfig) adapter.Exchange {
	switch strings.ToLower(cfg.Exchange) {
	case "bybit":
		return bybit.New(cfg.WsURL, cfg.RestURL)
	case "okx":
		return okx.New(cfg.WsURL, cfg.RestURL)
	default:
		return binance.New(cfg.WsURL, cfg.RestURL)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "memory":
		return memory.New(), nil
	case "redis":
		s, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	default:
		s, err := file.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return s, nil
	}
}
