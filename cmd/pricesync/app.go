package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"PriceSync/internal/collector"
	"PriceSync/internal/config"
	"PriceSync/internal/logging"
	"PriceSync/internal/metrics"
	"PriceSync/internal/resolver"
	"PriceSync/internal/store"
	"PriceSync/internal/symbol"
	"PriceSync/internal/syncer"
	"PriceSync/internal/window"
)

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Registry
	client  *http.Client
	store   store.Store
	aliases symbol.Aliases
	syncer  *syncer.Syncer

	rdb *redis.Client
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(configPath(cfgPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}

	log.Logger = logger

	a := &app{cfg: cfg, log: logger, metrics: metrics.New()}
	a.client, err = collector.NewHTTPClient(cfg.Proxy, cfg.Upstream.Timeout)
	if err != nil {
		return nil, err
	}

	a.store, err = store.Open(ctx, store.Options{
		Driver:       cfg.Database.Driver,
		SQLitePath:   cfg.Database.SQLitePath,
		PostgresDSN:  cfg.Database.PostgresDSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		QueryTimeout: cfg.Database.QueryTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	mem := symbol.NewMemoryAliases(cfg.Sync.AliasEvictAfter)
	a.aliases = mem
	if cfg.Redis.Addr != "" {
		rdb, err := symbol.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, aliases kept in memory")
		} else {
			a.rdb = rdb
			a.aliases = symbol.NewRedisAliases(mem, rdb, cfg.Redis.Key, logger)
		}
	}

	fetcher := collector.NewYahooClient(collector.Options{
		ChartURL:        cfg.Upstream.ChartURL,
		SearchURL:       cfg.Upstream.SearchURL,
		UserAgent:       cfg.Upstream.UserAgent,
		Attempts:        cfg.Upstream.Attempts,
		Backoff:         cfg.Upstream.Backoff,
		BreakerFailures: cfg.Upstream.BreakerFailures,
		BreakerCooldown: cfg.Upstream.BreakerCooldown,
		HTTPClient:      a.client,
		Metrics:         a.metrics,
		Logger:          logger,
	})

	floor, _ := cfg.Floor() // checked by Validate
	planner := &window.Planner{
		Floor:        floor,
		GraceDays:    cfg.Sync.GraceDays,
		SessionClose: cfg.Sync.SessionClose,
	}

	res := resolver.New(fetcher, a.aliases, a.metrics, logger)
	a.syncer = syncer.New(a.store, res, a.aliases, planner, a.metrics, logger, syncer.Options{
		Allow:           syncer.ParseAllowList(cfg.Sync.Symbols),
		Workers:         cfg.Sync.Workers,
		RequestDelay:    cfg.RequestDelay(),
		OnDemandTimeout: cfg.Sync.OnDemandTimeout,
		BatchSize:       cfg.Sync.BatchSize,
	})
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close redis")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close store")
		}
	}
}
