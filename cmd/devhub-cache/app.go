package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stake-plus/devhub-cache/src/config"
	"github.com/stake-plus/devhub-cache/src/data"
	"github.com/stake-plus/devhub-cache/src/indexer"
	"github.com/stake-plus/devhub-cache/src/lock"
	"github.com/stake-plus/devhub-cache/src/logging"
	"github.com/stake-plus/devhub-cache/src/nearblocks"
	"github.com/stake-plus/devhub-cache/src/nearrpc"
	"github.com/stake-plus/devhub-cache/src/store"
	"github.com/stake-plus/devhub-cache/src/webclient"
)

const lockPrefix = "devhub-cache:lock:"

// app holds the wired dependencies of one process.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	store  *store.Store
	rdb    *redis.Client
	syncer *indexer.Syncer

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}

// openApp loads configuration, connects storage and applies database
// settings. The indexer is only built when withSyncer is set.
func openApp(ctx context.Context, migrate, withSyncer bool) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	db, err := data.ConnectDB(cfg.DatabaseDSN, log)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	}
	a.store = store.New(db)

	if migrate {
		if err := a.store.Migrate(); err != nil {
			a.Close()
			return nil, err
		}
	}

	if err := data.LoadSettings(ctx, a.store); err != nil {
		log.Warn("settings not loaded", zap.Error(err))
	} else if err := a.applySettings(); err != nil {
		a.Close()
		return nil, err
	}

	if withSyncer {
		if err := a.buildSyncer(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) applySettings() error {
	before := a.cfg.Log
	if err := a.cfg.ApplySettings(data.Settings()); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("after settings: %w", err)
	}
	if a.cfg.Log != before {
		log, err := logging.New(a.cfg.Log.Level, a.cfg.Log.Development)
		if err != nil {
			return err
		}
		a.log = log
	}
	return nil
}

func (a *app) buildSyncer(ctx context.Context) error {
	cfg := a.cfg
	var (
		locker    lock.Locker = lock.NewLocal()
		publisher indexer.Publisher
	)
	if cfg.RedisURL != "" {
		rdb, err := data.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		a.rdb = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		locker = lock.NewRedis(rdb, lockPrefix, cfg.Sync.LockTTL, a.log)
		publisher = indexer.NewRedisPublisher(rdb)
		a.log.Info("redis enabled: distributed locks and sync events")
	}

	feed, err := nearblocks.New(nearblocks.Options{
		BaseURL:           cfg.Nearblocks.URL,
		APIKey:            cfg.Nearblocks.APIKey,
		PerPage:           cfg.Nearblocks.PerPage,
		RequestsPerMinute: cfg.Nearblocks.RequestsPerMinute,
		Timeout:           cfg.Nearblocks.Timeout,
	}, a.log)
	if err != nil {
		return err
	}
	reader := nearrpc.New(nearrpc.Options{
		URL:      cfg.RPC.URL,
		Contract: cfg.Contract,
		Timeout:  cfg.RPC.Timeout,
		Retry:    webclient.DefaultRetry,
	}, a.log)
	a.log.Info("syncer configured",
		zap.String("contract", reader.Contract()),
		zap.Duration("ttl", cfg.Sync.TTL),
		zap.Int64("block_height_offset", cfg.RPC.BlockHeightOffset))

	rec := indexer.NewReconciler(a.store, reader, locker, cfg.RPC.BlockHeightOffset, a.log)
	a.syncer = indexer.NewSyncer(
		indexer.NewTracker(a.store, a.log),
		feed,
		indexer.NewDispatcher(rec, a.log),
		indexer.Options{
			Account:   cfg.Contract,
			TTL:       cfg.Sync.TTL,
			Locker:    locker,
			Publisher: publisher,
		},
		a.log,
	)
	return nil
}
