// Package main is the entry point for the usage-metering worker. It
// drains invoke-count tasks the gateway enqueues in queue metering
// mode.
package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/config"
	"github.com/xiaoxin/api-gateway/internal/metering"
	"github.com/xiaoxin/api-gateway/internal/observability"
	"github.com/xiaoxin/api-gateway/internal/registry"
	registrypg "github.com/xiaoxin/api-gateway/internal/registry/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Log, cfg.App.Env)
	if err != nil {
		log.Fatalf("Logger initialization error: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := registrypg.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	var reg registry.Registry = registrypg.New(pool, nil, cfg.Database.QueryTimeout)
	reg = registry.NewResilient(reg, logger)

	concurrency := cfg.Metering.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: concurrency,
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(metering.TypeInvokeCount, metering.NewInvokeCountHandler(reg, logger))

	logger.Info("metering worker starting",
		zap.String("redis", cfg.Redis.Addr()),
		zap.Int("concurrency", concurrency))
	if err := srv.Run(mux); err != nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}
