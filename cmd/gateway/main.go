// Package main is the entry point for the API gateway.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/authcfg"
	"github.com/xiaoxin/api-gateway/internal/breaker"
	"github.com/xiaoxin/api-gateway/internal/config"
	"github.com/xiaoxin/api-gateway/internal/gateway"
	"github.com/xiaoxin/api-gateway/internal/metering"
	"github.com/xiaoxin/api-gateway/internal/observability"
	"github.com/xiaoxin/api-gateway/internal/ratelimit"
	"github.com/xiaoxin/api-gateway/internal/registry"
	registrypg "github.com/xiaoxin/api-gateway/internal/registry/postgres"
	"github.com/xiaoxin/api-gateway/internal/replay"
	"github.com/xiaoxin/api-gateway/internal/store"
	transporthttp "github.com/xiaoxin/api-gateway/internal/transport/http"
	"github.com/xiaoxin/api-gateway/internal/upstream"
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

	// Master key for envelope-encrypted secrets and auth configs.
	var codec *authcfg.Codec
	if cfg.Security.AuthConfigMasterKey != "" {
		key, err := config.DecodeMasterKey(cfg.Security.AuthConfigMasterKey)
		if err != nil {
			logger.Fatal("invalid master key", zap.Error(err))
		}
		if codec, err = authcfg.NewCodec(key); err != nil {
			logger.Fatal("master key rejected", zap.Error(err))
		}
	}

	// Shared coordination store: Redis when configured, otherwise the
	// in-process store for single-node deployments.
	var coord store.Store
	var coordPinger transporthttp.Pinger
	if cfg.Redis.Host != "" {
		redisStore, err := store.NewRedisStore(cfg.Redis)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisStore.Close()
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr()))
		coord, coordPinger = redisStore, redisStore
	} else {
		logger.Warn("no redis configured, using in-process coordination store")
		mem := store.NewMemoryStore()
		coord, coordPinger = mem, mem
	}

	// Registry: pgx-backed, wrapped with breaker and retries.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := registrypg.NewPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := registrypg.Migrate(cfg.Database.URL); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		logger.Info("registry schema migrated")
	}

	var reg registry.Registry = registrypg.New(pool, codec, cfg.Database.QueryTimeout)
	reg = registry.NewResilient(reg, logger)

	// Usage metering.
	var recorder metering.Recorder
	switch cfg.Metering.Mode {
	case "queue":
		queueRecorder := metering.NewQueueRecorder(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		defer queueRecorder.Close()
		recorder = queueRecorder
	default:
		recorder = metering.NewDirectRecorder(reg, cfg.Metering.Concurrency, logger)
	}

	// Pipeline components.
	sigTimeout := time.Duration(cfg.Security.SignatureTimeoutSeconds) * time.Second
	guard := replay.NewGuard(coord, sigTimeout)
	limiter := ratelimit.NewLimiter(coord,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		time.Duration(cfg.RateLimit.KeyExpireSeconds)*time.Second,
		logger)

	var br *breaker.Breaker
	if cfg.CircuitBreaker.Enabled {
		br = breaker.New(coord, breaker.ConfigFromMinutes(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.WindowMinutes,
			cfg.CircuitBreaker.OpenTimeoutMinutes,
			cfg.CircuitBreaker.KeyExpireMinutes,
		), logger)
	}

	invoker := upstream.NewInvoker(codec,
		time.Duration(cfg.Proxy.DefaultTimeoutMS)*time.Millisecond,
		cfg.Proxy.EnableRequestLogging,
		logger)

	chain := buildChain(cfg, reg, guard, limiter, br, invoker, recorder, logger)

	router := transporthttp.NewRouter(transporthttp.RouterDeps{
		Gateway:  chain,
		Store:    coordPinger,
		Registry: pool,
		EdgeRPS:  cfg.RateLimit.EdgeRPS,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("gateway starting", zap.Int("port", cfg.App.HTTPPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildChain assembles the filter pipeline in its declared order,
// honoring the per-filter toggles.
func buildChain(
	cfg *config.Config,
	reg registry.Registry,
	guard *replay.Guard,
	limiter *ratelimit.Limiter,
	br *breaker.Breaker,
	invoker *upstream.Invoker,
	recorder metering.Recorder,
	logger *zap.Logger,
) *gateway.Chain {
	var filters []gateway.Filter

	if cfg.Filters.RequestLogger {
		filters = append(filters, gateway.NewRequestLogger(logger, cfg.Proxy.EnableRequestLogging))
	}
	if cfg.Filters.IPGuard {
		filters = append(filters, gateway.NewIPGuard(cfg.Security.IPWhitelist, logger))
	}
	if cfg.Filters.Authenticator {
		filters = append(filters, gateway.NewAuthenticator(
			reg.GetInvokeUser,
			guard,
			gateway.AuthConfig{
				NonceLength:       cfg.Security.NonceLength,
				SignatureTimeout:  time.Duration(cfg.Security.SignatureTimeoutSeconds) * time.Second,
				ValidateTimestamp: cfg.Security.EnableTimestampValidation,
				ReplayProtection:  cfg.Security.EnableReplayProtection,
			},
			logger))
	}
	if cfg.Filters.InterfaceResolver {
		filters = append(filters, gateway.NewInterfaceResolver(reg.GetInterfaceInfo, logger))
	}
	if cfg.Filters.RateLimiter && cfg.RateLimit.Enabled {
		filters = append(filters, gateway.NewRateLimitFilter(limiter, cfg.RateLimit.DefaultLimit, logger))
	}
	if cfg.Filters.QuotaGate {
		filters = append(filters, gateway.NewQuotaGate(reg.PreConsume, cfg.Quota.FailOpen, logger))
	}
	filters = append(filters, gateway.NewProxyFilter(invoker, br, recorder, logger))

	return gateway.NewChain(logger, filters...)
}
