// Package main provides the API server entry point for the moment tracker.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moment-tracker/internal/analytics"
	"github.com/moment-tracker/internal/api"
	"github.com/moment-tracker/internal/chain"
	"github.com/moment-tracker/internal/circuitbreaker"
	"github.com/moment-tracker/internal/config"
	"github.com/moment-tracker/internal/ledger"
	"github.com/moment-tracker/internal/logging"
	"github.com/moment-tracker/internal/market"
	"github.com/moment-tracker/internal/metrics"
	"github.com/moment-tracker/internal/normalizer"
	"github.com/moment-tracker/internal/retry"
	"github.com/moment-tracker/internal/service"
	"github.com/moment-tracker/internal/storage"
	"github.com/moment-tracker/internal/synthetic"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	metrics.MustRegisterMetrics()

	policy, err := ledger.ParseCostBasisPolicy(cfg.Analytics.CostBasisPolicy)
	if err != nil {
		logger.WithError(err).Fatal("Invalid cost basis policy")
	}

	params := analytics.DefaultParams()
	if cfg.Analytics.ParamsFile != "" {
		params, err = analytics.LoadParams(cfg.Analytics.ParamsFile)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load analytics parameters")
		}
	}

	backoff := &retry.RetryConfig{
		MaxAttempts:  cfg.Chain.MaxAttempts,
		InitialDelay: cfg.Chain.InitialBackoff,
		MaxDelay:     cfg.Chain.MaxBackoff,
		Multiplier:   2.0,
	}

	chainClient := chain.NewClient(chain.Config{
		AccessNodeURL:     cfg.Chain.AccessNodeURL,
		IndexerURL:        cfg.Chain.IndexerURL,
		Timeout:           cfg.Chain.Timeout,
		Retry:             backoff,
		RequestsPerSecond: cfg.Chain.RequestsPerSecond,
		Burst:             cfg.Chain.Burst,
		PageSize:          cfg.Chain.PageSize,
		MaxPages:          cfg.Chain.MaxPages,
	})

	breaker := circuitbreaker.DefaultConfig("market")
	breaker.MaxFailures = cfg.Market.BreakerMaxFailures
	breaker.Timeout = cfg.Market.BreakerTimeout

	var source market.Source
	if cfg.Market.BaseURL != "" {
		source = market.NewHTTPSource(cfg.Market.BaseURL, cfg.Market.Timeout, logger).WithRetry(backoff)
	}
	resolver := market.NewResolver(source, market.Config{
		FallbackAdjustment: cfg.Market.FallbackAdjustment,
		MaxConcurrency:     cfg.Market.MaxConcurrency,
		LastSaleTTL:        cfg.Market.LastSaleTTL,
		Breaker:            breaker,
	})

	norm := normalizer.New(normalizer.DefaultOptions())

	deps := service.Dependencies{
		Chain:      chainClient,
		Resolver:   resolver,
		Normalizer: norm,
		Engine:     analytics.NewEngine(params, policy),
		Sample:     synthetic.NewGenerator(cfg.Sample.MomentCount, norm),
	}

	// Optional stores; a disabled store leaves its dependency nil
	if cfg.Database.Postgres.Enabled {
		postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Postgres")
		}
		defer postgres.Close()

		if err := storage.RunMigrations(storage.PostgresURL(&cfg.Database.Postgres)); err != nil {
			logger.WithError(err).Fatal("Failed to run Postgres migrations")
		}
		deps.Ledgers = storage.NewLedgerRepository(postgres)
		logger.Info("Postgres ledger store enabled")
	}

	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()

		if err := storage.RunClickHouseMigrations(logging.WithLogger(context.Background(), logger), clickhouse); err != nil {
			logger.WithError(err).Fatal("Failed to run ClickHouse migrations")
		}
		deps.Archive = storage.NewTransactionRepository(clickhouse)
		logger.Info("ClickHouse transaction archive enabled")
	}

	if cfg.Database.Redis.Enabled {
		redis, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redis.Close()

		deps.Cache = storage.NewCacheService(redis, cfg.Cache.TTL)
		logger.Info("Redis response cache enabled")
	}

	portfolioService := service.NewPortfolioService(deps, service.Config{
		EventWindow:     cfg.Chain.EventWindow,
		EventTypes:      cfg.Chain.EventTypes,
		SampleFallback:  cfg.Sample.FallbackEnabled,
		CostBasisPolicy: policy,
	})

	logger.Info("Services initialized")

	server := api.NewServer(&api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		RequestTimeout:    45 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, portfolioService, logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
