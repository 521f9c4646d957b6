package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/campus-courier/internal/api"
	"github.com/ayo6706/campus-courier/internal/api/middleware"
	"github.com/ayo6706/campus-courier/internal/config"
	"github.com/ayo6706/campus-courier/internal/db"
	"github.com/ayo6706/campus-courier/internal/gateway"
	"github.com/ayo6706/campus-courier/internal/idempotency"
	"github.com/ayo6706/campus-courier/internal/observability"
	"github.com/ayo6706/campus-courier/internal/repository"
	"github.com/ayo6706/campus-courier/internal/service"
	"github.com/ayo6706/campus-courier/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const reconciliationLockKey = "campus-courier:lock:reconciliation"

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.WithPoolSize(cfg.DBMaxConns, cfg.DBMinConns))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		sqlDB := db.OpenSQL(pool)
		err := db.Migrate(ctx, sqlDB, "up")
		_ = sqlDB.Close()
		if err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		logger.Info("database migrated")
	}

	// cache stays a nil interface when Redis is not configured.
	var cache redis.Cmdable
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		cache = redisClient
	} else {
		logger.Warn("REDIS_URL not set; idempotency falls back to postgres and reconciliation runs unlocked")
	}

	store := repository.NewStore(pool)
	idemStore := idempotency.NewStore(cache, store.Queries(), cfg.IdempotencyTTL)

	payoutGateway := newGateway(cfg, logger)

	orderSvc := service.NewOrderService(store)
	assignmentSvc := service.NewAssignmentService(store, cfg.ClientPollInterval)
	walletSvc := service.NewWalletService(store)
	payoutSvc := service.NewPayoutService(store, payoutGateway, cfg.GatewayTimeout)
	webhookSvc := service.NewWebhookService(store, payoutSvc, cfg.WebhookSecret, cfg.WebhookSkipSignature)
	reconciliationSvc := service.NewReconciliationService(store, cfg.StaleWithdrawalWindow)

	sweeper := worker.NewWithdrawalSweeper(payoutSvc, cfg.StaleWithdrawalWindow).
		WithInterval(cfg.SweepInterval).
		WithBatchSize(cfg.SweepBatchSize)
	stopSweeper := sweeper.Run(ctx)
	logger.Info("withdrawal sweeper started",
		zap.Duration("interval", cfg.SweepInterval),
		zap.Duration("window", cfg.StaleWithdrawalWindow),
		zap.Int32("batch", cfg.SweepBatchSize),
	)

	var lock worker.Lock
	if cache != nil {
		redisLock, err := worker.NewRedisLock(cache, reconciliationLockKey, 10*time.Minute)
		if err != nil {
			stopSweeper()
			return fmt.Errorf("reconciliation lock: %w", err)
		}
		lock = redisLock
	}
	reconciler := worker.NewReconciliationWorker(reconciliationSvc, cfg.ReconciliationSchedule, lock)
	stopReconciler, err := reconciler.Run(ctx)
	if err != nil {
		stopSweeper()
		return fmt.Errorf("start reconciliation worker: %w", err)
	}
	logger.Info("reconciliation worker started", zap.String("schedule", cfg.ReconciliationSchedule))

	router := api.NewRouter(cfg, logger, pool, idemStore, cache, api.Services{
		Orders:      orderSvc,
		Assignments: assignmentSvc,
		Wallets:     walletSvc,
		Payouts:     payoutSvc,
		Webhooks:    webhookSvc,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GatewayTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	stopReconciler()
	stopSweeper()

	logger.Info("shutdown complete")
	return runErr
}

func newGateway(cfg *config.Config, logger *zap.Logger) gateway.Gateway {
	switch cfg.GatewayProvider {
	case config.GatewayProviderPaystack:
		logger.Info("using paystack payout gateway", zap.String("base_url", cfg.PaystackBaseURL), zap.Float64("rps", cfg.GatewayRPS))
		return gateway.WithMetrics(gateway.NewPaystackGateway(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.GatewayRPS))
	default:
		logger.Warn("using mock payout gateway")
		return gateway.WithMetrics(gateway.NewMockGateway())
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
