package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lemuelpay/settlement-service/internal/adapters/mock"
	"github.com/lemuelpay/settlement-service/internal/adapters/postgres"
	redisadapter "github.com/lemuelpay/settlement-service/internal/adapters/redis"
	"github.com/lemuelpay/settlement-service/internal/adapters/secrets"
	"github.com/lemuelpay/settlement-service/internal/config"
	"github.com/lemuelpay/settlement-service/internal/domain/ports"
	refundHandler "github.com/lemuelpay/settlement-service/internal/handlers/refund"
	settlementHandler "github.com/lemuelpay/settlement-service/internal/handlers/settlement"
	"github.com/lemuelpay/settlement-service/internal/logging"
	refundService "github.com/lemuelpay/settlement-service/internal/services/refund"
	settlementService "github.com/lemuelpay/settlement-service/internal/services/settlement"
)

func main() {
	logger := initLogger()
	defer logger.Sync()

	logger.Info("Starting settlement service",
		zap.String("version", "0.1.0"),
	)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	// Resolve the database password from Secrets Manager when configured
	if cfg.Secrets.SecretName != "" {
		if err := resolveDBPassword(ctx, cfg, logger); err != nil {
			logger.Fatal("Failed to resolve database credentials", zap.Error(err))
		}
	}

	dbPool, err := initDatabase(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("Database connection established",
		zap.String("database", cfg.Database.Database),
	)

	deps := initDependencies(dbPool, cfg, logger)

	httpMux := http.NewServeMux()

	// Refund endpoints
	httpMux.HandleFunc("/refunds", deps.refundHandler.CreateRefund)
	httpMux.HandleFunc("/refunds/", deps.refundHandler.GetRefund)

	// Settlement batch endpoints, triggered by the external scheduler
	httpMux.HandleFunc("/cron/create-settlements", deps.cronHandler.CreateSettlements)
	httpMux.HandleFunc("/cron/confirm-settlements", deps.cronHandler.ConfirmSettlements)
	httpMux.HandleFunc("/cron/confirm-adjustments", deps.cronHandler.ConfirmAdjustments)

	// Monitoring endpoints
	httpMux.HandleFunc("/settlements/health", deps.healthHandler.Snapshot)
	httpMux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: httpMux,
	}

	go func() {
		logger.Info("HTTP server listening",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// Dependencies holds all initialized services and handlers
type Dependencies struct {
	refundHandler *refundHandler.Handler
	cronHandler   *settlementHandler.CronHandler
	healthHandler *settlementHandler.HealthHandler
}

// initDependencies initializes all services and handlers with dependency injection
func initDependencies(dbPool *pgxpool.Pool, cfg *config.Config, logger *zap.Logger) *Dependencies {
	portLogger := logging.NewZapLogger(logger)

	db := postgres.NewDBExecutor(dbPool)
	paymentRepo := postgres.NewPaymentRepository(db)
	refundRepo := postgres.NewRefundRepository(db)
	settlementRepo := postgres.NewSettlementRepository(db)
	adjustmentRepo := postgres.NewAdjustmentRepository(db)

	var idemCache ports.IdempotencyCache
	if cfg.Redis.Enabled {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		idemCache = redisadapter.NewIdempotencyCache(client, "refund")
		logger.Info("Redis idempotency cache enabled",
			zap.String("addr", cfg.Redis.Addr),
		)
	}

	// Gateway integration is mocked; real PG integration is out of scope
	gateway := mock.NewRefundGateway()

	reconciler := settlementService.NewReconciliationService(db, settlementRepo, adjustmentRepo, portLogger)
	refundSvc := refundService.NewService(db, paymentRepo, refundRepo, gateway, reconciler, idemCache, portLogger)
	batchSvc := settlementService.NewBatchService(db, paymentRepo, settlementRepo, adjustmentRepo, portLogger)
	healthSvc := settlementService.NewHealthService(db, settlementRepo, adjustmentRepo, portLogger)

	return &Dependencies{
		refundHandler: refundHandler.NewHandler(refundSvc, logger),
		cronHandler:   settlementHandler.NewCronHandler(batchSvc, logger, cfg.Cron.Secret),
		healthHandler: settlementHandler.NewHealthHandler(healthSvc, logger),
	}
}

// resolveDBPassword fetches the database password from AWS Secrets Manager
func resolveDBPassword(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	smCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.Region)
	smCfg.Profile = cfg.Secrets.Profile

	sm, err := secrets.NewAWSSecretsManagerAdapter(ctx, smCfg, logger)
	if err != nil {
		return err
	}

	secret, err := sm.GetSecret(ctx, cfg.Secrets.SecretName)
	if err != nil {
		return err
	}
	cfg.Database.Password = secret.Value
	return nil
}

// initLogger initializes the logger
func initLogger() *zap.Logger {
	env := os.Getenv("ENVIRONMENT")

	if env == "production" {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		logger, _ := zapCfg.Build()
		return logger
	}

	logger, _ := zap.NewDevelopment()
	return logger
}

// initDatabase initializes the PostgreSQL connection pool
func initDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
