package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skara-labs/crowdgate/internal/config"
	"github.com/skara-labs/crowdgate/internal/handler"
	"github.com/skara-labs/crowdgate/internal/ledger"
	"github.com/skara-labs/crowdgate/internal/middleware"
	"github.com/skara-labs/crowdgate/internal/pkg/logger"
	"github.com/skara-labs/crowdgate/internal/repository"
	"github.com/skara-labs/crowdgate/internal/sale"
	"github.com/skara-labs/crowdgate/internal/service"
	"github.com/skara-labs/crowdgate/internal/signer"
)

func main() {
	// 0. Initialize Logger
	logger.Init("info")

	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(cfg.Log.Level)
	saleCfg, err := cfg.SaleConfig()
	if err != nil {
		log.Fatalf("Invalid sale config: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 2. Initialize Persistence
	// Idempotency (Redis > Postgres > Memory), events (Postgres > Redis > buffer only)
	var idempotencyStore middleware.IdempotencyStore
	var eventRepo service.EventRepo
	var redisClient *repository.RedisClient
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(ctx, cfg)
		if err == nil {
			logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
			ttl := time.Duration(cfg.Redis.IdempotencyTTLSeconds) * time.Second
			idempotencyStore = repository.NewRedisIdempotencyStore(redisClient, ttl)
			eventRepo = repository.NewRedisEventRepo(redisClient, cfg.Redis.EventListKey, cfg.Redis.EventListMax)
		} else {
			logger.Error("Failed to connect to Redis, falling back", "error", err)
			redisClient = nil
		}
	}

	var pgEvents *repository.PostgresEventRepo
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(ctx, cfg)
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			if idempotencyStore == nil {
				pgIdem, err := repository.NewPostgresIdempotencyStore(ctx, db, cfg.Database.IdempotencyLockTimeout)
				if err != nil {
					logger.Error("Failed to prepare idempotency table", "error", err)
				} else {
					idempotencyStore = pgIdem
					retention := time.Duration(cfg.Database.IdempotencyRetentionHours) * time.Hour
					go runCleanup(ctx, "idempotency", cfg.Database.CleanupIntervalMinutes, retention, pgIdem.Cleanup)
				}
			}
			defer db.Close()
		} else {
			logger.Error("Failed to connect to DB, idempotency keys stay local", "error", err)
		}

		pgEvents, err = repository.NewPostgresEventRepo(cfg)
		if err == nil {
			eventRepo = pgEvents
			retention := time.Duration(cfg.Database.EventRetentionDays) * 24 * time.Hour
			go runCleanup(ctx, "events", cfg.Database.CleanupIntervalMinutes, retention, pgEvents.Cleanup)
		} else {
			logger.Error("Failed to open event store, events stay in Redis or memory", "error", err)
		}
	}
	if idempotencyStore == nil {
		idempotencyStore = middleware.NewInMemIdempotencyStore(time.Duration(cfg.Redis.IdempotencyTTLSeconds) * time.Second)
	}

	// 3. Initialize Core Services
	// Sale state and balances are in memory; a persistent event log that
	// already has entries belongs to a previous run.
	if found, err := service.PriorHistory(ctx, eventRepo); err != nil {
		logger.Error("Failed to inspect event store", "error", err)
	} else if found {
		logger.Warn("Event store holds events from a previous run; sale state starts empty and will not match them")
	}
	tokenLedger := ledger.NewMemory()
	core, err := sale.New(saleCfg, tokenLedger)
	if err != nil {
		log.Fatalf("Failed to initialize sale: %v", err)
	}

	eventSvc, err := service.NewEventService(cfg.Log.EventDir, cfg.Limits.EventBuffer, eventRepo)
	if err != nil {
		log.Fatalf("Failed to initialize event service: %v", err)
	}
	saleSvc := service.NewSaleService(core, tokenLedger, sale.SystemClock{}, eventSvc)
	limiter := service.NewLimiterRegistry(cfg.Limits.PurchaseQPS, cfg.Limits.PurchaseBurst)
	var verifier *signer.Verifier
	if cfg.Auth.VerifySignatures {
		var contracts *signer.ContractVerifier
		if cfg.Auth.RPCURL != "" {
			contracts = signer.NewContractVerifier(cfg.Auth.RPCURL, cfg.Auth.ContractCacheTTL, cfg.Auth.ContractRPCTimeout, cfg.Auth.ContractRPCRetries)
		}
		verifier = signer.NewVerifier(cfg.Auth.ChainID, contracts)
	}

	maintenance := middleware.NewMaintenanceSwitch(cfg.Server.ReadOnly)

	// 4. Setup Router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.RequestMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   "crowdgate",
			"phase":     saleSvc.Status().Phase.String(),
			"read_only": maintenance.Enabled(),
		})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	handler.RegisterRoutes(r, handler.Deps{
		Config:      cfg,
		Sale:        saleSvc,
		Events:      eventSvc,
		Limiter:     limiter,
		Idempotency: idempotencyStore,
		Verifier:    verifier,
		Maintenance: maintenance,
	})

	// 5. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Crowdgate started",
			"port", cfg.Server.Port,
			"phase", saleSvc.Status().Phase.String(),
			"read_only", cfg.Server.ReadOnly,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	stop()
	eventSvc.Close()
	if pgEvents != nil {
		_ = pgEvents.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("Server exiting")
}

func runCleanup(ctx context.Context, name string, intervalMinutes int, retention time.Duration, cleanup func(context.Context, time.Duration) error) {
	if intervalMinutes <= 0 || retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cleanup(ctx, retention); err != nil {
				logger.Error("Cleanup failed", "store", name, "error", err)
			}
		}
	}
}
