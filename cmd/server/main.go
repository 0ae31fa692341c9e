package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/gebeya-labs/identity-sync/internal/config"
	"github.com/gebeya-labs/identity-sync/internal/directory"
	"github.com/gebeya-labs/identity-sync/internal/identity"
	"github.com/gebeya-labs/identity-sync/internal/logging"
	"github.com/gebeya-labs/identity-sync/internal/refgraph"
	"github.com/gebeya-labs/identity-sync/internal/users"
	"github.com/gebeya-labs/identity-sync/internal/webhook"
	"github.com/gebeya-labs/identity-sync/internal/worker"
)

func main() {
	// Optional .env for local development; ignore when absent.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	mongoClient, db, err := directory.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		logger.Error("failed to connect to mongo", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect failed", "error", err)
		}
	}()

	if err := directory.EnsureIndexes(ctx, db); err != nil {
		logger.Error("failed to ensure directory indexes", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready", "database", cfg.MongoDatabase)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to parse redis URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	store := directory.NewMongoStore(db)
	graph := refgraph.NewMongoCollections(db)
	cascade := refgraph.NewOrchestrator(graph, cfg.StepTimeout, logger)
	reconciler := identity.NewReconciler(store, cascade, logger)
	dedup := webhook.NewRedisDeduper(rdb, cfg.WebhookDedupTTL, logger)

	if err := worker.InitClient(cfg.RedisURL); err != nil {
		logger.Error("failed to init task client", "error", err)
		os.Exit(1)
	}
	defer worker.CloseClient()

	sweeper := worker.NewSweeper(store, graph, cascade, logger)
	stopWorker, err := worker.Start(cfg, logger, sweeper)
	if err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	defer stopWorker()

	stopScheduler, err := worker.StartScheduler(cfg, logger)
	if err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer stopScheduler()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	webhook.NewHandler(reconciler, dedup, nil, logger).RegisterRoutes(router)
	users.NewHandler(store).RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	logger.Info("identity-sync started", "port", cfg.Port)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return
	}
	logger.Info("identity-sync stopped cleanly")
}
