package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adapter-persistence-service/internal/adapters/primary/http/handlers"
	"adapter-persistence-service/internal/adapters/primary/http/middleware"
	"adapter-persistence-service/internal/adapters/secondary/blobstore"
	"adapter-persistence-service/internal/adapters/secondary/trainer"
	"adapter-persistence-service/internal/config"
	ports "adapter-persistence-service/internal/core/ports/output"
	"adapter-persistence-service/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	initLogger(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if err := os.MkdirAll(cfg.Service.WorkDir, 0o755); err != nil {
		log.Fatalf("create work dir: %v", err)
	}

	// ============================================================================
	// Hexagonal Architecture Wiring
	// ============================================================================

	// Secondary Adapters (Output Ports)
	store, err := blobstore.New(&cfg.Storage)
	if err != nil {
		log.Fatalf("create blob store: %v", err)
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		log.Warnf("blob store not reachable yet (continuing): %v", err)
	} else {
		log.WithField("bucket", store.Bucket()).Info("blob store connection established")
	}
	cancelPing()

	// Training routine (external command when configured)
	var trainerImpl ports.Trainer
	if cfg.Trainer.Command != "" {
		cmd, err := trainer.NewCommand(cfg.Trainer.Command, cfg.Trainer.Timeout)
		if err != nil {
			log.Fatalf("init trainer: %v", err)
		}
		trainerImpl = cmd
		log.WithField("command", cfg.Trainer.Command).Info("external trainer configured")
	} else {
		trainerImpl = trainer.NewPlaceholder()
		log.Info("no TRAINER_COMMAND set, using placeholder trainer")
	}

	// Core Services (Application Layer)
	backupSvc := services.NewBackupService(store, cfg.Service.WorkDir)
	metadataSvc := services.NewMetadataService(store, cfg.Service.MetadataMaxRetries)
	trainingSvc := services.NewTrainingDataService(store, metadataSvc, backupSvc, services.TrainingDataOptions{
		WorkDir:            cfg.Service.WorkDir,
		PresignExpiry:      cfg.Service.PresignExpiry,
		StagingConcurrency: cfg.Service.StagingConcurrency,
	})
	adapterSvc := services.NewAdapterService(store, backupSvc, trainingSvc, trainerImpl, services.AdapterOptions{
		BaseModel: cfg.Owner.BaseModel,
		WorkDir:   cfg.Service.WorkDir,
	})

	// Primary Adapter (HTTP Handlers)
	h := handlers.New(adapterSvc, trainingSvc, backupSvc, cfg.Owner.UserID)

	// Setup router
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(), middleware.Metrics(), gin.Recovery())

	api := router.Group("/api/v1")
	api.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	h.RegisterRoutes(api)

	// Health check with blob store ping
	router.GET("/healthz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "bucket": store.Bucket()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		log.Infof("starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced shutdown: %v", err)
	}

	log.Info("server stopped")
}

func initLogger(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
