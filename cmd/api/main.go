package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/promptforge/promptstore/internal/config"
	"github.com/promptforge/promptstore/internal/logging"
	"github.com/promptforge/promptstore/internal/metrics"
	"github.com/promptforge/promptstore/internal/middleware"
	"github.com/promptforge/promptstore/internal/remote"
	"github.com/promptforge/promptstore/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Optional off-site backup target
	var opts []store.Option
	if cfg.Remote.Enabled {
		uploader, err := remote.New(cfg.Remote)
		if err != nil {
			log.Fatalf("Failed to initialize remote backup target: %v", err)
		}
		opts = append(opts, store.WithUploader(uploader))
		log.Info("Remote backup target configured")
	}

	st, err := store.New(cfg.Storage, log, opts...)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	api := &API{store: st, log: log}
	router := setupRouter(api, cfg, log)

	// Metrics on a side port
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				log.ErrorWithErr("Metrics server stopped", err)
			}
		}()
	}

	// Periodic backups are the composition root's job; the store only
	// executes them
	stopBackups := make(chan struct{})
	if cfg.Storage.AutoBackup {
		go runAutoBackup(st, log, cfg.Storage.BackupInterval, stopBackups)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("API server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	close(stopBackups)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.ErrorWithErr("Server shutdown failed", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.ErrorWithErr("Metrics server shutdown failed", err)
		}
	}
}

func setupRouter(api *API, cfg *config.Config, log *logging.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))

	rl := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router.Use(middleware.RateLimit(rl))

	// Health check
	router.GET("/health", api.healthCheck)

	// API routes
	v1 := router.Group("/api/v1")
	{
		// Users
		v1.POST("/users", api.createUser)
		v1.GET("/users", api.listUsers)
		v1.GET("/users/search", api.searchUsers)
		v1.GET("/users/by-email", api.getUserByEmail)
		v1.GET("/users/:id", api.getUser)
		v1.PATCH("/users/:id", api.updateUser)
		v1.DELETE("/users/:id", api.deleteUser)

		// Usage
		v1.POST("/users/:id/usage", api.updateUsage)
		v1.GET("/users/:id/usage", api.getUsage)
		v1.GET("/users/:id/usage/summary", api.getUsageSummary)

		// Subscriptions
		v1.PATCH("/users/:id/subscription", api.updateSubscription)
		v1.GET("/subscriptions/active", api.getActiveSubscriptions)
		v1.GET("/subscriptions/expiring", api.getExpiringSubscriptions)
	}

	// Back-office routes
	admin := router.Group("/admin", middleware.AdminAuth(cfg.Auth.JWTSecret))
	{
		admin.POST("/backups", api.createBackup)
		admin.GET("/backups", api.listBackups)
		admin.POST("/backups/:id/restore", api.restoreBackup)
		admin.GET("/stats", api.getStats)
		admin.POST("/validate", api.validateData)
	}

	return router
}

func runAutoBackup(st *store.Store, log *logging.Logger, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := st.Backup(context.Background(), "scheduled backup"); err != nil {
				log.ErrorWithErr("Scheduled backup failed", err)
			}
		}
	}
}
