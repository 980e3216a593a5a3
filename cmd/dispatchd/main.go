package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/rafikh/go-emergency-dispatch/internal/api"
	"github.com/rafikh/go-emergency-dispatch/internal/catalog"
	"github.com/rafikh/go-emergency-dispatch/internal/config"
	"github.com/rafikh/go-emergency-dispatch/internal/dispatch"
	"github.com/rafikh/go-emergency-dispatch/internal/events"
	"github.com/rafikh/go-emergency-dispatch/internal/logging"
	"github.com/rafikh/go-emergency-dispatch/internal/repository"
	"github.com/rafikh/go-emergency-dispatch/internal/resources"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, "dispatchd")

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logging.Fatalf("Failed to load reference catalog: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seeds the inventory on first run and rebuilds outstanding
	// deployments after a restart.
	ledger, err := resources.NewLedger(ctx, db, cat.Inventory())
	if err != nil {
		logging.Fatalf("Failed to initialize resource ledger: %v", err)
	}

	broadcaster := events.NewBroadcaster()

	dispatcher := dispatch.New(db, cat, ledger, broadcaster, dispatch.Options{
		AuditWorkers: cfg.Audit.Workers,
		AuditBuffer:  cfg.Audit.BufferSize,
	})
	dispatcher.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.API.RateLimitRPS, cfg.API.RateLimitBurst))

	handler := api.NewHandler(dispatcher, broadcaster)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	// Drain the audit queue before the context dies, then stop the
	// event streams.
	dispatcher.Stop()
	broadcaster.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
