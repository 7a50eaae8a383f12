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
	"github.com/joho/godotenv"

	"sentinel/internal/config"
	"sentinel/internal/container"
	"sentinel/internal/logging"
	"sentinel/ui"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	gin.SetMode(cfg.Server.GinMode)

	logger := logging.New(logging.Config{
		FilePath:   cfg.Logging.FilePath,
		Level:      cfg.Logging.Level,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
		DevMode:    cfg.Logging.DevMode,
	})
	defer logger.Sync()

	c, err := container.New(cfg, logger)
	if err != nil {
		logger.Fatalw("startup failed", "error", err)
	}
	defer c.Close()

	if cfg.Fleet.Autostart {
		c.Scheduler.StartAll()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Scheduler.Run(ctx)

	// Ops listener: prometheus metrics and health.
	opsServer := &http.Server{
		Addr:              ":" + cfg.Server.OpsPort,
		Handler:           c.Metrics.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infow("ops server listening", "addr", opsServer.Addr)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("ops server failed", "error", err)
		}
	}()

	apiServer := ui.NewServer(c.FleetService, c.AnalysisService, logger)
	go func() {
		if err := apiServer.Run(":" + cfg.Server.Port); err != nil {
			logger.Fatalw("api server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	cancel()
	c.Scheduler.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("api shutdown", "error", err)
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("ops shutdown", "error", err)
	}
}
