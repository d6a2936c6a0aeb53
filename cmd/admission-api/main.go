// Command admission-api is the thin HTTP surface that admits booking
// requests (spec.md §1: explicitly out of the orchestrator core). It
// shares the durable store, coordination store, and broker gateway
// with cmd/saga-orchestrator but only ever calls Execute — it never
// runs the broker consumer loop or the sweeper.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/config"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/di"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/admissionhttp"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/logger"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       "info",
		ServiceName: "admission-api",
		Development: !cfg.IsProduction(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get().Sugar()
	appLog.Info("starting admission-api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:       cfg.OTel.Enabled,
		ServiceName:   cfg.OTel.ServiceName,
		Environment:   cfg.App.Environment,
		CollectorAddr: cfg.OTel.CollectorAddr,
		SampleRatio:   cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warnf("telemetry init failed, continuing without tracing: %v", err)
	} else {
		defer telemetry.Shutdown(context.Background())
	}

	container, err := di.Build(ctx, cfg)
	if err != nil {
		appLog.Fatalf("failed to build dependency container: %v", err)
	}
	defer container.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.GinMiddleware())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	admissionhttp.New(container.Orchestrator, container.Notify).Register(v1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLog.Infof("admission-api listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalf("admission http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down admission-api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Errorf("admission http server forced shutdown: %v", err)
	}

	appLog.Info("admission-api exited gracefully")
}
