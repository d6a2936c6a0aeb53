// Command saga-orchestrator runs the background half of the saga:
// the broker gateway's confirmation consumer loop, the stuck-saga
// sweeper, and a JWT-guarded admin/recovery HTTP surface. It shares
// the durable store and coordination store with cmd/admission-api but
// runs as its own process, mirroring the source monorepo's
// worker-per-concern cmd layout (cmd/saga-payment-worker,
// cmd/inventory-worker, cmd/seat-release-worker).
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

	"github.com/prohmpiriya/saga-travel-orchestrator/internal/adminhttp"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/config"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/di"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/domain"
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
		ServiceName: "saga-orchestrator",
		Development: !cfg.IsProduction(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get().Sugar()
	appLog.Info("starting saga-orchestrator")

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

	// The broker consumer dispatches every inbound confirmation to the
	// matching leg adapter's ConfirmReservation, which performs the
	// join-point test and calls Aggregate at most once per saga.
	go func() {
		handler := func(ctx context.Context, leg domain.Leg, event domain.ConfirmationEvent) error {
			adapter, ok := container.Adapters[leg]
			if !ok {
				return fmt.Errorf("no adapter registered for leg %q", leg)
			}
			return adapter.ConfirmReservation(ctx, event.RequestID, event.ReservationID)
		}
		if err := container.Broker.Start(ctx, handler); err != nil && ctx.Err() == nil {
			appLog.Errorf("broker consumer loop stopped: %v", err)
		}
	}()

	if err := container.Sweeper.Start(ctx); err != nil {
		appLog.Fatalf("failed to start sweeper: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	admin := router.Group("/admin", adminhttp.JWTGuard(cfg.JWT.Secret))
	adminhttp.New(container.Store, container.Adapters, container.DeadLetters, container.Orchestrator).Register(admin)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLog.Infof("saga-orchestrator admin surface listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalf("admin http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down saga-orchestrator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Errorf("admin http server forced shutdown: %v", err)
	}

	appLog.Info("saga-orchestrator exited gracefully")
}
