package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/bootstrap"
	"github.com/igabaycare/care-api/internal/handler/health"
	"github.com/igabaycare/care-api/internal/handler/prometheus"
	"github.com/igabaycare/care-api/pkg/worker"
)

// setupHealthCheck serves liveness, readiness and metrics on the health port.
func setupHealthCheck(infra *bootstrap.Infra) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	metricsHandler := prometheus.New("igabaycare_worker", infra.Registry)
	health.NewHandler(infra.Checks(), metricsHandler.Handler()).RegisterRoutes(&engine.RouterGroup)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", infra.Config.Server.HealthPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			infra.Logger.Error(err, "health check server failed")
		}
	}()
	return srv
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Init(ctx, "worker")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise")
	}
	defer infra.Close()

	cfg := infra.Config
	repos := infra.Repos
	logger := infra.Logger

	notifier, reminders, auditor := infra.Notifications()

	processor := worker.NewOutboxProcessor(
		repos.Outbox,
		infra.Broker,
		cfg.Outbox.ToWorkerConfig(),
		logger.With("component", "outbox"),
		infra.Metrics,
	)
	retention := worker.NewRetentionWorker(cfg.Retention.Interval, logger.With("component", "retention"), infra.Metrics,
		worker.RetentionTask{Table: "webhook_events", MaxAge: cfg.Retention.WebhookEvents, Delete: repos.WebhookEvents.DeleteBefore},
		worker.RetentionTask{Table: "outbox_events", MaxAge: cfg.Retention.OutboxEvents, Delete: repos.Outbox.DeleteProcessedBefore},
		worker.RetentionTask{Table: "audit_logs", MaxAge: cfg.Retention.AuditLogs, Delete: auditor.Cleanup},
	)

	healthSrv := setupHealthCheck(infra)

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	run(func() { processor.Start(ctx) })
	run(func() { retention.Start(ctx) })
	run(func() { worker.Loop(ctx, "reminders", cfg.Reminder.PollInterval, logger, reminders.DispatchDue) })
	run(func() { worker.Loop(ctx, "notification_retry", cfg.Notification.RetryInterval, logger, notifier.RetryDue) })

	<-ctx.Done()
	logger.Info("Shutting down...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "health server forced to shutdown")
	}
}
