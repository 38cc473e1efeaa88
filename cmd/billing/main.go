package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/billing/internal/app"
	"github.com/odyssey-erp/billing/internal/clients"
	"github.com/odyssey-erp/billing/internal/documents"
	"github.com/odyssey-erp/billing/internal/observability"
	"github.com/odyssey-erp/billing/internal/platform/cache"
	"github.com/odyssey-erp/billing/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	queueOpts := cache.QueueOpts(cfg.RedisAddr)
	jobClient := jobs.NewClient(queueOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	services, err := app.BuildServices(ctx, cfg, logger, app.ServiceDeps{
		Metrics:  metrics,
		Notifier: jobClient,
	})
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer services.Close()

	inspector := asynq.NewInspector(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DocumentsHandler: documents.NewHandler(logger, services.Documents),
		ClientsHandler:   clients.NewHandler(logger, services.Clients),
		JobHandler:       jobs.NewHandler(inspector, jobClient, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("store", cfg.StoreDriver),
			slog.Bool("strict_conversions", cfg.ConversionStrict))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
