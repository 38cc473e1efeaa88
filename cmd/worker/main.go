package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/billing/internal/app"
	jobmetrics "github.com/odyssey-erp/billing/internal/jobs"
	"github.com/odyssey-erp/billing/internal/observability"
	"github.com/odyssey-erp/billing/internal/platform/cache"
	"github.com/odyssey-erp/billing/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	obs := observability.NewMetrics()
	services, err := app.BuildServices(ctx, cfg, logger, app.ServiceDeps{Metrics: obs})
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer services.Close()

	lang, err := language.Parse(cfg.MailLanguage)
	if err != nil {
		logger.Warn("mail language, falling back to English", slog.String("value", cfg.MailLanguage), slog.Any("error", err))
		lang = language.English
	}

	metrics := jobmetrics.NewMetrics(obs.Registerer())
	sendJob := jobs.NewDocumentSendJob(services.Documents, jobs.LogMailer{Logger: logger}, lang, logger, metrics)
	reconcileJob := jobs.NewTotalsReconcileJob(services.DocumentRepo, services.Documents, logger, metrics)

	reconcileTask, err := jobs.NewTotalsReconcileTask(jobs.TotalsReconcilePayload{})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cache.QueueOpts(cfg.RedisAddr),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDocumentSend, Handler: sendJob.Handle},
			{Type: jobs.TaskTotalsReconcile, Handler: reconcileJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileCron, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: obs.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
