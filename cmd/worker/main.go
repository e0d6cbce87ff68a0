package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmdesk/farmdesk/internal/app"
	"github.com/farmdesk/farmdesk/internal/audit"
	jobmetrics "github.com/farmdesk/farmdesk/internal/jobs"
	"github.com/farmdesk/farmdesk/internal/permission"
	"github.com/farmdesk/farmdesk/internal/permission/store"
	"github.com/farmdesk/farmdesk/internal/platform/cache"
	"github.com/farmdesk/farmdesk/internal/platform/db"
	"github.com/farmdesk/farmdesk/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionAudit, Handler: jobs.AuditHandler{
				Writer:  audit.NewRecorder(pool),
				Metrics: metrics,
				Logger:  logger,
			}},
			{Type: jobs.TaskPermissionVerify, Handler: jobs.VerifyHandler{
				Head:    store.NewRepository(pool),
				Cache:   store.NewCache(redisClient, cfg.PermissionCacheTTL),
				Modules: permission.Modules(),
				Metrics: metrics,
				Logger:  logger,
			}},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PermissionVerify, Task: jobs.NewVerifyTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
