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

	"github.com/farmdesk/farmdesk/cmd/farmdesk/cli"
	"github.com/farmdesk/farmdesk/internal/app"
	"github.com/farmdesk/farmdesk/internal/audit"
	"github.com/farmdesk/farmdesk/internal/authz"
	authzhttp "github.com/farmdesk/farmdesk/internal/authz/http"
	"github.com/farmdesk/farmdesk/internal/identity"
	"github.com/farmdesk/farmdesk/internal/observability"
	"github.com/farmdesk/farmdesk/internal/permission"
	"github.com/farmdesk/farmdesk/internal/permission/store"
	"github.com/farmdesk/farmdesk/internal/platform/cache"
	"github.com/farmdesk/farmdesk/internal/platform/db"
	"github.com/farmdesk/farmdesk/internal/rbac"
	"github.com/farmdesk/farmdesk/jobs"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "perm":
			os.Exit(cli.NewPermCLI().Run(os.Args[2:]))
		case "jobs":
			os.Exit(runJobs(os.Args[2:]))
		}
	}

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

	opts := authz.Options{Modules: permission.Modules(), Metrics: metrics, Logger: logger}
	var inspector *asynq.Inspector
	if cfg.PermissionPersist {
		dbpool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer dbpool.Close()

		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, permission cache disabled", slog.Any("error", err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}

		opts.Store = store.New(store.NewRepository(dbpool), store.NewCache(redisClient, cfg.PermissionCacheTTL), logger)

		auditor := jobs.FallbackAuditor{Inline: audit.NewRecorder(dbpool), Logger: logger}
		jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Warn("init job client, auditing inline", slog.Any("error", err))
		} else {
			defer func() {
				if err := jobClient.Close(); err != nil {
					logger.Warn("job client close", slog.Any("error", err))
				}
			}()
			auditor.Queue = jobClient
		}
		opts.Auditor = auditor

		inspector = asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
	}

	service, err := authz.NewService(opts)
	if err != nil {
		logger.Error("init authorization", slog.Any("error", err))
		os.Exit(1)
	}
	if err := service.Load(ctx); err != nil {
		logger.Warn("continuing with default permission matrix", slog.Any("error", err))
	}
	go func() {
		if err := service.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("permission watch stopped", slog.Any("error", err))
		}
	}()

	tokens := identity.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	rbacMiddleware := rbac.Middleware{Authorizer: service, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Identity:           identity.Middleware{Tokens: tokens, Logger: logger},
		RBACMiddleware:     rbacMiddleware,
		PermissionsHandler: authzhttp.NewHandler(logger, service, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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

func runJobs(args []string) int {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	jobsCLI, err := cli.NewJobsCLI(redisAddr)
	if err != nil {
		slog.Default().Error("init jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() {
		_ = jobsCLI.Close()
	}()
	return jobsCLI.Run(context.Background(), args, os.Stdout, os.Stderr)
}
