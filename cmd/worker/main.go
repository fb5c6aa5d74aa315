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
	"golang.org/x/sync/errgroup"

	"github.com/sokhunov/Distribution-Interface/internal/app"
	"github.com/sokhunov/Distribution-Interface/internal/catalog"
	jobmetrics "github.com/sokhunov/Distribution-Interface/internal/jobs"
	"github.com/sokhunov/Distribution-Interface/internal/ledger"
	"github.com/sokhunov/Distribution-Interface/internal/observability"
	"github.com/sokhunov/Distribution-Interface/internal/source"
	"github.com/sokhunov/Distribution-Interface/jobs"
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
	if cfg.RedisAddr == "" {
		slog.Default().Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	store, closeStore, err := app.OpenWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	lock, closeLock, err := app.OpenRunLock(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLock()

	gateway := source.NewClient(cfg.SourceClient())
	if err := gateway.Ping(ctx); err != nil {
		logger.Warn("source ping", slog.Any("error", err))
	}

	opsMetrics := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(opsMetrics.Registerer())
	reconciler := catalog.NewReconciler(store, gateway, cfg.Catalog(), logger)
	incrementer := ledger.NewIncrementer(cfg.Ledger(false), store, reconciler, gateway, nil, logger)

	goodsJob := jobs.NewGoodsSyncJob(reconciler, lock, logger, metrics)
	salesJob := jobs.NewSalesSyncJob(incrementer, store, lock, logger, metrics)

	goodsTask, err := jobs.NewGoodsSyncTask("scheduler")
	if err != nil {
		return err
	}
	salesTask, err := jobs.NewSalesSyncTask("scheduler")
	if err != nil {
		return err
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGoodsSync, Handler: goodsJob.Handle},
			{Type: jobs.TaskSalesSync, Handler: salesJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.GoodsSyncCron, Task: goodsTask},
			{Spec: cfg.SalesSyncCron, Task: salesTask},
		},
		Location: time.Local,
	})
	if err != nil {
		return err
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	client := jobs.NewClient(redisOpts)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	server := &http.Server{
		Addr: cfg.OpsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:     logger,
			Config:     cfg,
			Metrics:    opsMetrics,
			JobHandler: jobs.NewHandler(inspector, client, logger).Routes(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Run(ctx)
	})
	group.Go(func() error {
		logger.Info("ops server listening", slog.String("addr", cfg.OpsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
