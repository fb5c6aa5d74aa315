package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sokhunov/Distribution-Interface/internal/jobs"
	"github.com/sokhunov/Distribution-Interface/internal/ledger"
	"github.com/sokhunov/Distribution-Interface/internal/warehouse"
)

// GoodsReconciler appends new catalog goods.
type GoodsReconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// SalesRunner performs one sales synchronisation.
type SalesRunner interface {
	Run(ctx context.Context) (ledger.Result, error)
}

// Locker serialises runs of the same job.
type Locker interface {
	WithLock(ctx context.Context, job string, fn func(context.Context) error) error
}

// Watermarker reads the sales watermark for reporting.
type Watermarker interface {
	MaxSaleDate(ctx context.Context) (time.Time, bool, error)
}

// GoodsSyncJob handles TaskGoodsSync.
type GoodsSyncJob struct {
	Reconciler GoodsReconciler
	Lock       Locker
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewGoodsSyncJob initialises the goods sync handler.
func NewGoodsSyncJob(reconciler GoodsReconciler, lock Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *GoodsSyncJob {
	return &GoodsSyncJob{Reconciler: reconciler, Lock: lock, Logger: logger, Metrics: metrics}
}

// Handle executes the goods reconciliation.
func (j *GoodsSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("goods sync: handler not configured")
	}
	payload, err := decodeSyncPayload(t)
	if err != nil {
		return fmt.Errorf("goods sync: decode payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskGoodsSync)
	logger := taskLogger(ctx, j.Logger, "goods_sync", payload)
	start := time.Now()
	logger.Info("starting goods sync")

	err = withLock(ctx, j.Lock, "goods", func(ctx context.Context) error {
		added, err := j.Reconciler.Reconcile(ctx)
		if err != nil {
			return err
		}
		j.Metrics.AddRows(warehouse.GoodsTable, "written", int64(added))
		logger.Info("completed goods sync", slog.Int("added", added), slog.Duration("duration", time.Since(start)))
		return nil
	})
	if err != nil {
		logger.Error("goods sync failed", slog.Any("error", err))
	}
	return tracker.End(final(err))
}

// SalesSyncJob handles TaskSalesSync. It never prompts, so an empty sales
// table must be seeded by an operator backfill first.
type SalesSyncJob struct {
	Runner    SalesRunner
	Watermark Watermarker
	Lock      Locker
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewSalesSyncJob initialises the sales sync handler.
func NewSalesSyncJob(runner SalesRunner, watermark Watermarker, lock Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *SalesSyncJob {
	return &SalesSyncJob{Runner: runner, Watermark: watermark, Lock: lock, Logger: logger, Metrics: metrics}
}

// Handle executes the incremental sales sync.
func (j *SalesSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil {
		return errors.New("sales sync: handler not configured")
	}
	payload, err := decodeSyncPayload(t)
	if err != nil {
		return fmt.Errorf("sales sync: decode payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskSalesSync)
	logger := taskLogger(ctx, j.Logger, "sales_sync", payload)
	start := time.Now()
	logger.Info("starting sales sync")

	err = withLock(ctx, j.Lock, "sales", func(ctx context.Context) error {
		res, err := j.Runner.Run(ctx)
		if err != nil {
			return err
		}
		if res.Skipped {
			tracker.Skipped()
		}
		j.Metrics.AddRows(warehouse.SalesTable, "deleted", res.Deleted)
		j.Metrics.AddRows(warehouse.SalesTable, "written", res.Written)
		logger.Info("completed sales sync",
			slog.Bool("skipped", res.Skipped),
			slog.String("start", res.Start.Format(time.DateOnly)),
			slog.String("end", res.End.Format(time.DateOnly)),
			slog.Int64("written", res.Written),
			slog.Duration("duration", time.Since(start)),
		)
		return nil
	})
	if err != nil {
		logger.Error("sales sync failed", slog.Any("error", err))
	} else {
		j.reportWatermark(ctx, logger)
	}
	return tracker.End(final(err))
}

func (j *SalesSyncJob) reportWatermark(ctx context.Context, logger *slog.Logger) {
	if j.Watermark == nil {
		return
	}
	day, ok, err := j.Watermark.MaxSaleDate(ctx)
	if err != nil {
		logger.Warn("read sales watermark", slog.Any("error", err))
		return
	}
	if ok {
		j.Metrics.SetSalesWatermark(day)
	}
}

func withLock(ctx context.Context, lock Locker, job string, fn func(context.Context) error) error {
	if lock == nil {
		return fn(ctx)
	}
	return lock.WithLock(ctx, job, fn)
}

// final marks every failure as terminal. A failed sync is reported and waits
// for the next scheduled or manual run.
func final(err error) error {
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		return err
	}
	return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
}

func taskLogger(ctx context.Context, logger *slog.Logger, job string, payload SyncPayload) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", job))
	if id, ok := asynq.GetTaskID(ctx); ok {
		logger = logger.With(slog.String("task_id", id))
	}
	if payload.RequestedBy != "" {
		logger = logger.With(slog.String("requested_by", payload.RequestedBy))
	}
	return logger
}
