package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sokhunov/Distribution-Interface/cmd/distsync/cli"
	"github.com/sokhunov/Distribution-Interface/internal/app"
	"github.com/sokhunov/Distribution-Interface/internal/catalog"
	"github.com/sokhunov/Distribution-Interface/internal/ledger"
	"github.com/sokhunov/Distribution-Interface/internal/source"
	"github.com/sokhunov/Distribution-Interface/jobs"
)

const usage = `usage: distsync [command]

Commands:
  (none)          reconcile goods, then append sales after the watermark
  goods           reconcile goods only
  sales           append sales after the watermark
  backfill        replace sales of a prompted period
  enqueue <job>   hand goods or sales to the worker
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping distsync startup")
		return
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	command := ""
	if len(args) > 0 {
		command = args[0]
	}
	switch command {
	case "", "goods", "sales", "backfill", "enqueue":
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return cli.ExitOK
	default:
		fmt.Fprint(os.Stderr, usage)
		return cli.ExitInvalidInput
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return cli.ExitFailure
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	if command == "enqueue" {
		if len(args) < 2 {
			fmt.Fprint(os.Stderr, usage)
			return cli.ExitInvalidInput
		}
		if cfg.RedisAddr == "" {
			logger.Error("enqueue requires REDIS_ADDR")
			return cli.ExitFailure
		}
		client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		return cli.NewJobsCLI(client).EnqueueCommand(ctx, args[1], currentUser(), cli.SyncOptions{})
	}

	store, closeStore, err := app.OpenWarehouse(ctx, cfg)
	if err != nil {
		logger.Error("open warehouse", slog.Any("error", err))
		return cli.ExitFailure
	}
	defer closeStore()

	lock, closeLock, err := app.OpenRunLock(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return cli.ExitFailure
	}
	defer closeLock()

	gateway := source.NewClient(cfg.SourceClient())
	reconciler := catalog.NewReconciler(store, gateway, cfg.Catalog(), logger)
	sales := func(backfill bool, prompter ledger.DatePrompter) cli.SalesRunner {
		return ledger.NewIncrementer(cfg.Ledger(backfill), store, reconciler, gateway, prompter, logger)
	}

	syncCLI, err := cli.NewSyncCLI(reconciler, sales, lock)
	if err != nil {
		logger.Error("init cli", slog.Any("error", err))
		return cli.ExitFailure
	}

	opts := cli.SyncOptions{}
	switch command {
	case "goods":
		return syncCLI.GoodsCommand(ctx, opts)
	case "sales":
		return syncCLI.SalesCommand(ctx, opts, false)
	case "backfill":
		return syncCLI.SalesCommand(ctx, opts, true)
	default:
		return syncCLI.DefaultCommand(ctx, opts)
	}
}

func currentUser() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "distsync"
}
