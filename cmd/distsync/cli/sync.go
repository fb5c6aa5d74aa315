package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sokhunov/Distribution-Interface/internal/ledger"
	"github.com/sokhunov/Distribution-Interface/internal/shared"
)

// Exit codes returned by the sync commands.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
)

// DefaultMaxAttempts bounds how often an operator may re-enter a period.
const DefaultMaxAttempts = 3

// GoodsReconciler appends new catalog goods.
type GoodsReconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// SalesRunner performs one sales synchronisation.
type SalesRunner interface {
	Run(ctx context.Context) (ledger.Result, error)
}

// SalesFactory builds a sales runner for the given mode and operator prompt.
type SalesFactory func(backfill bool, prompter ledger.DatePrompter) SalesRunner

// Locker serialises runs of the same job.
type Locker interface {
	WithLock(ctx context.Context, job string, fn func(context.Context) error) error
}

// SyncCLI runs the synchronizers interactively.
type SyncCLI struct {
	goods GoodsReconciler
	sales SalesFactory
	lock  Locker
}

// NewSyncCLI constructs the CLI. lock may be nil.
func NewSyncCLI(goods GoodsReconciler, sales SalesFactory, lock Locker) (*SyncCLI, error) {
	if goods == nil || sales == nil {
		return nil, errors.New("distsync: goods reconciler and sales factory are required")
	}
	return &SyncCLI{goods: goods, sales: sales, lock: lock}, nil
}

// SyncOptions configures command IO.
type SyncOptions struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	// MaxAttempts bounds period re-entry after invalid input.
	MaxAttempts int
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// DefaultCommand reconciles goods and then extends sales incrementally.
func (c *SyncCLI) DefaultCommand(ctx context.Context, opts SyncOptions) int {
	if code := c.GoodsCommand(ctx, opts); code != ExitOK {
		return code
	}
	return c.SalesCommand(ctx, opts, false)
}

// GoodsCommand appends newly agreed goods of tracked suppliers.
func (c *SyncCLI) GoodsCommand(ctx context.Context, opts SyncOptions) int {
	opts = opts.withDefaults()
	var added int
	err := c.withLock(ctx, "goods", func(ctx context.Context) error {
		var err error
		added, err = c.goods.Reconcile(ctx)
		return err
	})
	if err != nil {
		fmt.Fprintf(opts.Stderr, "goods sync: %v\n", err)
		return ExitFailure
	}
	fmt.Fprintf(opts.Stdout, "Done! Added %d skus.\n", added)
	return ExitOK
}

// SalesCommand synchronises sales. With backfill the operator's period is
// replaced; otherwise sales after the watermark are appended.
func (c *SyncCLI) SalesCommand(ctx context.Context, opts SyncOptions, backfill bool) int {
	opts = opts.withDefaults()
	name := "sales sync"
	if backfill {
		name = "sales backfill"
	}
	runner := c.sales(backfill, NewStdinPrompter(opts.Stdin, opts.Stdout))

	var lastErr error
	err := c.withLock(ctx, "sales", func(ctx context.Context) error {
		for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
			_, err := runner.Run(ctx)
			if err == nil || shared.IsFatal(err) {
				return err
			}
			lastErr = err
			fmt.Fprintf(opts.Stderr, "%v\n", err)
		}
		return lastErr
	})
	switch {
	case err == nil:
		fmt.Fprintln(opts.Stdout, "Done!..")
		return ExitOK
	case errors.Is(err, shared.ErrValidation):
		fmt.Fprintf(opts.Stderr, "%s: giving up after %d attempts\n", name, opts.MaxAttempts)
		return ExitInvalidInput
	default:
		fmt.Fprintf(opts.Stderr, "%s: %v\n", name, err)
		return ExitFailure
	}
}

func (c *SyncCLI) withLock(ctx context.Context, job string, fn func(context.Context) error) error {
	if c.lock == nil {
		return fn(ctx)
	}
	return c.lock.WithLock(ctx, job, fn)
}
