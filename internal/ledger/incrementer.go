// Package ledger mirrors the 1C sales ledger of tracked goods into the
// warehouse, either incrementally from the stored watermark or by replacing a
// user supplied period.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sokhunov/Distribution-Interface/internal/shared"
	"github.com/sokhunov/Distribution-Interface/internal/source"
	"github.com/sokhunov/Distribution-Interface/internal/warehouse"
)

// DefaultTrailingDays keeps the most recent days out of incremental runs while
// the source may still post documents for them.
const DefaultTrailingDays = 2

// CodeSource yields the goods codes whose sales are tracked.
type CodeSource interface {
	KnownCodes(ctx context.Context) ([]string, error)
}

// DatePrompter asks an operator for a raw start and end date.
type DatePrompter interface {
	PromptDates(ctx context.Context) (start, end string, err error)
}

// Config configures the incrementer.
type Config struct {
	// Backfill replaces a prompted period instead of extending the watermark.
	Backfill     bool
	TrailingDays int
	MinYear      int
	Customers    CustomerPolicy
}

// Result summarises a run.
type Result struct {
	Start   time.Time
	End     time.Time
	Fetched int
	Written int64
	Deleted int64
	// Skipped is true when the incremental window was empty.
	Skipped bool
}

// Incrementer synchronises sales aggregates into the warehouse.
type Incrementer struct {
	cfg      Config
	store    warehouse.Store
	codes    CodeSource
	gateway  source.Gateway
	prompter DatePrompter
	logger   *slog.Logger
	clock    func() time.Time
}

// NewIncrementer constructs the incrementer. prompter may be nil for
// unattended runs; a run that needs dates then fails with a precondition error.
func NewIncrementer(cfg Config, store warehouse.Store, codes CodeSource, gateway source.Gateway, prompter DatePrompter, logger *slog.Logger) *Incrementer {
	if cfg.TrailingDays <= 0 {
		cfg.TrailingDays = DefaultTrailingDays
	}
	if cfg.MinYear <= 0 {
		cfg.MinYear = DefaultMinYear
	}
	if cfg.Customers == (CustomerPolicy{}) {
		cfg.Customers = DefaultCustomerPolicy()
	}
	return &Incrementer{
		cfg:      cfg,
		store:    store,
		codes:    codes,
		gateway:  gateway,
		prompter: prompter,
		logger:   logger,
		clock:    time.Now,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (i *Incrementer) WithClock(clock func() time.Time) {
	if i != nil && clock != nil {
		i.clock = clock
	}
}

// IncrementalWindow returns the period following watermark up to today minus
// trailing days. ok is false when that period is empty.
func IncrementalWindow(watermark, today time.Time, trailing int) (start, end time.Time, ok bool) {
	start = day(watermark).AddDate(0, 0, 1)
	end = day(today).AddDate(0, 0, -trailing)
	return start, end, !start.After(end)
}

// Run performs one synchronisation. In backfill mode the fetched period
// replaces the stored one atomically; otherwise rows after the watermark are
// appended.
func (i *Incrementer) Run(ctx context.Context) (Result, error) {
	start, end, ok, err := i.window(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Start: start, End: end}
	if !ok {
		res.Skipped = true
		i.log().Info("sales are up to date", slog.String("next", start.Format(time.DateOnly)), slog.String("until", end.Format(time.DateOnly)))
		return res, nil
	}

	records, err := i.fetch(ctx, start, end)
	if err != nil {
		return res, err
	}
	res.Fetched = len(records)

	if !i.cfg.Backfill && len(records) == 0 {
		i.log().Info("no sales in window", slog.String("start", start.Format(time.DateOnly)), slog.String("end", end.Format(time.DateOnly)))
		return res, nil
	}

	var deleted, written int64
	err = i.store.WithTx(ctx, func(ctx context.Context, tx warehouse.Tx) error {
		if i.cfg.Backfill {
			n, err := tx.DeleteSales(ctx, start, end)
			if err != nil {
				return err
			}
			deleted = n
		}
		n, err := tx.AppendSales(ctx, records)
		if err != nil {
			return err
		}
		written = n
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Deleted, res.Written = deleted, written

	i.log().Info("synced sales",
		slog.Bool("backfill", i.cfg.Backfill),
		slog.String("start", start.Format(time.DateOnly)),
		slog.String("end", end.Format(time.DateOnly)),
		slog.Int("fetched", res.Fetched),
		slog.Int64("deleted", res.Deleted),
		slog.Int64("written", res.Written),
	)
	return res, nil
}

func (i *Incrementer) window(ctx context.Context) (time.Time, time.Time, bool, error) {
	if i.cfg.Backfill {
		start, end, err := i.promptWindow(ctx)
		return start, end, err == nil, err
	}

	watermark, found, err := i.store.MaxSaleDate(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if !found {
		i.log().Info("sales table is empty, asking for the initial period")
		start, end, err := i.promptWindow(ctx)
		return start, end, err == nil, err
	}
	start, end, ok := IncrementalWindow(watermark, i.clock(), i.cfg.TrailingDays)
	return start, end, ok, nil
}

func (i *Incrementer) promptWindow(ctx context.Context) (time.Time, time.Time, error) {
	if i.prompter == nil {
		return time.Time{}, time.Time{}, shared.Precondition("a sales period is required but no operator is attached")
	}
	startRaw, endRaw, err := i.prompter.PromptDates(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("ledger: prompt dates: %w", err)
	}
	return ValidateDates(startRaw, endRaw, i.cfg.MinYear)
}

func (i *Incrementer) fetch(ctx context.Context, start, end time.Time) ([]warehouse.SaleRecord, error) {
	codes, err := i.codes.KnownCodes(ctx)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, shared.Precondition("goods table is empty, run the goods sync first")
	}

	begin, finish := source.PeriodBounds(start, end)
	cur, err := i.gateway.Query(ctx, salesQuery(begin, finish, codes))
	if err != nil {
		return nil, err
	}
	rows, err := source.Collect[sourceSale](cur)
	if err != nil {
		return nil, err
	}
	return i.records(rows, start, end), nil
}

// records maps source rows to sales ordered by date. Every row of a batch
// shares one sync timestamp.
func (i *Incrementer) records(rows []sourceSale, start, end time.Time) []warehouse.SaleRecord {
	syncedAt := i.clock()
	records := make([]warehouse.SaleRecord, 0, len(rows))
	for _, row := range rows {
		date := row.Date.CalendarDay()
		if date.Before(start) || date.After(end) {
			i.log().Warn("sale outside requested period", slog.String("code", row.Code), slog.String("date", date.Format(time.DateOnly)))
			continue
		}
		margin, percent := ComputeMargin(row.TurnoverExclVAT, row.COGS)
		records = append(records, warehouse.SaleRecord{
			Date:            date,
			Branch:          row.Shop,
			Code:            row.Code,
			Name:            row.Name,
			Quantity:        row.Qty.InexactFloat64(),
			Turnover:        row.Turnover.InexactFloat64(),
			TurnoverExclVAT: row.TurnoverExclVAT.InexactFloat64(),
			CostOfGoods:     row.COGS.InexactFloat64(),
			Margin:          margin.InexactFloat64(),
			MarginPercent:   percent.InexactFloat64(),
			Customer:        i.cfg.Customers.NormalizeCustomer(row.Shop, row.CustomerCode, row.Customer),
			SyncedAt:        syncedAt,
		})
	}
	sort.SliceStable(records, func(a, b int) bool {
		return records[a].Date.Before(records[b].Date)
	})
	return records
}

func (i *Incrementer) log() *slog.Logger {
	job := "sales_sync"
	if i != nil && i.cfg.Backfill {
		job = "sales_backfill"
	}
	if i != nil && i.logger != nil {
		return i.logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
