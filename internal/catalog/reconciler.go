// Package catalog appends newly agreed goods of tracked distribution suppliers
// to the warehouse catalog.
package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/sokhunov/Distribution-Interface/internal/shared"
	"github.com/sokhunov/Distribution-Interface/internal/source"
	"github.com/sokhunov/Distribution-Interface/internal/warehouse"
)

// DefaultPlaceholderCode is the 1C prepayment item. It never belongs to a
// tracked supplier, so excluding it excludes nothing real.
const DefaultPlaceholderCode = "00000001"

// Config configures the reconciler.
type Config struct {
	Suppliers SupplierBrands
	// PlaceholderCode replaces an empty exclusion list.
	PlaceholderCode string
}

// Reconciler fetches goods missing from the warehouse and appends them.
type Reconciler struct {
	store       warehouse.Store
	gateway     source.Gateway
	suppliers   SupplierBrands
	placeholder string
	logger      *slog.Logger
	clock       func() time.Time
}

// NewReconciler constructs the reconciler.
func NewReconciler(store warehouse.Store, gateway source.Gateway, cfg Config, logger *slog.Logger) *Reconciler {
	placeholder := cfg.PlaceholderCode
	if placeholder == "" {
		placeholder = DefaultPlaceholderCode
	}
	return &Reconciler{
		store:       store,
		gateway:     gateway,
		suppliers:   cfg.Suppliers,
		placeholder: placeholder,
		logger:      logger,
		clock:       time.Now,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (r *Reconciler) WithClock(clock func() time.Time) {
	if r != nil && clock != nil {
		r.clock = clock
	}
}

// KnownCodes returns the goods codes already present in the warehouse.
func (r *Reconciler) KnownCodes(ctx context.Context) ([]string, error) {
	return r.store.GoodsCodes(ctx)
}

// Reconcile appends every tracked-supplier product not yet in the warehouse and
// reports how many goods were written.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	if r.suppliers.Len() == 0 {
		return 0, shared.Precondition("tracked supplier table is empty")
	}

	known, err := r.KnownCodes(ctx)
	if err != nil {
		return 0, err
	}

	cur, err := r.gateway.Query(ctx, goodsQuery(r.suppliers.Codes(), r.exclusion(known)))
	if err != nil {
		return 0, err
	}
	rows, err := source.Collect[sourceGoods](cur)
	if err != nil {
		return 0, err
	}

	records := r.records(rows, known)
	if len(records) == 0 {
		r.log().Info("no new goods", slog.Int("known", len(known)))
		return 0, nil
	}

	err = r.store.WithTx(ctx, func(ctx context.Context, tx warehouse.Tx) error {
		_, err := tx.AppendGoods(ctx, records)
		return err
	})
	if err != nil {
		return 0, err
	}

	r.log().Info("appended goods", slog.Int("added", len(records)), slog.Int("known", len(known)))
	return len(records), nil
}

func (r *Reconciler) exclusion(known []string) []string {
	if len(known) == 0 {
		return []string{r.placeholder}
	}
	return known
}

// records maps source rows to goods, keeping the last row seen per code and
// dropping codes the warehouse already holds.
func (r *Reconciler) records(rows []sourceGoods, known []string) []warehouse.GoodsRecord {
	skip := make(map[string]struct{}, len(known))
	for _, code := range known {
		skip[code] = struct{}{}
	}

	syncedAt := r.clock()
	index := make(map[string]int, len(rows))
	records := make([]warehouse.GoodsRecord, 0, len(rows))
	for _, row := range rows {
		if _, ok := skip[row.Code]; ok {
			continue
		}
		rec := warehouse.GoodsRecord{
			Code:         row.Code,
			Name:         row.Name,
			SupplierName: row.Supplier,
			SyncedAt:     syncedAt,
		}
		if brand, ok := r.suppliers.Brand(row.SupplierCode); ok {
			rec.Brand = &brand
		} else {
			r.log().Warn("supplier has no brand", slog.String("code", row.Code), slog.String("supplier_code", row.SupplierCode))
		}
		if i, dup := index[row.Code]; dup {
			records[i] = rec
			continue
		}
		index[row.Code] = len(records)
		records = append(records, rec)
	}
	return records
}

func (r *Reconciler) log() *slog.Logger {
	if r != nil && r.logger != nil {
		return r.logger.With(slog.String("job", "goods_sync"))
	}
	return slog.Default().With(slog.String("job", "goods_sync"))
}
