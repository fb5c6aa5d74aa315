// Package warehouse persists synchronized goods and sales into the analytical store.
package warehouse

import (
	"context"
	"time"
)

const (
	// GoodsTable holds one row per tracked catalog code.
	GoodsTable = "DistributionGoods"
	// SalesTable holds daily sales aggregates with a surrogate id.
	SalesTable = "DistributionSales"
)

var (
	goodsColumns = []string{"code", "name", "supplier_name", "brand", "log_date"}
	salesColumns = []string{
		"date_", "branch", "code", "name", "quantity_sold", "turnover", "turnover_wo_vat",
		"cogs", "margin", "margin_percent", "client", "log_date",
	}
)

// GoodsRecord is a catalog entry of a tracked supplier.
type GoodsRecord struct {
	Code         string
	Name         string
	SupplierName string
	// Brand is nil when the supplier code has no entry in the supplier table.
	Brand    *string
	SyncedAt time.Time
}

// SaleRecord is one (code, day, branch, customer) sales aggregate.
type SaleRecord struct {
	Date            time.Time
	Branch          string
	Code            string
	Name            string
	Quantity        float64
	Turnover        float64
	TurnoverExclVAT float64
	CostOfGoods     float64
	Margin          float64
	MarginPercent   float64
	Customer        string
	SyncedAt        time.Time
}

// Store exposes the reads and scoped writes used by the synchronizers.
type Store interface {
	GoodsCodes(ctx context.Context) ([]string, error)
	// MaxSaleDate returns the sales watermark; ok is false when the table is empty.
	MaxSaleDate(ctx context.Context) (date time.Time, ok bool, err error)
	// WithTx commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Tx exposes writes available inside a transaction.
type Tx interface {
	AppendGoods(ctx context.Context, rows []GoodsRecord) (int64, error)
	AppendSales(ctx context.Context, rows []SaleRecord) (int64, error)
	// DeleteSales removes sales whose date lies in [from, to].
	DeleteSales(ctx context.Context, from, to time.Time) (int64, error)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
