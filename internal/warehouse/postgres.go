package warehouse

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sokhunov/Distribution-Interface/internal/platform/db"
	"github.com/sokhunov/Distribution-Interface/internal/shared"
)

// PostgresStore persists synchronized data in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS "DistributionGoods" (
		code          TEXT PRIMARY KEY,
		name          TEXT,
		supplier_name TEXT,
		brand         TEXT,
		log_date      TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS "DistributionSales" (
		id              BIGSERIAL PRIMARY KEY,
		date_           DATE NOT NULL,
		branch          TEXT,
		code            TEXT,
		name            TEXT,
		quantity_sold   DOUBLE PRECISION,
		turnover        DOUBLE PRECISION,
		turnover_wo_vat DOUBLE PRECISION,
		cogs            DOUBLE PRECISION,
		margin          DOUBLE PRECISION,
		margin_percent  DOUBLE PRECISION,
		client          TEXT,
		log_date        TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS distribution_sales_date_idx ON "DistributionSales" (date_)`,
}

// NewPostgresStore constructs PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the warehouse tables when they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return shared.Store("bootstrap postgres", err)
		}
	}
	return nil
}

func (s *PostgresStore) GoodsCodes(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT code FROM "DistributionGoods" ORDER BY code`)
	if err != nil {
		return nil, shared.Store("read goods codes", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, shared.Store("read goods codes", err)
	}
	return codes, nil
}

func (s *PostgresStore) MaxSaleDate(ctx context.Context) (time.Time, bool, error) {
	var max pgtype.Date
	if err := s.pool.QueryRow(ctx, `SELECT MAX(date_) FROM "DistributionSales"`).Scan(&max); err != nil {
		return time.Time{}, false, shared.Store("read sales watermark", err)
	}
	if !max.Valid {
		return time.Time{}, false, nil
	}
	return dateOnly(max.Time), true, nil
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
	if err != nil {
		return shared.Store("transaction", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) AppendGoods(ctx context.Context, rows []GoodsRecord) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{GoodsTable}, goodsColumns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		r := rows[i]
		return []any{r.Code, r.Name, r.SupplierName, r.Brand, r.SyncedAt}, nil
	}))
	if err != nil {
		return 0, shared.Store("append goods", err)
	}
	return n, nil
}

func (t *pgTx) AppendSales(ctx context.Context, rows []SaleRecord) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{SalesTable}, salesColumns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		r := rows[i]
		return []any{
			dateOnly(r.Date), r.Branch, r.Code, r.Name, r.Quantity, r.Turnover, r.TurnoverExclVAT,
			r.CostOfGoods, r.Margin, r.MarginPercent, r.Customer, r.SyncedAt,
		}, nil
	}))
	if err != nil {
		return 0, shared.Store("append sales", err)
	}
	return n, nil
}

func (t *pgTx) DeleteSales(ctx context.Context, from, to time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM "DistributionSales" WHERE date_ BETWEEN $1 AND $2`, dateOnly(from), dateOnly(to))
	if err != nil {
		return 0, shared.Store("delete sales", err)
	}
	return tag.RowsAffected(), nil
}
