package warehouse

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sokhunov/Distribution-Interface/internal/shared"
)

const sqliteDateLayout = "2006-01-02"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS DistributionGoods (
		code          TEXT PRIMARY KEY,
		name          TEXT,
		supplier_name TEXT,
		brand         TEXT,
		log_date      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS DistributionSales (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		date_           TEXT NOT NULL,
		branch          TEXT,
		code            TEXT,
		name            TEXT,
		quantity_sold   REAL,
		turnover        REAL,
		turnover_wo_vat REAL,
		cogs            REAL,
		margin          REAL,
		margin_percent  REAL,
		client          TEXT,
		log_date        TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS distribution_sales_date_idx ON DistributionSales (date_)`,
}

// SQLiteStore keeps the warehouse in an embedded SQLite file.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (creating if needed) the SQLite warehouse at dsn.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	conn, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, shared.Store("open sqlite", err)
	}
	// Single writer; also keeps :memory: databases on one connection.
	conn.SetMaxOpenConns(1)
	for _, stmt := range sqliteSchema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return nil, shared.Store("bootstrap sqlite", err)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GoodsCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := s.db.SelectContext(ctx, &codes, `SELECT code FROM DistributionGoods ORDER BY code`); err != nil {
		return nil, shared.Store("read goods codes", err)
	}
	return codes, nil
}

func (s *SQLiteStore) MaxSaleDate(ctx context.Context) (time.Time, bool, error) {
	var max sql.NullString
	if err := s.db.GetContext(ctx, &max, `SELECT MAX(date_) FROM DistributionSales`); err != nil {
		return time.Time{}, false, shared.Store("read sales watermark", err)
	}
	if !max.Valid || max.String == "" {
		return time.Time{}, false, nil
	}
	parsed, err := time.Parse(sqliteDateLayout, max.String)
	if err != nil {
		return time.Time{}, false, shared.Store("parse sales watermark", err)
	}
	return parsed, true, nil
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return shared.Store("begin tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return shared.Store("transaction", err)
	}
	if err := tx.Commit(); err != nil {
		return shared.Store("commit tx", err)
	}
	return nil
}

type sqliteGoodsRow struct {
	Code         string         `db:"code"`
	Name         string         `db:"name"`
	SupplierName string         `db:"supplier_name"`
	Brand        sql.NullString `db:"brand"`
	LogDate      string         `db:"log_date"`
}

type sqliteSaleRow struct {
	Date            string  `db:"date_"`
	Branch          string  `db:"branch"`
	Code            string  `db:"code"`
	Name            string  `db:"name"`
	Quantity        float64 `db:"quantity_sold"`
	Turnover        float64 `db:"turnover"`
	TurnoverExclVAT float64 `db:"turnover_wo_vat"`
	CostOfGoods     float64 `db:"cogs"`
	Margin          float64 `db:"margin"`
	MarginPercent   float64 `db:"margin_percent"`
	Customer        string  `db:"client"`
	LogDate         string  `db:"log_date"`
}

type sqliteTx struct {
	tx *sqlx.Tx
}

func (t *sqliteTx) AppendGoods(ctx context.Context, rows []GoodsRecord) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := t.tx.PrepareNamedContext(ctx, `INSERT INTO DistributionGoods (code, name, supplier_name, brand, log_date)
		VALUES (:code, :name, :supplier_name, :brand, :log_date)`)
	if err != nil {
		return 0, shared.Store("prepare goods insert", err)
	}
	defer stmt.Close()

	var n int64
	for _, r := range rows {
		row := sqliteGoodsRow{
			Code:         r.Code,
			Name:         r.Name,
			SupplierName: r.SupplierName,
			LogDate:      r.SyncedAt.UTC().Format(time.RFC3339),
		}
		if r.Brand != nil {
			row.Brand = sql.NullString{String: *r.Brand, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return n, shared.Store("append goods", err)
		}
		n++
	}
	return n, nil
}

func (t *sqliteTx) AppendSales(ctx context.Context, rows []SaleRecord) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := t.tx.PrepareNamedContext(ctx, `INSERT INTO DistributionSales
		(date_, branch, code, name, quantity_sold, turnover, turnover_wo_vat, cogs, margin, margin_percent, client, log_date)
		VALUES (:date_, :branch, :code, :name, :quantity_sold, :turnover, :turnover_wo_vat, :cogs, :margin, :margin_percent, :client, :log_date)`)
	if err != nil {
		return 0, shared.Store("prepare sales insert", err)
	}
	defer stmt.Close()

	var n int64
	for _, r := range rows {
		row := sqliteSaleRow{
			Date:            r.Date.Format(sqliteDateLayout),
			Branch:          r.Branch,
			Code:            r.Code,
			Name:            r.Name,
			Quantity:        r.Quantity,
			Turnover:        r.Turnover,
			TurnoverExclVAT: r.TurnoverExclVAT,
			CostOfGoods:     r.CostOfGoods,
			Margin:          r.Margin,
			MarginPercent:   r.MarginPercent,
			Customer:        r.Customer,
			LogDate:         r.SyncedAt.UTC().Format(time.RFC3339),
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return n, shared.Store("append sales", err)
		}
		n++
	}
	return n, nil
}

func (t *sqliteTx) DeleteSales(ctx context.Context, from, to time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM DistributionSales WHERE date_ BETWEEN ? AND ?`,
		from.Format(sqliteDateLayout), to.Format(sqliteDateLayout))
	if err != nil {
		return 0, shared.Store("delete sales", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, shared.Store("delete sales", err)
	}
	return n, nil
}
