package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sokhunov/Distribution-Interface/internal/shared"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func countSales(t *testing.T, s *SQLiteStore) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.GetContext(context.Background(), &n, `SELECT COUNT(*) FROM DistributionSales`))
	return n
}

func sale(date time.Time, code string) SaleRecord {
	return SaleRecord{Date: date, Branch: "ДМ АШАН", Code: code, Name: "Yogurt", Quantity: 2, Turnover: 120, TurnoverExclVAT: 100, CostOfGoods: 80, Margin: 20, MarginPercent: 20, Customer: "B2B"}
}

func TestSQLiteGoodsRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	codes, err := store.GoodsCodes(ctx)
	require.NoError(t, err)
	require.Empty(t, codes)

	brand := "DANONE"
	now := time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	err = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		n, err := tx.AppendGoods(ctx, []GoodsRecord{
			{Code: "0002", Name: "Kefir", SupplierName: "Danone LLC", Brand: &brand, SyncedAt: now},
			{Code: "0001", Name: "Mystery", SupplierName: "Unknown", SyncedAt: now},
		})
		require.Equal(t, int64(2), n)
		return err
	})
	require.NoError(t, err)

	codes, err = store.GoodsCodes(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"0001", "0002"}, codes)

	var brands []sql.NullString
	require.NoError(t, store.db.SelectContext(ctx, &brands, `SELECT brand FROM DistributionGoods ORDER BY code`))
	require.False(t, brands[0].Valid)
	require.Equal(t, "DANONE", brands[1].String)
}

func TestSQLiteDuplicateGoodsRollsBack(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.AppendGoods(ctx, []GoodsRecord{{Code: "0001"}, {Code: "0001"}})
		return err
	})
	require.ErrorIs(t, err, shared.ErrStore)

	codes, err := store.GoodsCodes(ctx)
	require.NoError(t, err)
	require.Empty(t, codes)
}

func TestSQLiteSalesWatermark(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	_, ok, err := store.MaxSaleDate(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	err = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.AppendSales(ctx, []SaleRecord{sale(day(2024, 5, 9), "0001"), sale(day(2024, 5, 10), "0001")})
		return err
	})
	require.NoError(t, err)

	max, ok, err := store.MaxSaleDate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, day(2024, 5, 10), max)
}

func TestSQLiteDeleteSalesIsInclusive(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	rows := []SaleRecord{
		sale(day(2024, 4, 30), "0001"),
		sale(day(2024, 5, 1), "0001"),
		sale(day(2024, 5, 15), "0002"),
		sale(day(2024, 5, 31), "0003"),
		sale(day(2024, 6, 1), "0001"),
	}
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.AppendSales(ctx, rows)
		return err
	}))

	var deleted int64
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		deleted, err = tx.DeleteSales(ctx, day(2024, 5, 1), day(2024, 5, 31))
		return err
	}))
	require.Equal(t, int64(3), deleted)
	require.Equal(t, 2, countSales(t, store))
}

func TestSQLiteWithTxRollsBackOnError(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.AppendSales(ctx, []SaleRecord{sale(day(2024, 5, 1), "0001")})
		return err
	}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.DeleteSales(ctx, day(2024, 5, 1), day(2024, 5, 2)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, countSales(t, store))
}
