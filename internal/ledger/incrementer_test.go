package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sokhunov/Distribution-Interface/internal/shared"
	"github.com/sokhunov/Distribution-Interface/internal/source"
	"github.com/sokhunov/Distribution-Interface/internal/warehouse"
)

var clockNow = time.Date(2024, 5, 12, 10, 15, 0, 0, time.UTC)

func date(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

type memoryStore struct {
	codes    []string
	sales    []warehouse.SaleRecord
	txCalls  int
	writeErr error
}

type memoryTx struct {
	sales    []warehouse.SaleRecord
	writeErr error
}

func (s *memoryStore) GoodsCodes(ctx context.Context) ([]string, error) {
	return s.codes, nil
}

func (s *memoryStore) KnownCodes(ctx context.Context) ([]string, error) {
	return s.GoodsCodes(ctx)
}

func (s *memoryStore) MaxSaleDate(ctx context.Context) (time.Time, bool, error) {
	var max time.Time
	for _, rec := range s.sales {
		if rec.Date.After(max) {
			max = rec.Date
		}
	}
	return max, !max.IsZero(), nil
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, warehouse.Tx) error) error {
	s.txCalls++
	tx := &memoryTx{sales: append([]warehouse.SaleRecord(nil), s.sales...), writeErr: s.writeErr}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.sales = tx.sales
	return nil
}

func (tx *memoryTx) AppendGoods(ctx context.Context, rows []warehouse.GoodsRecord) (int64, error) {
	return 0, errors.New("unexpected goods write")
}

func (tx *memoryTx) AppendSales(ctx context.Context, rows []warehouse.SaleRecord) (int64, error) {
	if tx.writeErr != nil {
		return 0, tx.writeErr
	}
	tx.sales = append(tx.sales, rows...)
	return int64(len(rows)), nil
}

func (tx *memoryTx) DeleteSales(ctx context.Context, from, to time.Time) (int64, error) {
	kept := tx.sales[:0:0]
	var n int64
	for _, rec := range tx.sales {
		if !rec.Date.Before(from) && !rec.Date.After(to) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	tx.sales = kept
	return n, nil
}

type stubGateway struct {
	rows    []map[string]any
	err     error
	queries []string
}

func (g *stubGateway) Query(ctx context.Context, q source.Query) (source.Cursor, error) {
	text, err := q.Render()
	if err != nil {
		return nil, err
	}
	g.queries = append(g.queries, text)
	if g.err != nil {
		return nil, g.err
	}
	body, err := json.Marshal(g.rows)
	if err != nil {
		return nil, err
	}
	return source.NewCursor(io.NopCloser(strings.NewReader(string(body)))), nil
}

type stubPrompter struct {
	start, end string
	err        error
	calls      int
}

func (p *stubPrompter) PromptDates(ctx context.Context) (string, string, error) {
	p.calls++
	return p.start, p.end, p.err
}

func row(day, shop, code, customerCode, customer string, turnover, exclVAT, cogs float64) map[string]any {
	return map[string]any{
		"Shop":            shop,
		"Date_":           day + "T00:00:00",
		"Code":            code,
		"Name":            "Goods " + code,
		"Qty":             2,
		"Turnover":        turnover,
		"Turnover_wo_vat": exclVAT,
		"COGS":            cogs,
		"Customer":        customer,
		"CustomerCode":    customerCode,
	}
}

func newIncrementer(cfg Config, store *memoryStore, gw *stubGateway, prompter DatePrompter) *Incrementer {
	inc := NewIncrementer(cfg, store, store, gw, prompter, nil)
	inc.WithClock(func() time.Time { return clockNow })
	return inc
}

func TestIncrementalWindow(t *testing.T) {
	start, end, ok := IncrementalWindow(date(5, 10), clockNow, DefaultTrailingDays)
	require.False(t, ok)
	require.Equal(t, date(5, 11), start)
	require.Equal(t, date(5, 10), end)

	start, end, ok = IncrementalWindow(date(5, 1), clockNow, DefaultTrailingDays)
	require.True(t, ok)
	require.Equal(t, date(5, 2), start)
	require.Equal(t, date(5, 10), end)

	_, _, ok = IncrementalWindow(date(5, 9), clockNow, DefaultTrailingDays)
	require.True(t, ok, "single day window")
}

func TestRunSkipsWhenUpToDate(t *testing.T) {
	store := &memoryStore{codes: []string{"1001"}, sales: []warehouse.SaleRecord{{Date: date(5, 10), Code: "1001"}}}
	gw := &stubGateway{}

	res, err := newIncrementer(Config{}, store, gw, nil).Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Zero(t, res.Fetched)
	require.Zero(t, res.Written)
	require.Empty(t, gw.queries)
	require.Zero(t, store.txCalls)
	require.Len(t, store.sales, 1)
}

func TestRunAppendsAfterWatermark(t *testing.T) {
	store := &memoryStore{
		codes: []string{"1001", "1002"},
		sales: []warehouse.SaleRecord{{Date: date(5, 1), Code: "1001"}},
	}
	gw := &stubGateway{rows: []map[string]any{
		row("2024-05-04", "Магазин 5", "1002", "C200", "ИП Иванов", 30, 3, 1),
		row("2024-05-02", "ДМ АШАН", "1001", "C100", "ООО Ромашка", 120, 100, 80),
		row("2024-05-03", "Магазин 5", "1001", "00000003", "Частное лицо", 12, 10, 12),
		row("2024-05-02", "ДМ АШАН", "1002", "C101", "ООО Лютик", 0, 0, 5),
		row("2024-05-11", "Магазин 5", "1001", "C200", "ИП Иванов", 1, 1, 1),
	}}

	res, err := newIncrementer(Config{}, store, gw, nil).Run(context.Background())
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.Equal(t, date(5, 2), res.Start)
	require.Equal(t, date(5, 10), res.End)
	require.Equal(t, 4, res.Fetched)
	require.Equal(t, int64(4), res.Written)
	require.Zero(t, res.Deleted)

	require.Len(t, gw.queries, 1)
	require.Contains(t, gw.queries[0], "DATETIME(2024, 05, 02, 00, 00, 01)")
	require.Contains(t, gw.queries[0], "DATETIME(2024, 05, 10, 23, 59, 05)")
	require.Contains(t, gw.queries[0], `Номенклатура.Код IN ("1001","1002")`)

	added := store.sales[1:]
	require.Len(t, added, 4)
	for i := 1; i < len(added); i++ {
		require.False(t, added[i].Date.Before(added[i-1].Date), "sorted by date")
	}
	// Stable order keeps source order within a day.
	require.Equal(t, "1001", added[0].Code)
	require.Equal(t, "1002", added[1].Code)

	require.Equal(t, "B2B", added[0].Customer)
	require.Equal(t, 20.0, added[0].Margin)
	require.Equal(t, 20.0, added[0].MarginPercent)
	require.Zero(t, added[1].MarginPercent)
	require.Equal(t, "Магазин 5", added[2].Customer)
	require.Equal(t, -20.0, added[2].MarginPercent)
	require.Equal(t, "ИП Иванов", added[3].Customer)
	require.Equal(t, 66.67, added[3].MarginPercent)
	for _, rec := range added {
		require.Equal(t, clockNow, rec.SyncedAt)
		require.Equal(t, 2.0, rec.Quantity)
	}
}

func TestRunEmptyTablePrompts(t *testing.T) {
	store := &memoryStore{codes: []string{"1001"}}
	gw := &stubGateway{rows: []map[string]any{
		row("2024-01-15", "Магазин 5", "1001", "C200", "ИП Иванов", 12, 10, 8),
	}}
	prompter := &stubPrompter{start: "2024-01-01", end: "2024-01-31"}

	res, err := newIncrementer(Config{}, store, gw, prompter).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, prompter.calls)
	require.Equal(t, date(1, 1), res.Start)
	require.Equal(t, date(1, 31), res.End)
	require.Equal(t, int64(1), res.Written)
	require.Len(t, store.sales, 1)
}

func TestRunEmptyTableUnattended(t *testing.T) {
	store := &memoryStore{codes: []string{"1001"}}
	gw := &stubGateway{}

	_, err := newIncrementer(Config{}, store, gw, nil).Run(context.Background())
	require.ErrorIs(t, err, shared.ErrPrecondition)
	require.Empty(t, gw.queries)
}

func TestRunRejectsInvalidDates(t *testing.T) {
	store := &memoryStore{codes: []string{"1001"}}
	gw := &stubGateway{}
	prompter := &stubPrompter{start: "2024-5-1", end: "2024-05-31"}

	_, err := newIncrementer(Config{Backfill: true}, store, gw, prompter).Run(context.Background())
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, gw.queries)
	require.Zero(t, store.txCalls)
}

func TestRunPromptFailure(t *testing.T) {
	store := &memoryStore{codes: []string{"1001"}}
	prompter := &stubPrompter{err: io.EOF}

	_, err := newIncrementer(Config{Backfill: true}, store, &stubGateway{}, prompter).Run(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.True(t, shared.IsFatal(err))
}

func TestRunRequiresGoods(t *testing.T) {
	store := &memoryStore{sales: []warehouse.SaleRecord{{Date: date(5, 1)}}}
	gw := &stubGateway{}

	_, err := newIncrementer(Config{}, store, gw, nil).Run(context.Background())
	require.ErrorIs(t, err, shared.ErrPrecondition)
	require.Empty(t, gw.queries)
	require.Zero(t, store.txCalls)
}

func TestRunNoRowsSkipsWrite(t *testing.T) {
	store := &memoryStore{codes: []string{"1001"}, sales: []warehouse.SaleRecord{{Date: date(5, 1)}}}
	gw := &stubGateway{}

	res, err := newIncrementer(Config{}, store, gw, nil).Run(context.Background())
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.Zero(t, res.Written)
	require.Len(t, gw.queries, 1)
	require.Zero(t, store.txCalls)
}

func TestBackfillReplacesPeriod(t *testing.T) {
	store := &memoryStore{
		codes: []string{"1001"},
		sales: []warehouse.SaleRecord{
			{Date: date(3, 31), Code: "1001", Customer: "before"},
			{Date: date(4, 1), Code: "1001", Customer: "stale"},
			{Date: date(4, 15), Code: "1001", Customer: "stale"},
			{Date: date(4, 30), Code: "1001", Customer: "stale"},
			{Date: date(5, 1), Code: "1001", Customer: "after"},
		},
	}
	gw := &stubGateway{rows: []map[string]any{
		row("2024-04-01", "Магазин 5", "1001", "C200", "ИП Иванов", 12, 10, 8),
		row("2024-04-20", "Магазин 5", "1001", "C200", "ИП Иванов", 12, 10, 8),
	}}
	prompter := &stubPrompter{start: "2024-04-01", end: "2024-04-30"}
	inc := newIncrementer(Config{Backfill: true}, store, gw, prompter)

	res, err := inc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Deleted)
	require.Equal(t, int64(2), res.Written)
	require.Len(t, store.sales, 4)

	res, err = inc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Deleted)
	require.Equal(t, int64(2), res.Written)
	require.Len(t, store.sales, 4)

	customers := map[string]int{}
	for _, rec := range store.sales {
		customers[rec.Customer]++
	}
	require.Equal(t, map[string]int{"before": 1, "after": 1, "ИП Иванов": 2}, customers)
}

func TestBackfillFailuresLeaveStoreUntouched(t *testing.T) {
	existing := []warehouse.SaleRecord{
		{Date: date(4, 10), Code: "1001", Customer: "kept"},
		{Date: date(4, 11), Code: "1001", Customer: "kept"},
	}

	t.Run("fetch", func(t *testing.T) {
		store := &memoryStore{codes: []string{"1001"}, sales: append([]warehouse.SaleRecord(nil), existing...)}
		gw := &stubGateway{err: shared.Gateway("query", errors.New("connection refused"))}
		prompter := &stubPrompter{start: "2024-04-01", end: "2024-04-30"}

		_, err := newIncrementer(Config{Backfill: true}, store, gw, prompter).Run(context.Background())
		require.ErrorIs(t, err, shared.ErrGateway)
		require.Equal(t, existing, store.sales)
		require.Zero(t, store.txCalls)
	})

	t.Run("write", func(t *testing.T) {
		store := &memoryStore{
			codes:    []string{"1001"},
			sales:    append([]warehouse.SaleRecord(nil), existing...),
			writeErr: shared.Store("append sales", errors.New("disk full")),
		}
		gw := &stubGateway{rows: []map[string]any{
			row("2024-04-02", "Магазин 5", "1001", "C200", "ИП Иванов", 12, 10, 8),
		}}
		prompter := &stubPrompter{start: "2024-04-01", end: "2024-04-30"}

		_, err := newIncrementer(Config{Backfill: true}, store, gw, prompter).Run(context.Background())
		require.ErrorIs(t, err, shared.ErrStore)
		require.Equal(t, existing, store.sales)
	})
}

type codeList []string

func (c codeList) KnownCodes(context.Context) ([]string, error) { return c, nil }

func TestBackfillSQLiteIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := warehouse.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gw := &stubGateway{rows: []map[string]any{
		row("2024-04-01", "ДМ АШАН", "1001", "C100", "ООО Ромашка", 120, 100, 80),
		row("2024-04-02", "Магазин 5", "1001", "00000003", "Частное лицо", 12, 10, 8),
		row("2024-04-02", "Магазин 5", "1002", "C200", "ИП Иванов", 12, 10, 8),
	}}
	prompter := &stubPrompter{start: "2024-04-01", end: "2024-04-30"}
	inc := NewIncrementer(Config{Backfill: true}, store, codeList{"1001", "1002"}, gw, prompter, nil)
	inc.WithClock(func() time.Time { return clockNow })

	first, err := inc.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, first.Deleted)
	require.Equal(t, int64(3), first.Written)

	second, err := inc.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), second.Deleted)
	require.Equal(t, int64(3), second.Written)

	max, ok, err := store.MaxSaleDate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, date(4, 2), max)
}
