package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/twstocklab/stockboard/internal/stocks"
)

func newPriceStoreMock(t *testing.T) (*PriceStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPriceStoreWithPool(mock), mock
}

func ptr(v float64) *float64 { return &v }

func samplePoint(day string) stocks.PricePoint {
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return stocks.PricePoint{
		Symbol: "2330.TW",
		Date:   d,
		Open:   ptr(1000),
		High:   ptr(1020),
		Low:    ptr(995),
		Close:  ptr(1010),
		Volume: 123456,
	}
}

func TestPriceStoreUpsertPrices(t *testing.T) {
	t.Parallel()

	s, mock := newPriceStoreMock(t)
	points := []stocks.PricePoint{samplePoint("2026-01-05"), samplePoint("2026-01-06")}

	for _, p := range points {
		mock.ExpectExec("INSERT INTO stock_prices").
			WithArgs(p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	written, err := s.UpsertPrices(context.Background(), points)
	require.NoError(t, err)
	require.Equal(t, 2, written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPriceStoreUpsertStopsOnError(t *testing.T) {
	t.Parallel()

	s, mock := newPriceStoreMock(t)
	points := []stocks.PricePoint{samplePoint("2026-01-05"), samplePoint("2026-01-06")}

	mock.ExpectExec("INSERT INTO stock_prices").
		WithArgs(points[0].Symbol, points[0].Date, points[0].Open, points[0].High,
			points[0].Low, points[0].Close, points[0].Volume).
		WillReturnError(errors.New("disk full"))

	written, err := s.UpsertPrices(context.Background(), points)
	require.Error(t, err)
	require.Zero(t, written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPriceStorePricesRange(t *testing.T) {
	t.Parallel()

	s, mock := newPriceStoreMock(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"symbol", "date", "open_price", "high_price", "low_price", "close_price", "volume",
	}).AddRow("2330.TW", day, ptr(1000.0), ptr(1020.0), ptr(995.0), ptr(1010.0), int64(123456))

	mock.ExpectQuery("SELECT (.+) FROM stock_prices").
		WithArgs("2330.TW", start, nil).
		WillReturnRows(rows)

	points, err := s.PricesRange(context.Background(), "2330.TW", start, time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "2330.TW", points[0].Symbol)
	require.Equal(t, day, points[0].Date)
	require.InDelta(t, 1010.0, *points[0].Close, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPriceStoreStatistics(t *testing.T) {
	t.Parallel()

	s, mock := newPriceStoreMock(t)
	first := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	last := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	updated := last.Add(12 * time.Hour)

	rows := pgxmock.NewRows([]string{"count", "distinct", "min", "max", "updated"}).
		AddRow(int64(4200), int64(30), &first, &last, &updated)

	mock.ExpectQuery("SELECT (.+) FROM stock_prices").
		WillReturnRows(rows)

	stats, err := s.Statistics(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(4200), stats.TotalRecords)
	require.Equal(t, int64(30), stats.UniqueStocks)
	require.Equal(t, first, *stats.FirstDate)
	require.Equal(t, last, *stats.LastDate)
	require.NoError(t, mock.ExpectationsWereMet())
}
