package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twstocklab/stockboard/internal/stocks"
)

// PriceStore caches daily price bars in Postgres, mirroring the upstream
// service's stock_prices table so chart queries survive upstream outages.
type PriceStore struct {
	pool Pool
}

// NewPriceStore connects a pool and returns the store.
func NewPriceStore(ctx context.Context, dsn string) (*PriceStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PriceStore{pool: pool}, nil
}

// NewPriceStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewPriceStoreWithPool(pool Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Close closes the underlying pool.
func (s *PriceStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the price cache table when missing.
func (s *PriceStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS stock_prices (
			symbol VARCHAR(20) NOT NULL,
			date DATE NOT NULL,
			open_price DECIMAL(12,4),
			high_price DECIMAL(12,4),
			low_price DECIMAL(12,4),
			close_price DECIMAL(12,4),
			volume BIGINT DEFAULT 0,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (symbol, date)
		);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create stock_prices table: %w", err)
	}
	return nil
}

// UpsertPrices writes bars on conflict-update semantics and returns the
// number of rows written.
func (s *PriceStore) UpsertPrices(ctx context.Context, points []stocks.PricePoint) (int, error) {
	query := `
		INSERT INTO stock_prices (symbol, date, open_price, high_price, low_price, close_price, volume, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
		ON CONFLICT (symbol, date) DO UPDATE
		SET open_price = EXCLUDED.open_price,
		    high_price = EXCLUDED.high_price,
		    low_price = EXCLUDED.low_price,
		    close_price = EXCLUDED.close_price,
		    volume = EXCLUDED.volume,
		    updated_at = CURRENT_TIMESTAMP;
	`
	written := 0
	for _, p := range points {
		if _, err := s.pool.Exec(ctx, query,
			p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume); err != nil {
			return written, fmt.Errorf("upsert price %s %s: %w", p.Symbol, p.Date.Format("2006-01-02"), err)
		}
		written++
	}
	return written, nil
}

// PricesRange returns bars for a symbol ordered by date. Zero start/end leave
// that bound open.
func (s *PriceStore) PricesRange(ctx context.Context, symbol string, start, end time.Time) ([]stocks.PricePoint, error) {
	query := `
		SELECT symbol, date, open_price, high_price, low_price, close_price, volume
		FROM stock_prices
		WHERE symbol = $1
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		ORDER BY date;
	`
	var startArg, endArg any
	if !start.IsZero() {
		startArg = start
	}
	if !end.IsZero() {
		endArg = end
	}
	rows, err := s.pool.Query(ctx, query, symbol, startArg, endArg)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var out []stocks.PricePoint
	for rows.Next() {
		var p stocks.PricePoint
		if err := rows.Scan(&p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price rows: %w", err)
	}
	return out, nil
}

// Statistics aggregates the price cache for the dashboard statistics panel.
func (s *PriceStore) Statistics(ctx context.Context) (stocks.Stats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(DISTINCT symbol),
		       MIN(date),
		       MAX(date),
		       MAX(updated_at)
		FROM stock_prices;
	`
	var stats stocks.Stats
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.TotalRecords, &stats.UniqueStocks,
		&stats.FirstDate, &stats.LastDate, &stats.LastUpdate,
	)
	if err != nil {
		return stocks.Stats{}, fmt.Errorf("query statistics: %w", err)
	}
	return stats, nil
}
