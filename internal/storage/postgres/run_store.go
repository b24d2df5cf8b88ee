// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twstocklab/stockboard/internal/stocks"
	"github.com/twstocklab/stockboard/internal/store"
)

// Pool is the subset of pgxpool.Pool the stores depend on; pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore persists run history in Postgres.
type RunStore struct {
	pool Pool
}

// NewRunStore connects a pool and returns the store.
func NewRunStore(ctx context.Context, dsn string) (*RunStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewRunStoreWithPool(pool Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Close closes the underlying pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the run history table when missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS run_history (
			id UUID PRIMARY KEY,
			state TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			total BIGINT NOT NULL DEFAULT 0,
			processed BIGINT NOT NULL DEFAULT 0,
			succeeded BIGINT NOT NULL DEFAULT 0,
			failed BIGINT NOT NULL DEFAULT 0,
			elapsed_ms BIGINT NOT NULL DEFAULT 0,
			cancelled BOOLEAN NOT NULL DEFAULT FALSE,
			batch_size INT NOT NULL DEFAULT 0,
			concurrency INT NOT NULL DEFAULT 0
		);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create run_history table: %w", err)
	}
	return nil
}

// StartRun inserts a run in running state.
func (s *RunStore) StartRun(ctx context.Context, rec store.RunRecord) error {
	query := `
		INSERT INTO run_history (id, state, started_at, total, batch_size, concurrency)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, string(rec.State), rec.StartedAt, rec.Total, rec.BatchSize, rec.Concurrency)
	if err != nil {
		return fmt.Errorf("insert run start: %w", err)
	}
	return nil
}

// CompleteRun writes the terminal state and final counters for a run.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	state stocks.RunState,
	summary stocks.RunSummary,
) error {
	query := `
		UPDATE run_history
		SET state = $1, finished_at = $2, total = $3, processed = $4,
		    succeeded = $5, failed = $6, elapsed_ms = $7, cancelled = $8
		WHERE id = $9;
	`
	tag, err := s.pool.Exec(ctx, query,
		string(state), finishedAt, summary.Total, summary.Processed,
		summary.Succeeded, summary.Failed, summary.Elapsed.Milliseconds(),
		summary.Cancelled, id)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetRun fetches one run by ID.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.RunRecord, error) {
	query := `
		SELECT id, state, started_at, finished_at, total, processed, succeeded,
		       failed, elapsed_ms, cancelled, batch_size, concurrency
		FROM run_history
		WHERE id = $1;
	`
	rec, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.RunRecord{}, store.ErrNotFound
		}
		return store.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit, offset int) ([]store.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, state, started_at, finished_at, total, processed, succeeded,
		       failed, elapsed_ms, cancelled, batch_size, concurrency
		FROM run_history
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []store.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (store.RunRecord, error) {
	var rec store.RunRecord
	var state string
	err := row.Scan(
		&rec.ID, &state, &rec.StartedAt, &rec.FinishedAt, &rec.Total,
		&rec.Processed, &rec.Succeeded, &rec.Failed, &rec.ElapsedMs,
		&rec.Cancelled, &rec.BatchSize, &rec.Concurrency,
	)
	if err != nil {
		return store.RunRecord{}, err
	}
	rec.State = stocks.RunState(state)
	return rec, nil
}
