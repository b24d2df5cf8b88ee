// Package store declares the persistence interfaces for runs and prices.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/twstocklab/stockboard/internal/stocks"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// RunRecord models one row of the run history.
type RunRecord struct {
	// ID is the run UUID shared with the engine and progress events.
	ID uuid.UUID `json:"id"`
	// State is running until the run reaches a terminal state.
	State stocks.RunState `json:"state"`
	// StartedAt captures when the run entered Running.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is nil until the run terminates.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// Total is the resolved item count; the remaining counters are written
	// at completion.
	Total       int64 `json:"total"`
	Processed   int64 `json:"processed"`
	Succeeded   int64 `json:"succeeded"`
	Failed      int64 `json:"failed"`
	ElapsedMs   int64 `json:"elapsed_ms"`
	Cancelled   bool  `json:"cancelled"`
	BatchSize   int   `json:"batch_size"`
	Concurrency int   `json:"concurrency"`
}

// RunStore persists run history.
type RunStore interface {
	StartRun(ctx context.Context, rec RunRecord) error
	CompleteRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, state stocks.RunState, summary stocks.RunSummary) error
	GetRun(ctx context.Context, id uuid.UUID) (RunRecord, error)
	ListRuns(ctx context.Context, limit, offset int) ([]RunRecord, error)
}

// PriceStore caches daily price bars fetched from the upstream service.
type PriceStore interface {
	UpsertPrices(ctx context.Context, points []stocks.PricePoint) (int, error)
	PricesRange(ctx context.Context, symbol string, start, end time.Time) ([]stocks.PricePoint, error)
	Statistics(ctx context.Context) (stocks.Stats, error)
}
