// Package stocks defines core types shared across subsystems.
package stocks

import (
	"time"

	"github.com/google/uuid"
)

// Market identifies the exchange a symbol trades on.
type Market string

// Markets covered by the upstream listing service.
const (
	MarketTWSE  Market = "twse"
	MarketOTC   Market = "otc"
	MarketIndex Market = "index"
)

// Symbol is one unit of refresh work: a listed instrument plus display metadata.
type Symbol struct {
	Code   string `json:"symbol"`
	Name   string `json:"name"`
	Market Market `json:"market"`
}

// RunState represents the lifecycle state of a refresh run.
type RunState string

// Run states reported by the controller and persisted in the run store.
const (
	RunStateIdle       RunState = "idle"
	RunStateValidating RunState = "validating"
	RunStateResolving  RunState = "resolving"
	RunStateRunning    RunState = "running"
	RunStateCompleted  RunState = "completed"
	RunStateCancelled  RunState = "cancelled"
	RunStateFailed     RunState = "failed"
)

// Terminal reports whether the state ends a run.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStateCancelled, RunStateFailed:
		return true
	default:
		return false
	}
}

// JobConfig captures the knobs for one refresh run. It is constructed once per
// run and not mutated afterwards; cancellation travels separately.
type JobConfig struct {
	RunID           uuid.UUID     `json:"run_id"`
	BatchSize       int           `json:"batch_size"`
	Concurrency     int           `json:"concurrency"`
	InterBatchDelay time.Duration `json:"inter_batch_delay"`
	Days            int           `json:"days"`
	Scope           Scope         `json:"scope"`
}

// Bounds enforced by JobConfig.Validate.
const (
	MaxBatchSize       = 100
	MaxConcurrency     = 20
	MaxInterBatchDelay = 10 * time.Minute
	MaxDays            = 365
	DefaultDays        = 30
)

// Validate checks the configuration before any remote call is made.
func (c JobConfig) Validate() error {
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return &ConfigError{Reason: "batch size must be between 1 and 100"}
	}
	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return &ConfigError{Reason: "concurrency must be between 1 and 20"}
	}
	if c.InterBatchDelay < 0 || c.InterBatchDelay > MaxInterBatchDelay {
		return &ConfigError{Reason: "inter-batch delay must be between 0 and 10m"}
	}
	if c.Days < 1 || c.Days > MaxDays {
		return &ConfigError{Reason: "days must be between 1 and 365"}
	}
	if err := c.Scope.Validate(); err != nil {
		return err
	}
	return nil
}

// UpdateResult is returned by the per-symbol refresh worker.
type UpdateResult struct {
	Symbol      string `json:"symbol"`
	RowsWritten int    `json:"rows_written"`
	Message     string `json:"message,omitempty"`
}

// RunSummary holds the aggregate counters and elapsed time for one run.
type RunSummary struct {
	Total     int64         `json:"total"`
	Processed int64         `json:"processed"`
	Succeeded int64         `json:"succeeded"`
	Failed    int64         `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
	Cancelled bool          `json:"cancelled"`
}

// RunStatus is the controller view exposed to the API layer.
type RunStatus struct {
	RunID    uuid.UUID  `json:"run_id"`
	State    RunState   `json:"state"`
	Summary  RunSummary `json:"summary"`
	Message  string     `json:"message,omitempty"`
	Started  time.Time  `json:"started_at"`
	Finished *time.Time `json:"finished_at,omitempty"`
}

// PricePoint is one daily bar for a symbol.
type PricePoint struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   *float64  `json:"open_price"`
	High   *float64  `json:"high_price"`
	Low    *float64  `json:"low_price"`
	Close  *float64  `json:"close_price"`
	Volume int64     `json:"volume"`
}

// ReturnPoint is one close-to-close return observation.
type ReturnPoint struct {
	Symbol     string    `json:"ticker"`
	Date       time.Time `json:"date"`
	Frequency  string    `json:"frequency"`
	Return     float64   `json:"return"`
	Cumulative float64   `json:"cumulative_return"`
}

// Stats aggregates the local price cache for the dashboard statistics panel.
type Stats struct {
	TotalRecords int64      `json:"totalRecords"`
	UniqueStocks int64      `json:"uniqueStocks"`
	FirstDate    *time.Time `json:"startDate,omitempty"`
	LastDate     *time.Time `json:"endDate,omitempty"`
	LastUpdate   *time.Time `json:"lastUpdate,omitempty"`
}
