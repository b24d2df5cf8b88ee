// Package progress defines the event stream emitted by refresh runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/twstocklab/stockboard/internal/stocks"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageItemDone  Stage = "ITEM_DONE"
	StageBatchDone Stage = "BATCH_DONE"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
)

// OutcomeClass coarsely groups item results for metrics and dashboards.
type OutcomeClass string

// Item outcome classes.
const (
	OutcomeOK        OutcomeClass = "ok"
	OutcomeTransport OutcomeClass = "transport"
	OutcomeHTTP      OutcomeClass = "http"
	OutcomeAPI       OutcomeClass = "api"
	OutcomeOther     OutcomeClass = "other"
)

// RunID is the 16-byte UUID form used on the event wire.
type RunID [16]byte

// Event captures a single milestone of a refresh run.
type Event struct {
	// RunID uniquely identifies the run.
	RunID RunID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Symbol/Market scope item events to one instrument.
	Symbol string
	Market string
	// Batch is the zero-based batch index for batch events.
	Batch int
	// Outcome classifies item completions.
	Outcome OutcomeClass
	// Rows carries the rows-written delta for an item refresh.
	Rows int64
	// Counter snapshot at emit time.
	Total     int64
	Processed int64
	Succeeded int64
	Failed    int64
	// Dur captures batch and run durations.
	Dur time.Duration
	// State carries the terminal run state for RUN_DONE events.
	State string
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == (RunID{}) {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageBatchDone:
	case StageItemDone:
		if e.Symbol == "" {
			return errors.New("item event requires a symbol")
		}
		if e.Outcome == "" {
			return errors.New("item event requires an outcome class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// ClassifyOutcome maps an item error to an OutcomeClass using the domain
// error taxonomy.
func ClassifyOutcome(err error) OutcomeClass {
	if err == nil {
		return OutcomeOK
	}
	var te *stocks.TransportError
	if errors.As(err, &te) {
		return OutcomeTransport
	}
	var se *stocks.StatusError
	if errors.As(err, &se) {
		return OutcomeHTTP
	}
	var ae *stocks.APIError
	if errors.As(err, &ae) {
		return OutcomeAPI
	}
	return OutcomeOther
}
