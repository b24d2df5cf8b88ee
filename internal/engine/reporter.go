package engine

import (
	"sync/atomic"
	"time"

	"github.com/twstocklab/stockboard/internal/stocks"
)

// Reporter accumulates run counters. Updates are atomic so concurrently
// completing items never lose increments; processed always equals
// succeeded+failed at any observation point.
type Reporter struct {
	clock stocks.Clock

	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	startNano atomic.Int64
	final     atomic.Pointer[stocks.RunSummary]
}

// NewReporter builds a Reporter around the given clock.
func NewReporter(clock stocks.Clock) *Reporter {
	return &Reporter{clock: clock}
}

// Start resets all counters and records the start time.
func (r *Reporter) Start(total int64) {
	r.total.Store(total)
	r.succeeded.Store(0)
	r.failed.Store(0)
	r.final.Store(nil)
	r.startNano.Store(r.clock.Now().UnixNano())
}

// RecordOutcome counts one completed item.
func (r *Reporter) RecordOutcome(success bool) {
	if success {
		r.succeeded.Add(1)
	} else {
		r.failed.Add(1)
	}
}

// Snapshot returns the current counters. After Finish it returns the frozen
// final summary, so elapsed time stops advancing.
func (r *Reporter) Snapshot() stocks.RunSummary {
	if final := r.final.Load(); final != nil {
		return *final
	}
	succeeded := r.succeeded.Load()
	failed := r.failed.Load()
	return stocks.RunSummary{
		Total:     r.total.Load(),
		Processed: succeeded + failed,
		Succeeded: succeeded,
		Failed:    failed,
		Elapsed:   r.elapsed(),
	}
}

// Finish freezes the final summary and returns it.
func (r *Reporter) Finish(cancelled bool) stocks.RunSummary {
	summary := r.Snapshot()
	summary.Cancelled = cancelled
	r.final.Store(&summary)
	return summary
}

func (r *Reporter) elapsed() time.Duration {
	start := r.startNano.Load()
	if start == 0 {
		return 0
	}
	d := time.Duration(r.clock.Now().UnixNano() - start)
	if d < 0 {
		return 0
	}
	return d
}
