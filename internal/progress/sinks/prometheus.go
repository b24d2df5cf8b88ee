package sinks

import (
	"context"

	"github.com/twstocklab/stockboard/internal/metrics"
	"github.com/twstocklab/stockboard/internal/progress"
)

// PrometheusSink feeds the shared metrics collectors from the progress stream,
// keeping the engine itself free of metrics calls.
type PrometheusSink struct{}

// NewPrometheusSink initializes the collectors and returns the sink.
func NewPrometheusSink() *PrometheusSink {
	metrics.Init()
	return &PrometheusSink{}
}

// Consume updates the collectors from the provided batch. It is safe for
// concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			metrics.ObserveRunStart()
		case progress.StageItemDone:
			metrics.ObserveItem(evt.Market, string(evt.Outcome), int(evt.Rows))
		case progress.StageBatchDone:
			metrics.ObserveBatch()
		case progress.StageRunDone:
			state := evt.State
			if state == "" {
				state = "completed"
			}
			metrics.ObserveRunEnd(state, evt.Dur)
		case progress.StageRunError:
			// Failed before Running; no active-run gauge to decrement.
			metrics.ObserveRunAborted()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
