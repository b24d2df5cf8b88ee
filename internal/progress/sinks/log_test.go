package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/twstocklab/stockboard/internal/progress"
)

func TestLogSinkLogsEachEvent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	runID := uuid.New()
	batch := []progress.Event{
		{RunID: progress.RunID(runID), TS: time.Now(), Stage: progress.StageRunStart, Total: 12},
		{RunID: progress.RunID(runID), TS: time.Now(), Stage: progress.StageItemDone, Symbol: "2330.TW", Outcome: progress.OutcomeOK},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[1].ContextMap()
	require.Equal(t, runID.String(), fields["run_id"])
	require.Equal(t, "2330.TW", fields["symbol"])
	require.Equal(t, "ITEM_DONE", fields["stage"])
}

func TestLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.RunID(uuid.New()), TS: time.Now(), Stage: progress.StageRunDone},
	}))
}
