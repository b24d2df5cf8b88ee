package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReporterCountersReconcile(t *testing.T) {
	t.Parallel()

	r := NewReporter(newFakeClock())
	r.Start(12)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.RecordOutcome(i != 2 && i != 7)
		}(i)
	}
	wg.Wait()

	snap := r.Snapshot()
	require.Equal(t, int64(12), snap.Total)
	require.Equal(t, int64(12), snap.Processed)
	require.Equal(t, int64(10), snap.Succeeded)
	require.Equal(t, int64(2), snap.Failed)
	require.Equal(t, snap.Succeeded+snap.Failed, snap.Processed)
	require.Positive(t, snap.Elapsed)
}

func TestReporterFinishFreezesSummary(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	r := NewReporter(clock)
	r.Start(3)
	r.RecordOutcome(true)
	r.RecordOutcome(true)
	r.RecordOutcome(false)

	final := r.Finish(true)
	require.True(t, final.Cancelled)
	require.Equal(t, int64(3), final.Processed)

	// The clock keeps moving but the frozen summary does not.
	clock.Now()
	clock.Now()
	require.Equal(t, final, r.Snapshot())
}

func TestReporterStartResetsCounters(t *testing.T) {
	t.Parallel()

	r := NewReporter(newFakeClock())
	r.Start(2)
	r.RecordOutcome(true)
	r.RecordOutcome(false)
	r.Finish(false)

	r.Start(5)
	snap := r.Snapshot()
	require.Equal(t, int64(5), snap.Total)
	require.Zero(t, snap.Processed)
	require.Zero(t, snap.Succeeded)
	require.Zero(t, snap.Failed)
	require.False(t, snap.Cancelled)
}
