package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockNowIsUTC(t *testing.T) {
	t.Parallel()

	now := New().Now()
	require.Equal(t, time.UTC, now.Location())
	require.WithinDuration(t, time.Now().UTC(), now, time.Second)
}

func TestSleeperWaitsForDuration(t *testing.T) {
	t.Parallel()

	s := NewSleeper()
	start := time.Now()
	require.NoError(t, s.Sleep(context.Background(), 20*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleeperZeroDurationReturnsImmediately(t *testing.T) {
	t.Parallel()

	s := NewSleeper()
	start := time.Now()
	require.NoError(t, s.Sleep(context.Background(), 0))
	require.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestSleeperStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewSleeper().Sleep(ctx, time.Minute)
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sleep did not return after cancel")
	}
}
