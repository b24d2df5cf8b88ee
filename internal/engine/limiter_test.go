package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func intRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestRunLimitedRespectsConcurrencyCap(t *testing.T) {
	t.Parallel()

	gauge := &concurrencyGauge{}
	worker := func(_ context.Context, item int) (int, error) {
		gauge.enter()
		defer gauge.exit()
		time.Sleep(2 * time.Millisecond)
		return item * 2, nil
	}

	out := RunLimited(context.Background(), intRange(12), 3, worker, NewToken(), nil)

	require.Len(t, out, 12)
	require.LessOrEqual(t, gauge.peak.Load(), int64(3))
	for i, o := range out {
		require.NoError(t, o.Err)
		require.Equal(t, i*2, o.Value)
	}
}

func TestRunLimitedOutcomesArePositional(t *testing.T) {
	t.Parallel()

	worker := func(_ context.Context, item int) (string, error) {
		return fmt.Sprintf("item-%d", item), nil
	}

	out := RunLimited(context.Background(), intRange(7), 20, worker, NewToken(), nil)

	require.Len(t, out, 7)
	for i, o := range out {
		require.Equal(t, fmt.Sprintf("item-%d", i), o.Value)
	}
}

func TestRunLimitedIsolatesFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	worker := func(_ context.Context, item int) (int, error) {
		if item == 2 || item == 7 {
			return 0, boom
		}
		return item, nil
	}

	out := RunLimited(context.Background(), intRange(12), 3, worker, NewToken(), nil)

	require.Len(t, out, 12)
	for i, o := range out {
		if i == 2 || i == 7 {
			require.ErrorIs(t, o.Err, boom)
		} else {
			require.NoError(t, o.Err)
		}
	}
}

func TestRunLimitedCapturesPanics(t *testing.T) {
	t.Parallel()

	worker := func(_ context.Context, item int) (int, error) {
		if item == 4 {
			panic("kaboom")
		}
		return item, nil
	}

	out := RunLimited(context.Background(), intRange(6), 2, worker, NewToken(), nil)

	require.Len(t, out, 6)
	require.Error(t, out[4].Err)
	require.Contains(t, out[4].Err.Error(), "worker panic")
	for i, o := range out {
		if i == 4 {
			continue
		}
		require.NoError(t, o.Err)
	}
}

func TestRunLimitedStopsClaimingAfterCancel(t *testing.T) {
	t.Parallel()

	token := NewToken()
	worker := func(_ context.Context, item int) (int, error) {
		if item == 2 {
			token.Cancel()
		}
		return item, nil
	}

	out := RunLimited(context.Background(), intRange(12), 1, worker, token, nil)

	// With a single worker the cancel lands after item 2, so exactly the
	// first three indices were claimed and every claim is resolved.
	require.Len(t, out, 3)
	for i, o := range out {
		require.NoError(t, o.Err)
		require.Equal(t, i, o.Value)
	}
}

func TestRunLimitedHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	worker := func(_ context.Context, item int) (int, error) {
		if item == 1 {
			cancel()
		}
		return item, nil
	}

	out := RunLimited(ctx, intRange(10), 1, worker, NewToken(), nil)

	require.Len(t, out, 2)
}

func TestRunLimitedInvokesOnDonePerClaim(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := map[int]int{}
	onDone := func(idx int, out Outcome[int]) {
		mu.Lock()
		defer mu.Unlock()
		seen[idx] = out.Value
	}

	worker := func(_ context.Context, item int) (int, error) { return item, nil }
	out := RunLimited(context.Background(), intRange(9), 4, worker, NewToken(), onDone)

	require.Len(t, out, 9)
	require.Len(t, seen, 9)
	for i := 0; i < 9; i++ {
		require.Equal(t, i, seen[i])
	}
}

func TestRunLimitedEmptyInput(t *testing.T) {
	t.Parallel()

	worker := func(_ context.Context, item int) (int, error) { return item, nil }
	out := RunLimited(context.Background(), nil, 3, worker, NewToken(), nil)
	require.Empty(t, out)
}
