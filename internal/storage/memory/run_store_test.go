package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/twstocklab/stockboard/internal/stocks"
	"github.com/twstocklab/stockboard/internal/store"
)

func seedRuns(t *testing.T, s *RunStore, n int) []store.RunRecord {
	t.Helper()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	recs := make([]store.RunRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := store.RunRecord{
			ID:        uuid.New(),
			State:     stocks.RunStateRunning,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Total:     12,
		}
		require.NoError(t, s.StartRun(context.Background(), rec))
		recs = append(recs, rec)
	}
	return recs
}

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	recs := seedRuns(t, s, 1)
	id := recs[0].ID

	finished := recs[0].StartedAt.Add(time.Minute)
	summary := stocks.RunSummary{
		Total:     12,
		Processed: 12,
		Succeeded: 10,
		Failed:    2,
		Elapsed:   90 * time.Second,
	}
	require.NoError(t, s.CompleteRun(context.Background(), id, finished, stocks.RunStateCompleted, summary))

	got, err := s.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, stocks.RunStateCompleted, got.State)
	require.Equal(t, int64(10), got.Succeeded)
	require.Equal(t, int64(90000), got.ElapsedMs)
	require.NotNil(t, got.FinishedAt)
	require.Equal(t, finished, *got.FinishedAt)
}

func TestRunStoreNotFound(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	_, err := s.GetRun(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.CompleteRun(context.Background(), uuid.New(), time.Now(), stocks.RunStateCompleted, stocks.RunSummary{})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	recs := seedRuns(t, s, 5)

	got, err := s.ListRuns(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	require.Equal(t, recs[4].ID, got[0].ID)
	require.Equal(t, recs[0].ID, got[4].ID)
}

func TestRunStoreListPagination(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	recs := seedRuns(t, s, 5)

	page, err := s.ListRuns(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, recs[3].ID, page[0].ID)
	require.Equal(t, recs[2].ID, page[1].ID)

	empty, err := s.ListRuns(context.Background(), 2, 99)
	require.NoError(t, err)
	require.Empty(t, empty)
}
