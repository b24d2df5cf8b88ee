package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/twstocklab/stockboard/internal/stocks"
	"github.com/twstocklab/stockboard/internal/store"
)

func newRunStoreMock(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRunStoreWithPool(mock), mock
}

func runColumns() []string {
	return []string{
		"id", "state", "started_at", "finished_at", "total", "processed",
		"succeeded", "failed", "elapsed_ms", "cancelled", "batch_size", "concurrency",
	}
}

func TestRunStoreEnsureSchema(t *testing.T) {
	t.Parallel()

	s, mock := newRunStoreMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS run_history").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreStartRun(t *testing.T) {
	t.Parallel()

	s, mock := newRunStoreMock(t)
	rec := store.RunRecord{
		ID:          uuid.New(),
		State:       stocks.RunStateRunning,
		StartedAt:   time.Unix(1780000000, 0).UTC(),
		Total:       12,
		BatchSize:   5,
		Concurrency: 3,
	}

	mock.ExpectExec("INSERT INTO run_history").
		WithArgs(rec.ID, string(rec.State), rec.StartedAt, rec.Total, rec.BatchSize, rec.Concurrency).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.StartRun(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreCompleteRun(t *testing.T) {
	t.Parallel()

	s, mock := newRunStoreMock(t)
	id := uuid.New()
	finished := time.Unix(1780003600, 0).UTC()
	summary := stocks.RunSummary{
		Total:     12,
		Processed: 12,
		Succeeded: 10,
		Failed:    2,
		Elapsed:   42 * time.Second,
	}

	mock.ExpectExec("UPDATE run_history").
		WithArgs(
			string(stocks.RunStateCompleted), finished, summary.Total, summary.Processed,
			summary.Succeeded, summary.Failed, summary.Elapsed.Milliseconds(),
			summary.Cancelled, id,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.CompleteRun(context.Background(), id, finished, stocks.RunStateCompleted, summary)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreCompleteRunMissing(t *testing.T) {
	t.Parallel()

	s, mock := newRunStoreMock(t)
	id := uuid.New()
	finished := time.Unix(1780003600, 0).UTC()
	mock.ExpectExec("UPDATE run_history").
		WithArgs(
			string(stocks.RunStateCancelled), finished, int64(0), int64(0),
			int64(0), int64(0), int64(0), false, id,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), id, finished, stocks.RunStateCancelled, stocks.RunSummary{})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRun(t *testing.T) {
	t.Parallel()

	s, mock := newRunStoreMock(t)
	id := uuid.New()
	started := time.Unix(1780000000, 0).UTC()
	finished := started.Add(time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM run_history").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(runColumns()).AddRow(
			id, string(stocks.RunStateCompleted), started, &finished,
			int64(12), int64(12), int64(10), int64(2), int64(60000), false, 5, 3,
		))

	rec, err := s.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, rec.ID)
	require.Equal(t, stocks.RunStateCompleted, rec.State)
	require.Equal(t, int64(10), rec.Succeeded)
	require.NotNil(t, rec.FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRunMissing(t *testing.T) {
	t.Parallel()

	s, mock := newRunStoreMock(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM run_history").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(runColumns()))

	_, err := s.GetRun(context.Background(), id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRuns(t *testing.T) {
	t.Parallel()

	s, mock := newRunStoreMock(t)
	started := time.Unix(1780000000, 0).UTC()

	rows := pgxmock.NewRows(runColumns()).
		AddRow(uuid.New(), string(stocks.RunStateCompleted), started.Add(time.Hour), (*time.Time)(nil),
			int64(5), int64(5), int64(5), int64(0), int64(1000), false, 5, 3).
		AddRow(uuid.New(), string(stocks.RunStateCancelled), started, (*time.Time)(nil),
			int64(12), int64(7), int64(7), int64(0), int64(9000), true, 5, 3)

	mock.ExpectQuery("SELECT (.+) FROM run_history").
		WithArgs(20, 0).
		WillReturnRows(rows)

	recs, err := s.ListRuns(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, stocks.RunStateCompleted, recs[0].State)
	require.True(t, recs[1].Cancelled)
	require.NoError(t, mock.ExpectationsWereMet())
}
