// Package memory provides an in-memory run store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/twstocklab/stockboard/internal/stocks"
	"github.com/twstocklab/stockboard/internal/store"
)

// RunStore keeps run history in a map.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.RunRecord
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.RunRecord)}
}

// StartRun stores a new run in running state.
func (s *RunStore) StartRun(_ context.Context, rec store.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.ID] = rec
	return nil
}

// CompleteRun writes the terminal state and final counters for a run.
func (s *RunStore) CompleteRun(
	_ context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	state stocks.RunState,
	summary stocks.RunSummary,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.State = state
	rec.FinishedAt = &finishedAt
	rec.Total = summary.Total
	rec.Processed = summary.Processed
	rec.Succeeded = summary.Succeeded
	rec.Failed = summary.Failed
	rec.ElapsedMs = summary.Elapsed.Milliseconds()
	rec.Cancelled = summary.Cancelled
	s.runs[id] = rec
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (store.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	if !ok {
		return store.RunRecord{}, store.ErrNotFound
	}
	return rec, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, limit, offset int) ([]store.RunRecord, error) {
	s.mu.RLock()
	all := make([]store.RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		all = append(all, rec)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
