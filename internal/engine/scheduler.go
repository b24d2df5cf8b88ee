package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/twstocklab/stockboard/internal/stocks"
)

// BatchConfig controls how a run is partitioned and paced.
type BatchConfig struct {
	BatchSize       int
	Concurrency     int
	InterBatchDelay time.Duration
}

// BatchResult records one batch of a run.
type BatchResult[V any] struct {
	Index    int
	Started  time.Time
	Finished time.Time
	// Outcomes is positional over the batch slice; it is shorter than the
	// slice only when cancellation stopped claiming mid-batch.
	Outcomes []Outcome[V]
}

// Scheduler partitions an item list into fixed-size batches and drives each
// batch through RunLimited, strictly in order, with a pause between batches.
// Per-item and per-batch failures are absorbed; only cancellation ends a run
// early.
type Scheduler[T, V any] struct {
	clock   stocks.Clock
	sleeper stocks.Sleeper
	logger  *zap.Logger

	// OnItem is invoked after every completed item with its global index.
	// OnBatch is invoked after every batch. Both are optional; OnItem may be
	// called from concurrent worker goroutines.
	OnItem  func(idx int, out Outcome[V])
	OnBatch func(br BatchResult[V])
}

// NewScheduler builds a Scheduler.
func NewScheduler[T, V any](clock stocks.Clock, sleeper stocks.Sleeper, logger *zap.Logger) *Scheduler[T, V] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler[T, V]{clock: clock, sleeper: sleeper, logger: logger}
}

// Run executes worker over items. It returns the per-batch results; the
// number of batches is ceil(len(items)/cfg.BatchSize) unless cancellation
// stopped the run first. Batch i+1 never starts before batch i has fully
// returned.
func (s *Scheduler[T, V]) Run(
	ctx context.Context,
	items []T,
	cfg BatchConfig,
	worker Worker[T, V],
	token *Token,
) []BatchResult[V] {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	batchCount := (len(items) + cfg.BatchSize - 1) / cfg.BatchSize
	results := make([]BatchResult[V], 0, batchCount)

	for i := 0; i < batchCount; i++ {
		if token.Cancelled() || ctx.Err() != nil {
			s.logger.Info("run cancelled before batch", zap.Int("batch", i))
			break
		}

		lo := i * cfg.BatchSize
		hi := min(lo+cfg.BatchSize, len(items))
		br := s.runBatch(ctx, i, lo, items[lo:hi], cfg.Concurrency, worker, token)
		results = append(results, br)
		if s.OnBatch != nil {
			s.OnBatch(br)
		}

		if i == batchCount-1 || cfg.InterBatchDelay <= 0 {
			continue
		}
		if token.Cancelled() {
			break
		}
		if err := s.sleeper.Sleep(ctx, cfg.InterBatchDelay); err != nil {
			s.logger.Info("inter-batch delay interrupted", zap.Error(err))
			break
		}
	}
	return results
}

// runBatch delegates to RunLimited and contains batch-level defects: a panic
// escaping the limiter marks every unresolved item in the batch as failed and
// lets the run continue with the next batch.
func (s *Scheduler[T, V]) runBatch(
	ctx context.Context,
	index int,
	offset int,
	batch []T,
	concurrency int,
	worker Worker[T, V],
	token *Token,
) (br BatchResult[V]) {
	br.Index = index
	br.Started = s.clock.Now()

	resolved := 0
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("batch aborted",
				zap.Int("batch", index),
				zap.Any("panic", r),
			)
			for i := resolved; i < len(batch); i++ {
				out := Outcome[V]{Err: stocks.ErrBatchAborted}
				br.Outcomes = append(br.Outcomes, out)
				if s.OnItem != nil {
					s.OnItem(offset+i, out)
				}
			}
		}
		br.Finished = s.clock.Now()
	}()

	var onDone func(idx int, out Outcome[V])
	if s.OnItem != nil {
		onDone = func(idx int, out Outcome[V]) {
			s.OnItem(offset+idx, out)
		}
	}
	br.Outcomes = RunLimited(ctx, batch, concurrency, worker, token, onDone)
	resolved = len(br.Outcomes)

	// A short result without cancellation means the batch aborted; the
	// unclaimed remainder counts as failed so totals stay reconcilable.
	if resolved < len(batch) && !token.Cancelled() && ctx.Err() == nil {
		s.logger.Error("batch aborted",
			zap.Int("batch", index),
			zap.Int("resolved", resolved),
			zap.Int("size", len(batch)),
		)
		for i := resolved; i < len(batch); i++ {
			out := Outcome[V]{Err: stocks.ErrBatchAborted}
			br.Outcomes = append(br.Outcomes, out)
			resolved++
			if s.OnItem != nil {
				s.OnItem(offset+i, out)
			}
		}
	}
	return br
}
