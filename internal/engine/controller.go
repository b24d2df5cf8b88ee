package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/twstocklab/stockboard/internal/archive"
	"github.com/twstocklab/stockboard/internal/notify"
	"github.com/twstocklab/stockboard/internal/progress"
	"github.com/twstocklab/stockboard/internal/stocks"
	"github.com/twstocklab/stockboard/internal/store"
)

// Deps holds the collaborators a Controller drives. Lister, Updater, Clock,
// and Sleeper are required; the rest are optional and skipped when nil.
type Deps struct {
	Lister   stocks.SymbolLister
	Updater  stocks.Updater
	Clock    stocks.Clock
	Sleeper  stocks.Sleeper
	Runs     store.RunStore
	Emitter  progress.Emitter
	Notifier notify.Publisher
	Archive  archive.BlobStore
	Logger   *zap.Logger
}

// Config controls controller side effects.
type Config struct {
	// Topic is the notification topic for run completions; empty disables.
	Topic string
	// ArchivePrefix prefixes archived run report paths.
	ArchivePrefix string
	// OnProgress, when set, receives a summary snapshot and status message
	// after every item outcome and batch boundary.
	OnProgress func(summary stocks.RunSummary, msg string)
}

// Controller owns the refresh-run state machine:
// Idle -> Validating -> Resolving -> Running -> {Completed, Cancelled, Failed},
// then back to Idle ready for the next Execute. At most one run is active at
// a time; Execute while active is rejected without touching the run in flight.
type Controller struct {
	deps Deps
	cfg  Config

	mu     sync.Mutex
	active bool
	token  *Token
	status stocks.RunStatus

	reporter *Reporter
}

// New constructs a Controller.
func New(deps Deps, cfg Config) *Controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Controller{
		deps:   deps,
		cfg:    cfg,
		status: stocks.RunStatus{State: stocks.RunStateIdle},
	}
}

// Execute runs one refresh job to completion and returns the final summary.
// Configuration and resolution failures abort before any batch starts; item
// and batch failures are absorbed into the counters.
func (c *Controller) Execute(ctx context.Context, job stocks.JobConfig) (stocks.RunSummary, error) {
	if job.Days == 0 {
		job.Days = stocks.DefaultDays
	}

	runID, token, err := c.begin(job)
	if err != nil {
		return stocks.RunSummary{}, err
	}
	return c.execute(ctx, runID, token, job)
}

// Start reserves the run slot and returns the run ID before any work begins,
// then executes the job on a background context so it outlives the caller.
// The reservation is atomic with the active check, so exactly one of two
// racing Start calls wins; the loser gets stocks.ErrRunActive.
func (c *Controller) Start(job stocks.JobConfig) (uuid.UUID, error) {
	if job.Days == 0 {
		job.Days = stocks.DefaultDays
	}

	runID, token, err := c.begin(job)
	if err != nil {
		return uuid.Nil, err
	}

	go func() {
		summary, err := c.execute(context.Background(), runID, token, job)
		if err != nil {
			c.deps.Logger.Warn("background run failed",
				zap.String("run_id", runID.String()),
				zap.Error(err),
			)
			return
		}
		c.deps.Logger.Info("background run finished",
			zap.String("run_id", runID.String()),
			zap.Int64("succeeded", summary.Succeeded),
			zap.Int64("failed", summary.Failed),
		)
	}()
	return runID, nil
}

func (c *Controller) execute(ctx context.Context, runID uuid.UUID, token *Token, job stocks.JobConfig) (stocks.RunSummary, error) {
	if err := job.Validate(); err != nil {
		c.fail(runID, err)
		return stocks.RunSummary{}, err
	}

	symbols, err := c.resolve(ctx, job)
	if err != nil {
		c.fail(runID, err)
		return stocks.RunSummary{}, err
	}

	return c.run(ctx, runID, token, job, symbols), nil
}

// Cancel requests cooperative cancellation of the active run. It is a no-op
// when no run is active; in-flight remote calls finish naturally.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		c.deps.Logger.Warn("cancel requested with no active run")
		return
	}
	c.token.Cancel()
	c.deps.Logger.Info("cancellation requested", zap.String("run_id", c.status.RunID.String()))
}

// Status returns the current run view: a live snapshot while a run is active,
// otherwise the last terminal status.
func (c *Controller) Status() stocks.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	if c.active && c.reporter != nil {
		st.Summary = c.reporter.Snapshot()
	}
	return st
}

// Active reports whether a run is currently executing.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) begin(job stocks.JobConfig) (uuid.UUID, *Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		c.deps.Logger.Warn("execute rejected: run already active",
			zap.String("run_id", c.status.RunID.String()))
		return uuid.Nil, nil, stocks.ErrRunActive
	}
	runID := job.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	c.active = true
	c.token = NewToken()
	c.reporter = NewReporter(c.deps.Clock)
	c.status = stocks.RunStatus{
		RunID:   runID,
		State:   stocks.RunStateValidating,
		Started: c.deps.Clock.Now(),
	}
	return runID, c.token, nil
}

func (c *Controller) resolve(ctx context.Context, job stocks.JobConfig) ([]stocks.Symbol, error) {
	c.setState(stocks.RunStateResolving, "resolving symbols")

	listed, err := c.deps.Lister.ListSymbols(ctx)
	if err != nil {
		return nil, &stocks.ResolveError{Reason: "symbol listing failed", Err: err}
	}
	symbols := job.Scope.Filter(listed)
	if len(symbols) == 0 {
		return nil, &stocks.ResolveError{Reason: "no symbols match the selected scope"}
	}
	c.deps.Logger.Info("symbols resolved",
		zap.Int("listed", len(listed)),
		zap.Int("selected", len(symbols)),
	)
	return symbols, nil
}

func (c *Controller) run(
	ctx context.Context,
	runID uuid.UUID,
	token *Token,
	job stocks.JobConfig,
	symbols []stocks.Symbol,
) stocks.RunSummary {
	c.setState(stocks.RunStateRunning, fmt.Sprintf("refreshing %d symbols", len(symbols)))
	c.reporter.Start(int64(len(symbols)))
	started := c.deps.Clock.Now()

	c.recordStart(ctx, runID, job, len(symbols), started)
	c.emit(progress.Event{
		RunID: progress.RunID(runID),
		TS:    started,
		Stage: progress.StageRunStart,
		Total: int64(len(symbols)),
	})

	sched := NewScheduler[stocks.Symbol, stocks.UpdateResult](c.deps.Clock, c.deps.Sleeper, c.deps.Logger)
	sched.OnItem = func(idx int, out Outcome[stocks.UpdateResult]) {
		c.itemDone(runID, symbols[idx], out)
	}
	sched.OnBatch = func(br BatchResult[stocks.UpdateResult]) {
		c.batchDone(runID, br)
	}

	worker := func(ctx context.Context, sym stocks.Symbol) (stocks.UpdateResult, error) {
		return c.deps.Updater.UpdateSymbol(ctx, sym.Code, job.Days)
	}
	batches := sched.Run(ctx, symbols, BatchConfig{
		BatchSize:       job.BatchSize,
		Concurrency:     job.Concurrency,
		InterBatchDelay: job.InterBatchDelay,
	}, worker, token)

	cancelled := token.Cancelled() || ctx.Err() != nil
	summary := c.reporter.Finish(cancelled)
	c.finish(ctx, runID, job, summary, batches)
	return summary
}

func (c *Controller) itemDone(runID uuid.UUID, sym stocks.Symbol, out Outcome[stocks.UpdateResult]) {
	c.reporter.RecordOutcome(!out.Failed())
	snap := c.reporter.Snapshot()

	evt := progress.Event{
		RunID:     progress.RunID(runID),
		TS:        c.deps.Clock.Now(),
		Stage:     progress.StageItemDone,
		Symbol:    sym.Code,
		Market:    string(sym.Market),
		Outcome:   progress.ClassifyOutcome(out.Err),
		Rows:      int64(out.Value.RowsWritten),
		Total:     snap.Total,
		Processed: snap.Processed,
		Succeeded: snap.Succeeded,
		Failed:    snap.Failed,
	}
	msg := fmt.Sprintf("updated %s (%d/%d)", sym.Code, snap.Processed, snap.Total)
	if out.Failed() {
		evt.Note = out.Err.Error()
		msg = fmt.Sprintf("failed %s (%d/%d): %v", sym.Code, snap.Processed, snap.Total, out.Err)
		c.deps.Logger.Warn("symbol refresh failed",
			zap.String("run_id", runID.String()),
			zap.String("symbol", sym.Code),
			zap.Error(out.Err),
		)
	}
	c.emit(evt)
	c.progressCallback(snap, msg)
}

func (c *Controller) batchDone(runID uuid.UUID, br BatchResult[stocks.UpdateResult]) {
	snap := c.reporter.Snapshot()
	c.emit(progress.Event{
		RunID:     progress.RunID(runID),
		TS:        br.Finished,
		Stage:     progress.StageBatchDone,
		Batch:     br.Index,
		Dur:       br.Finished.Sub(br.Started),
		Total:     snap.Total,
		Processed: snap.Processed,
		Succeeded: snap.Succeeded,
		Failed:    snap.Failed,
	})
	c.progressCallback(snap, fmt.Sprintf("batch %d done (%d/%d)", br.Index+1, snap.Processed, snap.Total))
}

func (c *Controller) fail(runID uuid.UUID, err error) {
	now := c.deps.Clock.Now()
	c.mu.Lock()
	c.status.State = stocks.RunStateFailed
	c.status.Message = err.Error()
	c.status.Finished = &now
	c.active = false
	c.mu.Unlock()

	c.deps.Logger.Error("run failed before any work started",
		zap.String("run_id", runID.String()),
		zap.Error(err),
	)
	c.emit(progress.Event{
		RunID: progress.RunID(runID),
		TS:    now,
		Stage: progress.StageRunError,
		Note:  err.Error(),
	})
}

func (c *Controller) finish(
	ctx context.Context,
	runID uuid.UUID,
	job stocks.JobConfig,
	summary stocks.RunSummary,
	batches []BatchResult[stocks.UpdateResult],
) {
	state := stocks.RunStateCompleted
	if summary.Cancelled {
		state = stocks.RunStateCancelled
	}
	elapsed := summary.Elapsed.Round(time.Millisecond)
	msg := fmt.Sprintf("%s in %s: %d succeeded, %d failed of %d",
		state, elapsed, summary.Succeeded, summary.Failed, summary.Total)

	now := c.deps.Clock.Now()
	c.mu.Lock()
	c.status.State = state
	c.status.Summary = summary
	c.status.Message = msg
	c.status.Finished = &now
	c.active = false
	c.mu.Unlock()

	c.deps.Logger.Info("run finished",
		zap.String("run_id", runID.String()),
		zap.String("state", string(state)),
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("failed", summary.Failed),
		zap.Duration("elapsed", elapsed),
	)
	c.emit(progress.Event{
		RunID:     progress.RunID(runID),
		TS:        now,
		Stage:     progress.StageRunDone,
		State:     string(state),
		Dur:       summary.Elapsed,
		Total:     summary.Total,
		Processed: summary.Processed,
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Note:      msg,
	})
	c.progressCallback(summary, msg)

	c.recordFinish(ctx, runID, state, summary, now)
	c.notifyDone(ctx, runID, state, summary)
	c.archiveReport(ctx, runID, job, state, summary, batches)
}

func (c *Controller) recordStart(ctx context.Context, runID uuid.UUID, job stocks.JobConfig, total int, at time.Time) {
	if c.deps.Runs == nil {
		return
	}
	rec := store.RunRecord{
		ID:          runID,
		State:       stocks.RunStateRunning,
		StartedAt:   at,
		Total:       int64(total),
		BatchSize:   job.BatchSize,
		Concurrency: job.Concurrency,
	}
	if err := c.deps.Runs.StartRun(ctx, rec); err != nil {
		c.deps.Logger.Warn("record run start failed", zap.Error(err))
	}
}

func (c *Controller) recordFinish(ctx context.Context, runID uuid.UUID, state stocks.RunState, summary stocks.RunSummary, at time.Time) {
	if c.deps.Runs == nil {
		return
	}
	if err := c.deps.Runs.CompleteRun(ctx, runID, at, state, summary); err != nil {
		c.deps.Logger.Warn("record run completion failed", zap.Error(err))
	}
}

func (c *Controller) notifyDone(ctx context.Context, runID uuid.UUID, state stocks.RunState, summary stocks.RunSummary) {
	if c.deps.Notifier == nil || c.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"run_id":     runID.String(),
		"state":      string(state),
		"total":      summary.Total,
		"succeeded":  summary.Succeeded,
		"failed":     summary.Failed,
		"elapsed_ms": summary.Elapsed.Milliseconds(),
	}
	if _, err := c.deps.Notifier.Publish(ctx, c.cfg.Topic, payload); err != nil {
		c.deps.Logger.Warn("publish run notification failed", zap.Error(err))
	}
}

func (c *Controller) archiveReport(
	ctx context.Context,
	runID uuid.UUID,
	job stocks.JobConfig,
	state stocks.RunState,
	summary stocks.RunSummary,
	batches []BatchResult[stocks.UpdateResult],
) {
	if c.deps.Archive == nil {
		return
	}
	report := runReport{
		RunID:     runID.String(),
		State:     string(state),
		Summary:   summary,
		BatchSize: job.BatchSize,
		Batches:   make([]batchReport, 0, len(batches)),
	}
	for _, br := range batches {
		rep := batchReport{Index: br.Index, Started: br.Started, Finished: br.Finished}
		for _, out := range br.Outcomes {
			if out.Failed() {
				rep.Failures = append(rep.Failures, out.Err.Error())
			}
		}
		rep.Dispatched = len(br.Outcomes)
		report.Batches = append(report.Batches, rep)
	}
	data, err := json.Marshal(report)
	if err != nil {
		c.deps.Logger.Warn("marshal run report failed", zap.Error(err))
		return
	}
	prefix := c.cfg.ArchivePrefix
	if prefix == "" {
		prefix = "runs"
	}
	path := fmt.Sprintf("%s/%s.json", prefix, runID)
	uri, err := c.deps.Archive.PutObject(ctx, path, "application/json", data)
	if err != nil {
		c.deps.Logger.Warn("archive run report failed", zap.Error(err))
		return
	}
	c.deps.Logger.Info("run report archived", zap.String("uri", uri))
}

func (c *Controller) setState(state stocks.RunState, msg string) {
	c.mu.Lock()
	c.status.State = state
	c.status.Message = msg
	c.mu.Unlock()
}

func (c *Controller) emit(evt progress.Event) {
	if c.deps.Emitter != nil {
		c.deps.Emitter.Emit(evt)
	}
}

func (c *Controller) progressCallback(summary stocks.RunSummary, msg string) {
	if c.cfg.OnProgress != nil {
		c.cfg.OnProgress(summary, msg)
	}
}

type runReport struct {
	RunID     string            `json:"run_id"`
	State     string            `json:"state"`
	Summary   stocks.RunSummary `json:"summary"`
	BatchSize int               `json:"batch_size"`
	Batches   []batchReport     `json:"batches"`
}

type batchReport struct {
	Index      int       `json:"index"`
	Started    time.Time `json:"started_at"`
	Finished   time.Time `json:"finished_at"`
	Dispatched int       `json:"dispatched"`
	Failures   []string  `json:"failures,omitempty"`
}

// IsConfigError reports whether err is fatal validation feedback suitable for
// a 400 response.
func IsConfigError(err error) bool {
	var ce *stocks.ConfigError
	return errors.As(err, &ce)
}
