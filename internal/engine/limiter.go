package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Outcome is the terminal result recorded for one work item.
type Outcome[V any] struct {
	Value V
	Err   error
}

// Failed reports whether the item ended in failure.
func (o Outcome[V]) Failed() bool {
	return o.Err != nil
}

// Worker performs the remote call for a single item.
type Worker[T, V any] func(ctx context.Context, item T) (V, error)

// RunLimited executes worker over items with at most limit calls in flight.
// Workers claim indices through an atomic cursor, so the claim order matches
// the input order even though completion order does not. The returned slice is
// positional: out[i] is the outcome for items[i]. Its length is the number of
// items actually claimed, which is shorter than items only when cancellation
// was observed mid-run.
//
// A worker error or panic is captured as a failed Outcome for that index and
// never aborts sibling workers. onDone, when non-nil, is invoked once per
// claimed index from worker goroutines and must be safe for concurrent use.
// A panic escaping onDone stops further claiming; the caller sees the short
// result and owns the unclaimed remainder.
func RunLimited[T, V any](
	ctx context.Context,
	items []T,
	limit int,
	worker Worker[T, V],
	token *Token,
	onDone func(idx int, out Outcome[V]),
) []Outcome[V] {
	if len(items) == 0 {
		return nil
	}
	if limit < 1 {
		limit = 1
	}
	if limit > len(items) {
		limit = len(items)
	}

	out := make([]Outcome[V], len(items))
	var cursor atomic.Int64
	var claimed atomic.Int64
	var aborted atomic.Bool

	var wg sync.WaitGroup
	for _i := 0; _i < limit; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if aborted.Load() || token.Cancelled() || ctx.Err() != nil {
					return
				}
				idx := int(cursor.Add(1)) - 1
				if idx >= len(items) {
					return
				}
				claimed.Add(1)
				out[idx] = invoke(ctx, worker, items[idx])
				if onDone != nil {
					reportDone(onDone, idx, out[idx], &aborted)
				}
			}
		}()
	}
	wg.Wait()

	// Claims are strictly sequential, so the claimed indices are exactly
	// 0..n-1 and every one of them holds a resolved outcome.
	return out[:claimed.Load()]
}

// reportDone shields worker goroutines from a panicking callback.
func reportDone[V any](onDone func(idx int, out Outcome[V]), idx int, out Outcome[V], aborted *atomic.Bool) {
	defer func() {
		if r := recover(); r != nil {
			aborted.Store(true)
		}
	}()
	onDone(idx, out)
}

func invoke[T, V any](ctx context.Context, worker Worker[T, V], item T) (out Outcome[V]) {
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	v, err := worker(ctx, item)
	out.Value = v
	out.Err = err
	return out
}
