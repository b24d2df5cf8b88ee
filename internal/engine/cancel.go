// Package engine implements the batched refresh-run execution loop.
package engine

import "sync/atomic"

// Token is a cooperative cancellation flag polled at defined suspension
// points: before claiming a new item index and before starting a batch or
// waiting out an inter-batch delay. In-flight calls finish naturally.
type Token struct {
	fired atomic.Bool
}

// NewToken returns a fresh Token.
func NewToken() *Token {
	return &Token{}
}

// Cancel requests cancellation. It is safe to call from any goroutine and
// more than once.
func (t *Token) Cancel() {
	if t != nil {
		t.fired.Store(true)
	}
}

// Cancelled reports whether cancellation has been requested. A nil Token is
// never cancelled.
func (t *Token) Cancelled() bool {
	return t != nil && t.fired.Load()
}
