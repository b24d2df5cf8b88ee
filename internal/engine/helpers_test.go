package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakeClock hands out strictly increasing timestamps.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:  time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
		step: time.Millisecond,
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// fakeSleeper records requested delays instead of sleeping.
type fakeSleeper struct {
	mu     sync.Mutex
	slept  []time.Duration
	err    error
	onCall func()
}

func (s *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	if s.onCall != nil {
		s.onCall()
	}
	return s.err
}

func (s *fakeSleeper) sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

// concurrencyGauge tracks the in-flight and peak worker counts.
type concurrencyGauge struct {
	current atomic.Int64
	peak    atomic.Int64
}

func (p *concurrencyGauge) enter() {
	cur := p.current.Add(1)
	for {
		peak := p.peak.Load()
		if cur <= peak || p.peak.CompareAndSwap(peak, cur) {
			return
		}
	}
}

func (p *concurrencyGauge) exit() {
	p.current.Add(-1)
}
