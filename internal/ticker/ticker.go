// Package ticker runs a callback on a fixed interval, one call at a time.
package ticker

import (
	"sync"
	"time"
)

// Timer schedules fn every Interval after the previous call returns.
// Unlike time.Ticker, calls never overlap and a slow call delays the next
// one instead of queueing ticks.
type Timer struct {
	interval time.Duration
	after    func(time.Duration) <-chan time.Time

	startOnce  sync.Once
	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}
}

// New creates a Timer. If after is nil, time.After is used.
func New(interval time.Duration, after func(time.Duration) <-chan time.Time) *Timer {
	if after == nil {
		after = time.After
	}
	return &Timer{
		interval: interval,
		after:    after,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the schedule; the first call happens one interval from now.
// fn returning false ends the schedule. Only the first Start has effect.
func (t *Timer) Start(fn func() bool) {
	t.startOnce.Do(func() {
		go t.run(fn)
	})
}

func (t *Timer) run(fn func() bool) {
	defer close(t.done)
	for {
		select {
		case <-t.cancelCh:
			return
		case <-t.after(t.interval):
		}
		// Cancel may have raced with the tick.
		select {
		case <-t.cancelCh:
			return
		default:
		}
		if !fn() {
			return
		}
	}
}

// Cancel stops the schedule. Once it returns, fn is not running and will not
// run again. Cancel must not be called from inside fn. Safe to call more than
// once, and before Start.
func (t *Timer) Cancel() {
	t.cancelOnce.Do(func() {
		close(t.cancelCh)
	})
	// A Timer that was never started has no goroutine to wait for.
	t.startOnce.Do(func() {
		close(t.done)
	})
	<-t.done
}

// Done is closed when the schedule has ended for any reason.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}
