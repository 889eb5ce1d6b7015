// Package loop is the single-threaded executor the client runs on.
//
// Every input unit, timer callback and posted task runs on the goroutine
// that calls Run (or RunPending in tests), one at a time and to completion.
// Other goroutines hand work to the loop with Post; nothing else touches
// session state.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrStopped = errors.New("loop stopped")

type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
}

func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn to run on the loop. It never blocks and is safe to call
// from any goroutine. Tasks posted after Stop are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Timer is a handle on a delayed callback.
type Timer struct {
	t         *time.Timer
	cancelled atomic.Bool
	fired     atomic.Bool
}

// Cancel stops the callback from running. It reports false when the
// callback has already run or was already cancelled.
func (t *Timer) Cancel() bool {
	if t == nil || t.fired.Load() {
		return false
	}
	if !t.cancelled.CompareAndSwap(false, true) {
		return false
	}
	if t.t != nil {
		t.t.Stop()
	}
	return true
}

// Pending reports whether the callback may still run.
func (t *Timer) Pending() bool {
	return t != nil && !t.cancelled.Load() && !t.fired.Load()
}

// CallLater runs fn on the loop after d. A non-positive delay queues fn
// behind the work already posted; it is never run synchronously.
func (l *Loop) CallLater(d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	run := func() {
		if tm.cancelled.Load() {
			return
		}
		tm.fired.Store(true)
		fn()
	}
	if d <= 0 {
		l.Post(run)
		return tm
	}
	tm.t = time.AfterFunc(d, func() { l.Post(run) })
	return tm
}

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.queue
	l.queue = nil
	return q
}

// RunPending runs queued tasks, including ones they queue, until the queue
// is empty. It returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		q := l.take()
		if len(q) == 0 {
			return n
		}
		for _, fn := range q {
			fn()
			n++
		}
	}
}

// Run executes tasks until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		l.mu.Lock()
		stopped := l.stopped
		l.mu.Unlock()
		if stopped {
			return ErrStopped
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Stop makes Run return once the current task finishes. Work still queued
// is discarded.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
