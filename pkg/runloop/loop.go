// Package runloop provides the single scheduling context that every tap
// callback, timer and activation edge runs on.
package runloop

import (
	"context"
	"sync"
	"time"
)

// Loop serialises work onto one goroutine or thread.
type Loop interface {
	// Post queues fn and returns immediately.
	Post(fn func())
	// Send queues fn and blocks until it has run. It must not be called from
	// the loop itself.
	Send(fn func())
	// After runs fn on the loop once d has elapsed.
	After(d time.Duration, fn func()) Timer
	// Now reads the loop clock.
	Now() time.Duration
}

// Timer is a pending After call.
type Timer interface {
	// Stop cancels the call and reports whether it was still pending.
	Stop() bool
}

// queue is the pending-work list shared by the real loops.
type queue struct {
	mu      sync.Mutex
	pending []func()
}

func (q *queue) push(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

func (q *queue) drain() {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, fn := range batch {
		fn()
	}
}

func send(post func(func()), fn func()) {
	done := make(chan struct{})
	post(func() {
		defer close(done)
		fn()
	})
	<-done
}

// wallTimer adapts time.AfterFunc so the callback hops onto the loop and is
// suppressed once stopped.
type wallTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	fired   bool
}

func afterFunc(post func(func()), d time.Duration, fn func()) *wallTimer {
	t := &wallTimer{}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = time.AfterFunc(d, func() {
		post(func() {
			t.mu.Lock()
			if t.stopped {
				t.mu.Unlock()
				return
			}
			t.fired = true
			t.mu.Unlock()
			fn()
		})
	})
	return t
}

func (t *wallTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.timer.Stop()
	return true
}

// Runner is a Loop that owns the goroutine it runs on.
type Runner interface {
	Loop
	Run(ctx context.Context) error
}
