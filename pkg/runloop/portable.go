package runloop

import (
	"context"
	"time"
)

// Portable is a Loop backed by a goroutine draining a queue. It serves the
// simulator and platforms without a native run loop.
type Portable struct {
	q     queue
	wake  chan struct{}
	start time.Time
}

// NewPortable returns a loop that runs once Run is called.
func NewPortable() *Portable {
	return &Portable{wake: make(chan struct{}, 1), start: time.Now()}
}

func (l *Portable) Post(fn func()) {
	l.q.push(fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Portable) Send(fn func()) { send(l.Post, fn) }

func (l *Portable) After(d time.Duration, fn func()) Timer {
	return afterFunc(l.Post, d, fn)
}

func (l *Portable) Now() time.Duration { return time.Since(l.start) }

// Run processes queued work on the calling goroutine until ctx is done.
func (l *Portable) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.q.drain()
			return ctx.Err()
		case <-l.wake:
			l.q.drain()
		}
	}
}
