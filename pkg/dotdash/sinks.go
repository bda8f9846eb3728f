package dotdash

import (
	"sync"
	"sync/atomic"
)

// liveSink is the Go side of one started source as seen from the system's
// callback threads. Once stopped it swallows everything, so a callback that
// races with Stop never reaches a sink the engine has let go of.
type liveSink struct {
	sink    Sink
	stopped atomic.Bool
	devices atomic.Int32
}

func (l *liveSink) frame(deviceID uint64, touches []Touch) {
	if l.stopped.Load() {
		return
	}
	l.sink.HandleFrame(deviceID, touches)
}

func (l *liveSink) added() {
	l.devices.Add(1)
}

func (l *liveSink) removed(deviceID uint64) {
	l.devices.Add(-1)
	if l.stopped.Load() {
		return
	}
	l.sink.Forget(deviceID)
}

// sinkRegistry hands C callbacks an integer token instead of a Go pointer.
// Looking up a released token yields nil rather than a panic.
type sinkRegistry struct {
	mu    sync.Mutex
	next  uintptr
	sinks map[uintptr]*liveSink
}

var registry = &sinkRegistry{sinks: make(map[uintptr]*liveSink)}

func (r *sinkRegistry) register(sink Sink) (uintptr, *liveSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	l := &liveSink{sink: sink}
	r.sinks[r.next] = l
	return r.next, l
}

func (r *sinkRegistry) lookup(token uintptr) *liveSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sinks[token]
}

func (r *sinkRegistry) release(token uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, token)
}
