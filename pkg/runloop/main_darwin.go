//go:build darwin

package runloop

/*
#cgo darwin LDFLAGS: -framework CoreFoundation
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>
#include <time.h>

extern void goRunLoopPerform(uintptr_t handle);

static void performQueued(void *info) {
        goRunLoopPerform((uintptr_t)info);
}

static CFRunLoopSourceRef addQueueSource(uintptr_t handle) {
        CFRunLoopSourceContext context = {0};
        context.info = (void *)handle;
        context.perform = performQueued;
        CFRunLoopSourceRef source = CFRunLoopSourceCreate(kCFAllocatorDefault, 0, &context);
        CFRunLoopAddSource(CFRunLoopGetMain(), source, kCFRunLoopCommonModes);
        return source;
}

static void signalQueueSource(CFRunLoopSourceRef source) {
        CFRunLoopSourceSignal(source);
        CFRunLoopWakeUp(CFRunLoopGetMain());
}

static void removeQueueSource(CFRunLoopSourceRef source) {
        CFRunLoopSourceInvalidate(source);
        CFRelease(source);
}

static void runMainLoop(void) {
        CFRunLoopRun();
}

static void stopMainLoop(void) {
        CFRunLoopStop(CFRunLoopGetMain());
}

static uint64_t uptimeNanos(void) {
        return clock_gettime_nsec_np(CLOCK_UPTIME_RAW);
}
*/
import "C"

import (
	"context"
	"runtime/cgo"
	"sync"
	"time"
)

// cfLoop drives the process main CFRunLoop. Event taps and tap-list
// notifications attach to the same loop, so queued work interleaves with
// them on the main thread.
type cfLoop struct {
	q      queue
	handle cgo.Handle
	source C.CFRunLoopSourceRef
	once   sync.Once
}

// NewMain returns the main-thread loop. Run must be called from the main OS
// thread, which the binary locks during init.
func NewMain() Runner {
	l := &cfLoop{}
	l.handle = cgo.NewHandle(l)
	l.source = C.addQueueSource(C.uintptr_t(l.handle))
	return l
}

//export goRunLoopPerform
func goRunLoopPerform(handle C.uintptr_t) {
	if l, ok := cgo.Handle(uintptr(handle)).Value().(*cfLoop); ok {
		l.q.drain()
	}
}

func (l *cfLoop) Post(fn func()) {
	l.q.push(fn)
	C.signalQueueSource(l.source)
}

func (l *cfLoop) Send(fn func()) { send(l.Post, fn) }

func (l *cfLoop) After(d time.Duration, fn func()) Timer {
	return afterFunc(l.Post, d, fn)
}

func (l *cfLoop) Now() time.Duration { return time.Duration(C.uptimeNanos()) }

func (l *cfLoop) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			C.stopMainLoop()
		case <-stopped:
		}
	}()

	C.runMainLoop()
	close(stopped)
	l.q.drain()
	l.once.Do(func() {
		C.removeQueueSource(l.source)
		l.handle.Delete()
	})
	return ctx.Err()
}
