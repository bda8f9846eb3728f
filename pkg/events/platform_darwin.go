//go:build darwin

package events

/*
#cgo darwin LDFLAGS: -framework CoreGraphics -framework ApplicationServices -framework CoreFoundation
#include <ApplicationServices/ApplicationServices.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdbool.h>
#include <stdint.h>
#include <time.h>

extern CGEventRef goTapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *userInfo);
extern void goTapListChanged(uintptr_t handle, int added);

static CFMachPortRef createTap(CGEventTapLocation location, CGEventTapPlacement placement,
                               CGEventTapOptions options, CGEventMask mask, uintptr_t handle) {
        return CGEventTapCreate(location, placement, options, mask, goTapCallback, (void *)handle);
}

static CFRunLoopSourceRef attachTap(CFMachPortRef port, bool enabled) {
        CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, port, 0);
        CGEventTapEnable(port, enabled);
        CFRunLoopAddSource(CFRunLoopGetMain(), source, kCFRunLoopCommonModes);
        return source;
}

static void detachTap(CFMachPortRef port, CFRunLoopSourceRef source) {
        CFRunLoopRemoveSource(CFRunLoopGetMain(), source, kCFRunLoopCommonModes);
        CGEventTapEnable(port, false);
        CFMachPortInvalidate(port);
        CFRelease(source);
        CFRelease(port);
}

static uint32_t tapCount(void) {
        uint32_t count = 0;
        CGGetEventTapList(0, NULL, &count);
        return count;
}

static uint32_t copyTaps(CGEventTapInformation *infos, uint32_t capacity) {
        uint32_t count = 0;
        CGGetEventTapList(capacity, infos, &count);
        return count;
}

static void tapAdded(CFNotificationCenterRef center, void *observer, CFNotificationName name,
                     const void *object, CFDictionaryRef userInfo) {
        goTapListChanged((uintptr_t)observer, 1);
}

static void tapRemoved(CFNotificationCenterRef center, void *observer, CFNotificationName name,
                       const void *object, CFDictionaryRef userInfo) {
        goTapListChanged((uintptr_t)observer, 0);
}

static void watchTaps(uintptr_t handle) {
        CFNotificationCenterRef center = CFNotificationCenterGetDarwinNotifyCenter();
        CFNotificationCenterAddObserver(center, (const void *)handle, tapAdded,
                                        CFSTR(kCGNotifyEventTapAdded), NULL, 0);
        CFNotificationCenterAddObserver(center, (const void *)handle, tapRemoved,
                                        CFSTR(kCGNotifyEventTapRemoved), NULL, 0);
}

static void unwatchTaps(uintptr_t handle) {
        CFNotificationCenterRemoveEveryObserver(CFNotificationCenterGetDarwinNotifyCenter(), (const void *)handle);
}

static CGEventRef createFromSample(CGEventRef sample, CGEventType type) {
        CGEventSourceRef source = CGEventCreateSourceFromEvent(sample);
        CGEventRef event = CGEventCreate(source);
        if (source != NULL) {
                CFRelease(source);
        }
        CGEventSetType(event, type);
        CGEventSetFlags(event, CGEventGetFlags(sample));
        CGEventSetLocation(event, CGEventGetLocation(sample));
        CGEventSetTimestamp(event, CGEventGetTimestamp(sample));
        return event;
}

static void postAndRelease(CGEventRef event) {
        CGEventPost(kCGSessionEventTap, event);
        CFRelease(event);
}

static double eventX(CGEventRef event) {
        return CGEventGetLocation(event).x;
}

static double eventY(CGEventRef event) {
        return CGEventGetLocation(event).y;
}

static void setEventLocation(CGEventRef event, double x, double y) {
        CGEventSetLocation(event, CGPointMake(x, y));
}

static uint64_t uptimeNanos(void) {
        return clock_gettime_nsec_np(CLOCK_UPTIME_RAW);
}
*/
import "C"

import (
	"fmt"
	"os"
	"runtime/cgo"
	"sync"
	"time"
	"unsafe"
)

type quartzEvent struct {
	ref C.CGEventRef
}

func (e *quartzEvent) Type() Type { return Type(C.CGEventGetType(e.ref)) }

func (e *quartzEvent) SenderID() uint64 {
	return uint64(C.CGEventGetIntegerValueField(e.ref, C.CGEventField(FieldRegistryID)))
}

func (e *quartzEvent) Timestamp() time.Duration {
	return time.Duration(C.CGEventGetTimestamp(e.ref))
}

func (e *quartzEvent) SetTimestamp(t time.Duration) {
	C.CGEventSetTimestamp(e.ref, C.CGEventTimestamp(t))
}

func (e *quartzEvent) Location() Point {
	return Point{X: float64(C.eventX(e.ref)), Y: float64(C.eventY(e.ref))}
}

func (e *quartzEvent) SetLocation(p Point) {
	C.setEventLocation(e.ref, C.double(p.X), C.double(p.Y))
}

func (e *quartzEvent) Flags() Flags { return Flags(C.CGEventGetFlags(e.ref)) }

func (e *quartzEvent) SetFlags(f Flags) { C.CGEventSetFlags(e.ref, C.CGEventFlags(f)) }

func (e *quartzEvent) Integer(f Field) int64 {
	return int64(C.CGEventGetIntegerValueField(e.ref, C.CGEventField(f)))
}

func (e *quartzEvent) SetInteger(f Field, v int64) {
	C.CGEventSetIntegerValueField(e.ref, C.CGEventField(f), C.int64_t(v))
}

func (e *quartzEvent) Double(f Field) float64 {
	return float64(C.CGEventGetDoubleValueField(e.ref, C.CGEventField(f)))
}

func (e *quartzEvent) SetDouble(f Field, v float64) {
	C.CGEventSetDoubleValueField(e.ref, C.CGEventField(f), C.double(v))
}

func (e *quartzEvent) Retain() Event {
	C.CFRetain(C.CFTypeRef(e.ref))
	return &quartzEvent{ref: e.ref}
}

func (e *quartzEvent) Release() {
	C.CFRelease(C.CFTypeRef(e.ref))
}

type quartzTap struct {
	spec    TapSpec
	handler Handler
	handle  cgo.Handle
	port    C.CFMachPortRef
	source  C.CFRunLoopSourceRef
	enabled bool
}

func (t *quartzTap) SetEnabled(v bool) {
	if t.port == 0 || t.enabled == v {
		return
	}
	t.enabled = v
	C.CGEventTapEnable(t.port, C.bool(v))
}

func (t *quartzTap) Enabled() bool { return t.enabled }

func (t *quartzTap) Close() {
	if t.port == 0 {
		return
	}
	C.detachTap(t.port, t.source)
	t.port = 0
	t.source = 0
	t.enabled = false
	t.handle.Delete()
}

//export goTapCallback
func goTapCallback(_ C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, userInfo unsafe.Pointer) C.CGEventRef {
	tap, ok := cgo.Handle(uintptr(userInfo)).Value().(*quartzTap)
	if !ok {
		return event
	}

	t := Type(eventType)
	if t == TypeTapDisabledByTimeout || t == TypeTapDisabledByUserInput {
		tap.enabled = false
		tap.handler(notice{typ: t})
		return event
	}

	out := tap.handler(&quartzEvent{ref: event})
	if out == nil {
		return 0
	}
	if q, ok := out.(*quartzEvent); ok {
		return q.ref
	}
	return event
}

type tapWatcher struct {
	added, removed func()
}

//export goTapListChanged
func goTapListChanged(handle C.uintptr_t, added C.int) {
	w, ok := cgo.Handle(uintptr(handle)).Value().(*tapWatcher)
	if !ok {
		return
	}
	if added != 0 {
		if w.added != nil {
			w.added()
		}
	} else if w.removed != nil {
		w.removed()
	}
}

type quartzPlatform struct {
	pid int32
}

// NewPlatform returns the Quartz event tap backend. Taps attach to the main
// run loop, so every method must be called from it.
func NewPlatform() (Platform, error) {
	return &quartzPlatform{pid: int32(os.Getpid())}, nil
}

func (p *quartzPlatform) PID() int32 { return p.pid }

func (p *quartzPlatform) Now() time.Duration { return time.Duration(C.uptimeNanos()) }

func (p *quartzPlatform) CreateTap(spec TapSpec, handler Handler) (Tap, error) {
	tap := &quartzTap{spec: spec, handler: handler, enabled: spec.Enabled}
	tap.handle = cgo.NewHandle(tap)

	port := C.createTap(quartzLocation(spec.Location), quartzPlacement(spec.Placement),
		quartzOptions(spec.Options), C.CGEventMask(spec.Mask), C.uintptr_t(tap.handle))
	if port == 0 {
		tap.handle.Delete()
		return nil, fmt.Errorf("%w: %s", ErrTapCreate, spec.Name)
	}
	tap.port = port
	tap.source = C.attachTap(port, C.bool(spec.Enabled))
	return tap, nil
}

func (p *quartzPlatform) ListTaps() ([]TapInfo, error) {
	count := C.tapCount()
	if count == 0 {
		return nil, nil
	}
	raw := make([]C.CGEventTapInformation, int(count))
	count = C.copyTaps(&raw[0], count)

	infos := make([]TapInfo, 0, int(count))
	for _, r := range raw[:int(count)] {
		options := OptionDefault
		if r.options&C.kCGEventTapOptionListenOnly != 0 {
			options = OptionListenOnly
		}
		infos = append(infos, TapInfo{
			ID:         uint32(r.eventTapID),
			Mask:       Mask(r.eventsOfInterest),
			Options:    options,
			TappingPID: int32(r.tappingProcess),
			TappedPID:  int32(r.processBeingTapped),
			Enabled:    bool(r.enabled),
		})
	}
	return infos, nil
}

func (p *quartzPlatform) WatchTaps(added, removed func()) (func(), error) {
	handle := cgo.NewHandle(&tapWatcher{added: added, removed: removed})
	C.watchTaps(C.uintptr_t(handle))
	var once sync.Once
	return func() {
		once.Do(func() {
			C.unwatchTaps(C.uintptr_t(handle))
			handle.Delete()
		})
	}, nil
}

func (p *quartzPlatform) NewScrollWheel(sample Event) Event {
	return &quartzEvent{ref: C.createFromSample(refOf(sample), C.kCGEventScrollWheel)}
}

func (p *quartzPlatform) NewZoomGesture(sample Event) Event {
	ev := &quartzEvent{ref: C.createFromSample(refOf(sample), C.CGEventType(TypeGesture))}
	ev.SetInteger(FieldGestureHIDType, HIDTypeZoom)
	return ev
}

func (p *quartzPlatform) Post(ev Event) {
	q, ok := ev.(*quartzEvent)
	if !ok {
		ev.Release()
		return
	}
	C.postAndRelease(q.ref)
}

func refOf(ev Event) C.CGEventRef {
	if q, ok := ev.(*quartzEvent); ok {
		return q.ref
	}
	return 0
}

func quartzLocation(l Location) C.CGEventTapLocation {
	switch l {
	case LocationSession:
		return C.kCGSessionEventTap
	case LocationAnnotatedSession:
		return C.kCGAnnotatedSessionEventTap
	default:
		return C.kCGHIDEventTap
	}
}

func quartzPlacement(p Placement) C.CGEventTapPlacement {
	if p == TailAppend {
		return C.kCGTailAppendEventTap
	}
	return C.kCGHeadInsertEventTap
}

func quartzOptions(o Options) C.CGEventTapOptions {
	if o == OptionListenOnly {
		return C.kCGEventTapOptionListenOnly
	}
	return C.kCGEventTapOptionDefault
}
