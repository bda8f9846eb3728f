//go:build darwin

package dotdash

/*
#cgo darwin LDFLAGS: -F/System/Library/PrivateFrameworks -framework MultitouchSupport -framework CoreFoundation -framework IOKit
#include <CoreFoundation/CoreFoundation.h>
#include <IOKit/IOKitLib.h>
#include <IOKit/hid/IOHIDKeys.h>
#include <IOKit/hid/IOHIDUsageTables.h>
#include <dispatch/dispatch.h>
#include <stdint.h>
#include <stdlib.h>

typedef void *MTDeviceRef;

typedef struct { float x, y; } MTPoint;

typedef struct {
        uint32_t frame;
        uint32_t _padding1[1];
        double   timestamp;
        uint32_t pathID;
        uint32_t phase;
        uint32_t fingerID;
        uint32_t _padding2[1];
        MTPoint  location;
        MTPoint  velocity;
        float    zTotal;
        uint32_t _padding3[1];
        float    angle;
        float    majorAxis;
        float    minorAxis;
        MTPoint  locationMM;
        MTPoint  velocityMM;
        uint32_t _padding4[2];
        float    zDensity;
} MTTouch;

typedef int (*MTContactCallback)(MTDeviceRef, const MTTouch *, long, double, uint32_t, void *);

extern MTDeviceRef MTDeviceCreateFromService(io_service_t);
extern OSStatus MTDeviceGetFamilyID(MTDeviceRef, uint32_t *);
extern io_service_t MTDeviceGetService(MTDeviceRef);
extern void MTRegisterContactFrameCallbackWithRefcon(MTDeviceRef, MTContactCallback, void *);
extern void MTUnregisterContactFrameCallback(MTDeviceRef, MTContactCallback);
extern OSStatus MTDeviceStart(MTDeviceRef, int);
extern OSStatus MTDeviceStop(MTDeviceRef);

typedef struct {
        uint32_t pathID;
        uint32_t phase;
        double   x, y, vx, vy, density;
} frameTouch;

extern void goContactFrame(uintptr_t token, uint64_t registryID, frameTouch *touches, int count);
extern void goDeviceAdded(uintptr_t token, uint64_t registryID);
extern void goDeviceRemoved(uintptr_t token, uint64_t registryID);
extern void goSourceReleased(uintptr_t token);

enum { magicMouseFamily = 112, maxTouches = 16 };

// miceWatch owns the IOKit notifications and the started mice of one
// source. After Start returns it is only touched on its serial queue.
typedef struct {
        uintptr_t              token;
        IONotificationPortRef  port;
        io_iterator_t          added;
        io_iterator_t          removed;
        CFMutableDictionaryRef mice;
        dispatch_queue_t       queue;
} miceWatch;

static int contactFrame(MTDeviceRef device, const MTTouch *touches, long count, double time, uint32_t frame, void *refcon) {
        uint64_t registryID = 0;
        IORegistryEntryGetRegistryEntryID(MTDeviceGetService(device), &registryID);

        frameTouch converted[maxTouches];
        int n = 0;
        for (long i = 0; i < count && n < maxTouches; i++) {
                converted[n].pathID = touches[i].pathID;
                converted[n].phase = touches[i].phase;
                converted[n].x = touches[i].location.x;
                converted[n].y = touches[i].location.y;
                converted[n].vx = touches[i].velocity.x;
                converted[n].vy = touches[i].velocity.y;
                converted[n].density = touches[i].zDensity;
                n++;
        }
        goContactFrame((uintptr_t)refcon, registryID, converted, n);
        return 0;
}

static CFNumberRef registryKey(uint64_t registryID) {
        return CFNumberCreate(kCFAllocatorDefault, kCFNumberSInt64Type, &registryID);
}

static void stopMouse(MTDeviceRef device) {
        MTUnregisterContactFrameCallback(device, contactFrame);
        MTDeviceStop(device);
}

static void miceAdded(void *refcon, io_iterator_t iterator) {
        miceWatch *w = refcon;
        io_object_t item;
        while ((item = IOIteratorNext(iterator))) {
                uint64_t registryID = 0;
                IORegistryEntryGetRegistryEntryID(item, &registryID);
                MTDeviceRef device = MTDeviceCreateFromService(item);
                IOObjectRelease(item);
                if (device == NULL) {
                        continue;
                }
                uint32_t family = 0;
                MTDeviceGetFamilyID(device, &family);
                CFNumberRef key = registryKey(registryID);
                if (family == magicMouseFamily && !CFDictionaryContainsKey(w->mice, key)) {
                        CFDictionarySetValue(w->mice, key, device);
                        MTRegisterContactFrameCallbackWithRefcon(device, contactFrame, (void *)w->token);
                        MTDeviceStart(device, 0);
                        goDeviceAdded(w->token, registryID);
                }
                CFRelease(key);
                CFRelease(device);
        }
}

static void miceRemoved(void *refcon, io_iterator_t iterator) {
        miceWatch *w = refcon;
        io_object_t item;
        while ((item = IOIteratorNext(iterator))) {
                uint64_t registryID = 0;
                IORegistryEntryGetRegistryEntryID(item, &registryID);
                IOObjectRelease(item);
                CFNumberRef key = registryKey(registryID);
                MTDeviceRef device = (MTDeviceRef)CFDictionaryGetValue(w->mice, key);
                if (device != NULL) {
                        stopMouse(device);
                        CFDictionaryRemoveValue(w->mice, key);
                        goDeviceRemoved(w->token, registryID);
                }
                CFRelease(key);
        }
}

static CFMutableDictionaryRef miceMatching(void) {
        CFMutableDictionaryRef match = IOServiceMatching("AppleMultitouchDevice");
        if (match == NULL) {
                return NULL;
        }
        int value = kHIDPage_GenericDesktop;
        CFNumberRef page = CFNumberCreate(kCFAllocatorDefault, kCFNumberIntType, &value);
        CFDictionarySetValue(match, CFSTR(kIOHIDDeviceUsagePageKey), page);
        CFRelease(page);
        value = kHIDUsage_GD_Mouse;
        CFNumberRef usage = CFNumberCreate(kCFAllocatorDefault, kCFNumberIntType, &value);
        CFDictionarySetValue(match, CFSTR(kIOHIDDeviceUsageKey), usage);
        CFRelease(usage);
        return match;
}

static void freeWatch(miceWatch *w) {
        if (w->added) {
                IOObjectRelease(w->added);
        }
        if (w->removed) {
                IOObjectRelease(w->removed);
        }
        if (w->port) {
                IONotificationPortDestroy(w->port);
        }
        if (w->mice) {
                CFIndex n = CFDictionaryGetCount(w->mice);
                const void **devices = calloc(n > 0 ? n : 1, sizeof(void *));
                CFDictionaryGetKeysAndValues(w->mice, NULL, devices);
                for (CFIndex i = 0; i < n; i++) {
                        stopMouse((MTDeviceRef)devices[i]);
                }
                free(devices);
                CFRelease(w->mice);
        }
        if (w->queue) {
                dispatch_release(w->queue);
        }
        free(w);
}

// watchMice starts every connected Magic Mouse and arms the notifications
// for later arrivals and departures. The initial drain runs on the calling
// thread; later callbacks run on the watch's own queue.
static miceWatch *watchMice(uintptr_t token, kern_return_t *status) {
        miceWatch *w = calloc(1, sizeof(miceWatch));
        w->token = token;
        w->mice = CFDictionaryCreateMutable(kCFAllocatorDefault, 0, &kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
        w->port = IONotificationPortCreate(MACH_PORT_NULL);

        CFMutableDictionaryRef match = miceMatching();
        if (match == NULL || w->port == NULL) {
                *status = kIOReturnError;
                if (match != NULL) {
                        CFRelease(match);
                }
                freeWatch(w);
                return NULL;
        }
        // Each registration consumes one reference.
        CFRetain(match);
        *status = IOServiceAddMatchingNotification(w->port, kIOFirstMatchNotification, match, miceAdded, w, &w->added);
        if (*status != KERN_SUCCESS) {
                CFRelease(match);
                freeWatch(w);
                return NULL;
        }
        *status = IOServiceAddMatchingNotification(w->port, kIOWillTerminateNotification, match, miceRemoved, w, &w->removed);
        if (*status != KERN_SUCCESS) {
                freeWatch(w);
                return NULL;
        }

        miceAdded(w, w->added);
        miceRemoved(w, w->removed);
        w->queue = dispatch_queue_create("scrollzoom.multitouch", DISPATCH_QUEUE_SERIAL);
        IONotificationPortSetDispatchQueue(w->port, w->queue);
        return w;
}

static void teardown(void *ctx) {
        miceWatch *w = ctx;
        uintptr_t token = w->token;
        freeWatch(w);
        goSourceReleased(token);
}

// unwatchMice releases the watch on its own queue so it never waits for a
// notification that is blocked delivering to the caller.
static void unwatchMice(miceWatch *w) {
        dispatch_async_f(w->queue, w, teardown);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

type multitouchSource struct {
	mu    sync.Mutex
	watch *C.miceWatch
	live  *liveSink
}

// NewSource returns the MultitouchSupport backend for Magic Mouse surfaces.
func NewSource() (Source, error) {
	return &multitouchSource{}, nil
}

//export goContactFrame
func goContactFrame(token C.uintptr_t, registryID C.uint64_t, touches *C.frameTouch, count C.int) {
	live := registry.lookup(uintptr(token))
	if live == nil || live.stopped.Load() {
		return
	}
	raw := unsafe.Slice(touches, int(count))
	frame := make([]Touch, 0, len(raw))
	for _, t := range raw {
		frame = append(frame, Touch{
			PathID:   uint32(t.pathID),
			Phase:    TouchPhase(t.phase),
			Location: Vec{X: float64(t.x), Y: float64(t.y)},
			Velocity: Vec{X: float64(t.vx), Y: float64(t.vy)},
			Density:  float64(t.density),
		})
	}
	live.frame(uint64(registryID), frame)
}

//export goDeviceAdded
func goDeviceAdded(token C.uintptr_t, registryID C.uint64_t) {
	if live := registry.lookup(uintptr(token)); live != nil {
		live.added()
	}
}

//export goDeviceRemoved
func goDeviceRemoved(token C.uintptr_t, registryID C.uint64_t) {
	if live := registry.lookup(uintptr(token)); live != nil {
		live.removed(uint64(registryID))
	}
}

//export goSourceReleased
func goSourceReleased(token C.uintptr_t) {
	registry.release(uintptr(token))
}

// Start succeeds with no mouse connected; mice that arrive later are picked
// up as they match.
func (s *multitouchSource) Start(sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watch != nil {
		return nil
	}
	token, live := registry.register(sink)
	var status C.kern_return_t
	watch := C.watchMice(C.uintptr_t(token), &status)
	if watch == nil {
		registry.release(token)
		return fmt.Errorf("watch multitouch devices: IOKit status %#x", uint32(status))
	}
	s.watch, s.live = watch, live
	return nil
}

// Stop returns without waiting for the teardown. Frames and disconnections
// reported after it are dropped.
func (s *multitouchSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watch == nil {
		return
	}
	s.live.stopped.Store(true)
	C.unwatchMice(s.watch)
	s.watch, s.live = nil, nil
}

// Devices reports how many Magic Mice are currently started.
func (s *multitouchSource) Devices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil {
		return 0
	}
	return int(s.live.devices.Load())
}
