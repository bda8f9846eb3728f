//go:build darwin

package procinfo

/*
#cgo darwin CFLAGS: -x objective-c -fobjc-arc
#cgo darwin LDFLAGS: -framework AppKit -framework Foundation
#import <AppKit/AppKit.h>
#include <stdlib.h>
#include <string.h>

static char *copyBundleIdentifier(pid_t pid) {
        @autoreleasepool {
                NSRunningApplication *app = [NSRunningApplication runningApplicationWithProcessIdentifier:pid];
                NSString *identifier = app.bundleIdentifier;
                if (identifier == nil) {
                        return NULL;
                }
                return strdup(identifier.UTF8String);
        }
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

func lookupPlatform(pid int32) (Info, error) {
	info := Info{PID: pid}

	kp, err := unix.SysctlKinfoProc("kern.proc.pid", int(pid))
	if err != nil {
		return info, fmt.Errorf("sysctl kern.proc.pid %d: %w", pid, err)
	}
	if kp.Proc.P_pid != pid {
		return info, fmt.Errorf("%w: %d", ErrNoProcess, pid)
	}
	info.Name = unix.ByteSliceToString(kp.Proc.P_comm[:])

	if cstr := C.copyBundleIdentifier(C.pid_t(pid)); cstr != nil {
		info.BundleID = C.GoString(cstr)
		C.free(unsafe.Pointer(cstr))
	}
	return info, nil
}
