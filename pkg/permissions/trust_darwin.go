//go:build darwin

package permissions

/*
#cgo darwin LDFLAGS: -framework ApplicationServices -framework CoreFoundation
#include <ApplicationServices/ApplicationServices.h>
#include <stdbool.h>

static bool axTrusted(bool prompt) {
        const void *keys[] = { kAXTrustedCheckOptionPrompt };
        const void *values[] = { prompt ? kCFBooleanTrue : kCFBooleanFalse };
        CFDictionaryRef options = CFDictionaryCreate(kCFAllocatorDefault, keys, values, 1,
                                                     &kCFTypeDictionaryKeyCallBacks,
                                                     &kCFTypeDictionaryValueCallBacks);
        Boolean trusted = AXIsProcessTrustedWithOptions(options);
        CFRelease(options);
        return trusted;
}
*/
import "C"

func trusted(prompt bool) bool {
	return bool(C.axTrusted(C.bool(prompt)))
}
