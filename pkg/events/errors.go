package events

import "errors"

// ErrAccessibilityPermission indicates the host must grant Accessibility trust.
var ErrAccessibilityPermission = errors.New("macOS accessibility permission required for event interception")

// ErrUnsupported is returned by NewPlatform where no system backend exists.
var ErrUnsupported = errors.New("system event interception unsupported on this platform")
