package permissions

import (
	"os"
	"runtime"
	"strings"
)

// Status enumerates coarse permission results for macOS-style prompts.
type Status string

const (
	// StatusUnknown indicates no explicit signal about permission state.
	StatusUnknown Status = "unknown"
	// StatusGranted signals that permission was previously granted.
	StatusGranted Status = "granted"
	// StatusDenied indicates the user has explicitly denied access.
	StatusDenied Status = "denied"
	// StatusPromptRequired means the platform will prompt at runtime.
	StatusPromptRequired Status = "prompt"
	// StatusUnavailable reports that the capability is not supported.
	StatusUnavailable Status = "unavailable"
)

// AccessibilityEnv overrides the accessibility check, mainly for tests and CI.
const AccessibilityEnv = "SCROLLZOOM_ACCESSIBILITY"

// CheckResult represents the coarse state for a permission surface.
type CheckResult struct {
	Status   Status
	Message  string
	Guidance string
}

// LookupEnvFunc exposes environment probing for testability.
type LookupEnvFunc func(string) (string, bool)

// DefaultLookupEnv is the standard environment resolver.
func DefaultLookupEnv(key string) (string, bool) {
	return lookupEnv(key)
}

// lookupEnv is declared for swapping in tests.
var lookupEnv = func(key string) (string, bool) {
	return os.LookupEnv(key)
}

// CheckAccessibility reports whether this process may intercept input
// system-wide. It never prompts.
func CheckAccessibility(lookup LookupEnvFunc) CheckResult {
	if lookup == nil {
		lookup = lookupEnv
	}
	if value, ok := lookup(AccessibilityEnv); ok {
		return interpretPermissionFlag("accessibility", value)
	}
	if runtime.GOOS != "darwin" {
		return CheckResult{Status: StatusUnavailable, Message: "accessibility trust unavailable on this platform"}
	}
	if trusted(false) {
		return CheckResult{Status: StatusGranted, Message: "accessibility trust granted"}
	}
	return CheckResult{
		Status:   StatusPromptRequired,
		Message:  "accessibility trust required",
		Guidance: "enable scrollzoom under System Settings > Privacy & Security > Accessibility",
	}
}

// AccessibilityCheck returns the permission gate consulted before taps are
// registered. An env override decides on its own; otherwise the system trust
// state is read, optionally showing the system prompt when untrusted.
func AccessibilityCheck(lookup LookupEnvFunc, prompt bool) func() bool {
	if lookup == nil {
		lookup = lookupEnv
	}
	return func() bool {
		if value, ok := lookup(AccessibilityEnv); ok {
			return interpretPermissionFlag("accessibility", value).Status == StatusGranted
		}
		return trusted(prompt)
	}
}

func interpretPermissionFlag(name, value string) CheckResult {
	normalised := strings.ToLower(strings.TrimSpace(value))
	switch normalised {
	case "granted", "allow", "allowed", "yes", "true":
		return CheckResult{Status: StatusGranted, Message: name + " permission pre-authorised via env override"}
	case "denied", "no", "false", "blocked":
		return CheckResult{Status: StatusDenied, Message: name + " permission denied via env override", Guidance: "use 'tccutil reset Accessibility' or update " + AccessibilityEnv + " to re-test"}
	case "prompt", "ask":
		return CheckResult{Status: StatusPromptRequired, Message: name + " permission will prompt at runtime"}
	case "unavailable", "unsupported":
		return CheckResult{Status: StatusUnavailable, Message: name + " permission unavailable on this platform"}
	default:
		return CheckResult{Status: StatusUnknown, Message: name + " permission state unknown"}
	}
}

// StatusString returns the string representation used in status output.
func (p CheckResult) StatusString() string {
	if p.Status == "" {
		return string(StatusUnknown)
	}
	return string(p.Status)
}
