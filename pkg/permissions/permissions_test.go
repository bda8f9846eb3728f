package permissions

import (
	"runtime"
	"testing"
)

type fakeLookup map[string]string

func (f fakeLookup) get(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

func TestInterpretPermissionFlag(t *testing.T) {
	cases := map[string]struct {
		value    string
		expected Status
	}{
		"granted":     {"granted", StatusGranted},
		"denied":      {"denied", StatusDenied},
		"prompt":      {"prompt", StatusPromptRequired},
		"unsupported": {"unsupported", StatusUnavailable},
		"unknown":     {"", StatusUnknown},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := interpretPermissionFlag("test", tc.value)
			if res.Status != tc.expected {
				t.Fatalf("expected %s, got %s", tc.expected, res.Status)
			}
		})
	}
}

func TestCheckAccessibilityHonoursEnv(t *testing.T) {
	lookup := fakeLookup{AccessibilityEnv: "denied"}
	res := CheckAccessibility(lookup.get)
	if res.Status != StatusDenied {
		t.Fatalf("expected denied, got %s", res.Status)
	}
	if res.Guidance == "" {
		t.Fatalf("expected guidance when denied")
	}
}

func TestCheckAccessibilityDefaults(t *testing.T) {
	res := CheckAccessibility(fakeLookup{}.get)
	if res.Status == StatusUnknown {
		t.Fatalf("expected platform specific default, got unknown")
	}
	if runtime.GOOS != "darwin" && res.Status != StatusUnavailable {
		t.Fatalf("expected unavailable off darwin, got %s", res.Status)
	}
}

func TestAccessibilityCheckFollowsOverride(t *testing.T) {
	lookup := fakeLookup{AccessibilityEnv: "yes"}
	if !AccessibilityCheck(lookup.get, false)() {
		t.Fatalf("expected override to grant")
	}
	lookup[AccessibilityEnv] = "blocked"
	if AccessibilityCheck(lookup.get, false)() {
		t.Fatalf("expected override to deny")
	}
}

func TestAccessibilityCheckWithoutOverrideOffDarwin(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("reads real trust state on darwin")
	}
	if AccessibilityCheck(fakeLookup{}.get, true)() {
		t.Fatalf("expected no trust off darwin")
	}
}
