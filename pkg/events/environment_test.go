package events

import (
	"runtime"
	"testing"

	"github.com/offlinefirst/scrollzoom/pkg/permissions"
)

func TestDetectEnvironmentSetsFields(t *testing.T) {
	env := DetectEnvironment(nil)
	if env.Provider == "" {
		t.Fatalf("expected provider")
	}
	if env.Permission == "" {
		t.Fatalf("expected permission status")
	}
	if env.Message == "" {
		t.Fatalf("expected message")
	}
}

func TestDetectEnvironmentHonoursDeniedOverride(t *testing.T) {
	if runtime.GOOS != "darwin" {
		t.Skip("permission only matters for the quartz provider")
	}
	lookup := func(key string) (string, bool) {
		if key == permissions.AccessibilityEnv {
			return "denied", true
		}
		return "", false
	}
	env := DetectEnvironment(lookup)
	if env.Available {
		t.Fatalf("expected quartz taps to be unavailable when denied")
	}
	if env.Permission != string(permissions.StatusDenied) {
		t.Fatalf("expected denied permission, got %s", env.Permission)
	}
}
