package buildinfo

import (
	"runtime/debug"
	"testing"
)

func stubBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
	t.Cleanup(func() { readBuildInfo = orig })
}

func TestVersionPrefersLinkedValue(t *testing.T) {
	orig := version
	version = "v1.2.0"
	defer func() { version = orig }()

	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "v0.9.0"}})
	if got := Version(); got != "v1.2.0" {
		t.Fatalf("expected linked version, got %q", got)
	}
}

func TestVersionFallsBackToModule(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "v0.9.0"}})
	if got := Version(); got != "v0.9.0" {
		t.Fatalf("expected module version, got %q", got)
	}

	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if got := Version(); got != "dev" {
		t.Fatalf("expected dev for local builds, got %q", got)
	}
}

func TestRevision(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.modified", Value: "true"},
	}})
	if got := Revision(); got != "0123456789ab+dirty" {
		t.Fatalf("unexpected revision %q", got)
	}

	stubBuildInfo(t, nil)
	if got := Revision(); got != "" {
		t.Fatalf("expected empty revision, got %q", got)
	}
}
