// Package buildinfo reports the version stamped into the binary.
package buildinfo

import "runtime/debug"

// version is overridden at link time:
//
//	go build -ldflags "-X github.com/offlinefirst/scrollzoom/internal/buildinfo.version=v1.2.0"
var version = "dev"

var readBuildInfo = debug.ReadBuildInfo

// Version returns the release tag, the module version of an installed
// binary, or "dev".
func Version() string {
	if version != "dev" {
		return version
	}
	if info, ok := readBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// Revision returns the short VCS revision the binary was built from, with a
// "+dirty" suffix for modified trees, or "" when unknown.
func Revision() string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	var rev string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "+dirty"
	}
	return rev
}
