package events

import (
	"runtime"

	"github.com/offlinefirst/scrollzoom/pkg/permissions"
)

// Environment summarises interception backend support.
type Environment struct {
	Provider   string `json:"provider"`
	Available  bool   `json:"available"`
	Permission string `json:"permission"`
	Message    string `json:"message,omitempty"`
	Guidance   string `json:"guidance,omitempty"`
}

const (
	providerQuartz    = "quartz_event_tap"
	providerSimulator = "simulator"
)

// DetectEnvironment reports whether real Quartz event taps can be installed.
func DetectEnvironment(lookup permissions.LookupEnvFunc) Environment {
	accessibility := permissions.CheckAccessibility(lookup)
	env := Environment{
		Provider:   providerSimulator,
		Permission: accessibility.StatusString(),
		Message:    accessibility.Message,
		Guidance:   accessibility.Guidance,
	}

	if runtime.GOOS != "darwin" {
		env.Permission = "not_applicable"
		env.Message = "system taps unavailable; scenarios replay against the simulator"
		env.Guidance = ""
		return env
	}

	env.Provider = providerQuartz
	env.Available = accessibility.Status == permissions.StatusGranted
	if !env.Available && env.Message == "" {
		env.Message = "accessibility permission missing"
	}
	return env
}
