package runmanifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/offlinefirst/scrollzoom/pkg/config"
)

// SchemaVersion captures the manifest version for compatibility checks.
const SchemaVersion = 1

// FileName is the manifest name inside the state directory.
const FileName = "agent.json"

// Agent lifecycle states recorded in the manifest.
const (
	StatePending = "pending"
	StateRunning = "running"
	StateStopped = "stopped"
	StateFailed  = "failed"
)

// AgentSettings records the knobs the agent was started with.
type AgentSettings struct {
	Modifiers      []string `json:"modifiers,omitempty"`
	Button         int      `json:"button,omitempty"`
	Magnifier      float64  `json:"magnifier"`
	DotDashEnabled bool     `json:"dotdash_enabled"`
	AppOverrides   int      `json:"app_overrides"`
	Trace          string   `json:"trace,omitempty"`
}

// Status summarises the lifecycle of an agent run.
type Status struct {
	State       string          `json:"state"`
	Summary     string          `json:"summary,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Termination string          `json:"termination,omitempty"`
	Timeline    []TimelineEntry `json:"timeline,omitempty"`
}

// TimelineEntry records a state transition for diagnostics.
type TimelineEntry struct {
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Manifest is the durable record of the most recent agent run. Clients that
// are not told where the agent listens read it to find the control address.
type Manifest struct {
	SchemaVersion int           `json:"schema_version"`
	RunID         string        `json:"run_id"`
	CreatedAt     time.Time     `json:"created_at"`
	Hostname      string        `json:"hostname"`
	AppVersion    string        `json:"app_version"`
	ConfigSource  string        `json:"config_source"`
	PID           int           `json:"pid"`
	Listen        string        `json:"listen,omitempty"`
	Agent         AgentSettings `json:"agent"`
	Status        Status        `json:"status"`
}

// Options captures the knobs for creating a new manifest.
type Options struct {
	RunID      string
	CreatedAt  time.Time
	Hostname   string
	AppVersion string
	PID        int
	Trace      string
	Config     config.Config
}

// New constructs a manifest using the supplied options.
func New(opts Options) Manifest {
	return Manifest{
		SchemaVersion: SchemaVersion,
		RunID:         opts.RunID,
		CreatedAt:     opts.CreatedAt.UTC(),
		Hostname:      opts.Hostname,
		AppVersion:    opts.AppVersion,
		ConfigSource:  opts.Config.Source,
		PID:           opts.PID,
		Agent: AgentSettings{
			Modifiers:      append([]string(nil), opts.Config.Trigger.Modifiers...),
			Button:         opts.Config.Trigger.Button,
			Magnifier:      opts.Config.Zoom.Magnifier,
			DotDashEnabled: opts.Config.DotDash.Enabled,
			AppOverrides:   len(opts.Config.Apps),
			Trace:          opts.Trace,
		},
		Status: Status{State: StatePending},
	}
}

// Transition moves the manifest to state, stamping the start or end time
// when the state calls for one.
func (m *Manifest) Transition(state, reason string, at time.Time) {
	at = at.UTC()
	m.Status.State = state
	m.Status.Timeline = append(m.Status.Timeline, TimelineEntry{State: state, Reason: reason, Timestamp: at})
	switch state {
	case StateRunning:
		m.Status.StartedAt = &at
		m.Status.Summary = "control on " + m.Listen
	case StateStopped, StateFailed:
		m.Status.EndedAt = &at
		m.Status.Termination = reason
		if state == StateFailed {
			m.Status.Summary = reason
		}
	}
}

// Running reports whether the manifest describes an agent that has not
// recorded its exit.
func (m Manifest) Running() bool {
	return m.Status.State == StateRunning && m.Listen != ""
}

// DefaultPath returns the manifest location under the user's cache
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache directory: %w", err)
	}
	return filepath.Join(dir, "scrollzoom", FileName), nil
}

// Save writes the manifest JSON to disk with indentation for readability.
// The file is replaced atomically so readers never see a partial manifest.
func Save(man Manifest, path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("manifest path must not be empty")
	}
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Load reads a manifest JSON file from disk.
func Load(path string) (Manifest, error) {
	var man Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return man, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &man); err != nil {
		return man, fmt.Errorf("decode manifest: %w", err)
	}
	if man.SchemaVersion != SchemaVersion {
		return man, fmt.Errorf("manifest schema %d not supported", man.SchemaVersion)
	}
	return man, nil
}
