// Package replay drives the engine through a scripted scenario on the
// simulator platform and records every event it posts. It backs the trace
// command and the engine's golden tests.
package replay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/offlinefirst/scrollzoom/pkg/config"
	"github.com/offlinefirst/scrollzoom/pkg/dotdash"
	"github.com/offlinefirst/scrollzoom/pkg/events"
	"github.com/offlinefirst/scrollzoom/pkg/phase"
	"github.com/offlinefirst/scrollzoom/pkg/settings"
)

// Scenario is a scripted input session.
type Scenario struct {
	Name    string                      `yaml:"name"`
	Trigger *config.TriggerConfig       `yaml:"trigger,omitempty"`
	Zoom    *config.ZoomConfig          `yaml:"zoom,omitempty"`
	Apps    map[string]config.AppConfig `yaml:"apps,omitempty"`
	// DotDash turns on double-tap-and-hold recognition for touch steps.
	DotDash bool `yaml:"dotdash,omitempty"`
	// Processes maps target pids to bundle ids.
	Processes   map[int32]string `yaml:"processes,omitempty"`
	ForeignTaps []ForeignTap     `yaml:"foreign_taps,omitempty"`
	Steps       []Step           `yaml:"steps"`
}

// ForeignTap is a scroll tap owned by another process.
type ForeignTap struct {
	PID        int32  `yaml:"pid"`
	BundleID   string `yaml:"bundle_id,omitempty"`
	ListenOnly bool   `yaml:"listen_only,omitempty"`
}

// Step is one scripted action. Exactly one field is set.
type Step struct {
	// Flags holds exactly these modifiers from now on.
	Flags []string `yaml:"flags,omitempty"`
	// Release lets go of every modifier.
	Release bool        `yaml:"release,omitempty"`
	Button  *ButtonStep `yaml:"button,omitempty"`
	Scroll  *ScrollStep `yaml:"scroll,omitempty"`
	Touch   *TouchStep  `yaml:"touch,omitempty"`
	// Unplug disconnects the multitouch device with this id.
	Unplug  uint64        `yaml:"unplug,omitempty"`
	Advance time.Duration `yaml:"advance,omitempty"`
	// Enabled switches the engine on or off.
	Enabled *bool `yaml:"enabled,omitempty"`
	// DisableTap simulates the system switching off one of our taps.
	DisableTap string      `yaml:"disable_tap,omitempty"`
	AddTap     *ForeignTap `yaml:"add_tap,omitempty"`
}

// ButtonStep presses or releases an other mouse button.
type ButtonStep struct {
	Number int  `yaml:"number"`
	Down   bool `yaml:"down"`
}

// ScrollStep is one wheel event.
type ScrollStep struct {
	Device uint64 `yaml:"device"`
	// Phase is one of none, may_begin, began, changed, ended, cancelled.
	Phase string `yaml:"phase,omitempty"`
	// Momentum is one of begin, continue, end.
	Momentum string  `yaml:"momentum,omitempty"`
	Delta    float64 `yaml:"delta"`
	X        float64 `yaml:"x,omitempty"`
	Y        float64 `yaml:"y,omitempty"`
	PID      int32   `yaml:"pid,omitempty"`
	// Inverted marks a device reporting natural scrolling.
	Inverted bool `yaml:"inverted,omitempty"`
}

// TouchStep is one multitouch frame listing the fingers on the surface.
// An empty list lifts every finger.
type TouchStep struct {
	Device  uint64   `yaml:"device"`
	Fingers []Finger `yaml:"fingers"`
}

// Finger is a contact in normalised surface coordinates.
type Finger struct {
	ID      uint32  `yaml:"id"`
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Density float64 `yaml:"density"`
	// Speed is the finger's velocity magnitude along x.
	Speed float64 `yaml:"speed,omitempty"`
}

// Load reads a scenario file.
func Load(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("open scenario %q: %w", path, err)
	}
	defer f.Close()
	s, err := Decode(f)
	if err != nil {
		return Scenario{}, fmt.Errorf("parse scenario %q: %w", path, err)
	}
	return s, nil
}

// Decode parses and validates a scenario.
func Decode(r io.Reader) (Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Scenario{}, errors.New("empty scenario")
		}
		return Scenario{}, err
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

// Validate checks every step up front so a run never stops half way.
func (s Scenario) Validate() error {
	if _, err := s.Settings(); err != nil {
		return err
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// Settings resolves the scenario's overrides on top of the defaults.
func (s Scenario) Settings() (settings.Values, error) {
	cfg := config.Default()
	if s.Trigger != nil {
		cfg.Trigger = *s.Trigger
	}
	if s.Zoom != nil {
		cfg.Zoom = *s.Zoom
	}
	cfg.Apps = s.Apps
	if err := cfg.Validate(); err != nil {
		return settings.Values{}, err
	}
	return settings.FromConfig(cfg)
}

func (st Step) validate() error {
	set := 0
	if st.Flags != nil {
		set++
		if _, err := parseFlags(st.Flags); err != nil {
			return err
		}
	}
	if st.Release {
		set++
	}
	if st.Button != nil {
		set++
	}
	if st.Scroll != nil {
		set++
		if _, _, err := st.Scroll.phases(); err != nil {
			return err
		}
	}
	if st.Touch != nil {
		set++
	}
	if st.Unplug != 0 {
		set++
	}
	if st.Advance != 0 {
		set++
		if st.Advance < 0 {
			return fmt.Errorf("negative advance %s", st.Advance)
		}
	}
	if st.Enabled != nil {
		set++
	}
	if st.DisableTap != "" {
		set++
	}
	if st.AddTap != nil {
		set++
	}
	switch set {
	case 0:
		return errors.New("empty step")
	case 1:
		return nil
	default:
		return errors.New("a step takes exactly one action")
	}
}

func parseFlags(names []string) (events.Flags, error) {
	if len(names) == 0 {
		return 0, nil
	}
	trigger, err := settings.ParseTrigger(config.TriggerConfig{Modifiers: names})
	if err != nil {
		return 0, err
	}
	return trigger.Modifiers, nil
}

var scrollPhases = map[string]int64{
	"":          phase.ScrollNone,
	"none":      phase.ScrollNone,
	"may_begin": phase.ScrollMayBegin,
	"began":     phase.ScrollBegan,
	"changed":   phase.ScrollChanged,
	"ended":     phase.ScrollEnded,
	"cancelled": phase.ScrollCancelled,
}

var momentumPhases = map[string]int64{
	"":         phase.MomentumNone,
	"begin":    phase.MomentumBegin,
	"continue": phase.MomentumContinue,
	"end":      phase.MomentumEnd,
}

func (s ScrollStep) phases() (scroll, momentum int64, err error) {
	scroll, ok := scrollPhases[s.Phase]
	if !ok {
		return 0, 0, fmt.Errorf("unknown scroll phase %q", s.Phase)
	}
	momentum, ok = momentumPhases[s.Momentum]
	if !ok {
		return 0, 0, fmt.Errorf("unknown momentum phase %q", s.Momentum)
	}
	if scroll != phase.ScrollNone && momentum != phase.MomentumNone {
		return 0, 0, errors.New("a scroll step has a phase or a momentum phase, not both")
	}
	return scroll, momentum, nil
}

func (t TouchStep) touches() []dotdash.Touch {
	out := make([]dotdash.Touch, 0, len(t.Fingers))
	for _, f := range t.Fingers {
		out = append(out, dotdash.Touch{
			PathID:   f.ID,
			Phase:    dotdash.TouchDidDown,
			Location: dotdash.Vec{X: f.X, Y: f.Y},
			Velocity: dotdash.Vec{X: f.Speed},
			Density:  f.Density,
		})
	}
	return out
}
