// Package settings holds the live tuning values the engine reads on every
// event: the trigger, the zoom conversion factors and per-app options.
package settings

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/offlinefirst/scrollzoom/pkg/config"
	"github.com/offlinefirst/scrollzoom/pkg/events"
	"github.com/offlinefirst/scrollzoom/pkg/logging"
)

// Trigger is either a modifier combination or a single other mouse button.
type Trigger struct {
	Modifiers events.Flags
	Button    int
}

// IsButton reports whether the trigger is a mouse button.
func (t Trigger) IsButton() bool { return t.Button != 0 }

// String renders the trigger the way menus show it.
func (t Trigger) String() string {
	switch {
	case t.Button == 2:
		return "🖱 Mid"
	case t.Button != 0:
		return fmt.Sprintf("🖱 %d", t.Button)
	default:
		return events.DescribeFlags(t.Modifiers)
	}
}

// Config converts the trigger back into its file representation.
func (t Trigger) Config() config.TriggerConfig {
	if t.IsButton() {
		return config.TriggerConfig{Button: t.Button}
	}
	var names []string
	for _, m := range modifierNames {
		if t.Modifiers&m.flag != 0 {
			names = append(names, m.name)
		}
	}
	return config.TriggerConfig{Modifiers: names}
}

var modifierNames = []struct {
	name string
	flag events.Flags
}{
	{"control", events.FlagControl},
	{"option", events.FlagOption},
	{"shift", events.FlagShift},
	{"command", events.FlagCommand},
}

// DefaultTrigger is the option key.
var DefaultTrigger = Trigger{Modifiers: events.FlagOption}

// ParseTrigger validates a trigger section.
func ParseTrigger(c config.TriggerConfig) (Trigger, error) {
	if c.Button != 0 {
		if c.Button < 2 || c.Button > 31 {
			return Trigger{}, fmt.Errorf("mouse button %d cannot trigger zoom", c.Button)
		}
		return Trigger{Button: c.Button}, nil
	}
	var flags events.Flags
	for _, name := range c.Modifiers {
		canonical, err := config.NormalizeModifier(name)
		if err != nil {
			return Trigger{}, err
		}
		for _, m := range modifierNames {
			if m.name == canonical {
				flags |= m.flag
			}
		}
	}
	if flags == 0 {
		return DefaultTrigger, nil
	}
	return Trigger{Modifiers: flags}, nil
}

// AppOptions are the per-application overrides.
type AppOptions struct {
	// Disabled stops modifier-armed zooming in the app.
	Disabled bool `json:"disabled,omitempty"`
	// ExcludeFlags strips the trigger modifiers from synthesized gestures.
	ExcludeFlags bool `json:"excludeFlags,omitempty"`
}

// Values is one consistent snapshot of every setting.
type Values struct {
	Trigger     Trigger
	Magnifier   float64
	Attenuation float64
	MinMomentum float64
	Apps        map[string]AppOptions
}

// Clamp limits x to [lo, hi]. NaN maps to the midpoint.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, x))
}

// Clamped returns v with every factor forced into its legal range.
func (v Values) Clamped() Values {
	v.Magnifier = Clamp(v.Magnifier, -1, 1)
	v.Attenuation = Clamp(v.Attenuation, 0, 1)
	v.MinMomentum = Clamp(v.MinMomentum, 0, 1)
	return v
}

// Defaults mirrors config.Default.
func Defaults() Values {
	v, _ := FromConfig(config.Default())
	return v
}

// FromConfig extracts the engine settings from a loaded configuration.
func FromConfig(c config.Config) (Values, error) {
	trigger, err := ParseTrigger(c.Trigger)
	if err != nil {
		return Values{}, err
	}
	v := Values{
		Trigger:     trigger,
		Magnifier:   c.Zoom.Magnifier,
		Attenuation: c.Zoom.MomentumAttenuation,
		MinMomentum: c.Zoom.MinMomentum,
		Apps:        make(map[string]AppOptions, len(c.Apps)),
	}
	for id, app := range c.Apps {
		if !app.Disabled && !app.ExcludeFlags {
			continue
		}
		v.Apps[id] = AppOptions{Disabled: app.Disabled, ExcludeFlags: app.ExcludeFlags}
	}
	return v.Clamped(), nil
}

// Store serves the current Values to concurrent readers.
type Store struct {
	mu        sync.RWMutex
	values    Values
	listeners []func(Values)
	logger    *slog.Logger
}

// NewStore returns a store seeded with v.
func NewStore(v Values, logger *slog.Logger) *Store {
	s := &Store{logger: logging.Component(logger, "settings")}
	s.values = s.own(v)
	return s
}

func (s *Store) own(v Values) Values {
	v = v.Clamped()
	apps := make(map[string]AppOptions, len(v.Apps))
	for id, opts := range v.Apps {
		apps[id] = opts
	}
	v.Apps = apps
	return v
}

func (s *Store) Trigger() Trigger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Trigger
}

func (s *Store) Magnifier() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Magnifier
}

func (s *Store) Attenuation() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Attenuation
}

func (s *Store) MinMomentum() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.MinMomentum
}

// AppOptions returns the overrides for bundleID. Unknown or empty ids get
// the zero options.
func (s *Store) AppOptions(bundleID string) AppOptions {
	if bundleID == "" {
		return AppOptions{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Apps[bundleID]
}

// Snapshot returns a copy of the current values.
func (s *Store) Snapshot() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.own(s.values)
}

// BundleIDs lists the apps with overrides, sorted.
func (s *Store) BundleIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.values.Apps))
	for id := range s.values.Apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Replace swaps in v and notifies listeners.
func (s *Store) Replace(v Values) {
	v = s.own(v)
	s.mu.Lock()
	s.values = v
	listeners := append([]func(Values){}, s.listeners...)
	s.mu.Unlock()

	s.logger.Info("settings applied",
		"trigger", v.Trigger.String(),
		"magnifier", v.Magnifier,
		"attenuation", v.Attenuation,
		"min_momentum", v.MinMomentum,
		"apps", len(v.Apps))
	for _, fn := range listeners {
		fn(s.own(v))
	}
}

// SetAppOptions updates a single app. Zero options remove the entry.
func (s *Store) SetAppOptions(bundleID string, opts AppOptions) {
	v := s.Snapshot()
	if opts == (AppOptions{}) {
		delete(v.Apps, bundleID)
	} else {
		v.Apps[bundleID] = opts
	}
	s.Replace(v)
}

// OnChange registers fn to run after every Replace.
func (s *Store) OnChange(fn func(Values)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
