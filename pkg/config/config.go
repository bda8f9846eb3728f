package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultFileName = "config.yaml"

// Config captures the user-adjustable knobs for the zoom engine and its
// daemon.
type Config struct {
	Logging  LoggingConfig        `yaml:"logging"`
	Trigger  TriggerConfig        `yaml:"trigger"`
	Zoom     ZoomConfig           `yaml:"zoom"`
	DotDash  DotDashConfig        `yaml:"dotdash"`
	Apps     map[string]AppConfig `yaml:"apps,omitempty"`
	Control  ControlConfig        `yaml:"control"`
	Defaults DefaultsConfig       `yaml:"defaults"`

	// Source indicates where the configuration originated (defaults or a file path).
	Source string `yaml:"-"`
}

// LoggingConfig defines log verbosity and formatting.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TriggerConfig names what arms scroll-to-zoom: a modifier combination, or
// an other mouse button when Button is set.
type TriggerConfig struct {
	Modifiers []string `yaml:"modifiers,omitempty"`
	Button    int      `yaml:"button,omitempty"`
}

// ZoomConfig tunes the delta to magnification conversion.
type ZoomConfig struct {
	Magnifier           float64 `yaml:"magnifier"`
	MomentumAttenuation float64 `yaml:"momentum_attenuation"`
	MinMomentum         float64 `yaml:"min_momentum"`
}

// DotDashConfig controls the double-tap-and-hold recognizer.
type DotDashConfig struct {
	Enabled     bool          `yaml:"enabled"`
	TapInterval time.Duration `yaml:"tap_interval"`
	TapDistance float64       `yaml:"tap_distance"`
	EdgeMargin  float64       `yaml:"edge_margin"`
	MaxSpeed    float64       `yaml:"max_speed"`
	MinDensity  float64       `yaml:"min_density"`
}

// AppConfig holds per-application overrides keyed by bundle identifier.
type AppConfig struct {
	Disabled     bool `yaml:"disabled,omitempty"`
	ExcludeFlags bool `yaml:"exclude_flags,omitempty"`
}

// ControlConfig configures the local JSON-RPC and websocket surface.
type ControlConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultsConfig points at a legacy preferences plist imported at startup.
type DefaultsConfig struct {
	Plist string `yaml:"plist,omitempty"`
}

// Default returns the baseline configuration used when no overrides are supplied.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Trigger: TriggerConfig{
			Modifiers: []string{"option"},
		},
		Zoom: ZoomConfig{
			Magnifier:           0.0025,
			MomentumAttenuation: 0.8,
			MinMomentum:         0.001,
		},
		DotDash: DotDashConfig{
			Enabled:     false,
			TapInterval: 250 * time.Millisecond,
			TapDistance: 0.25,
			EdgeMargin:  0.1,
			MaxSpeed:    1.5,
			MinDensity:  0.4,
		},
		Control: ControlConfig{
			Listen: "127.0.0.1:7923",
		},
		Source: "<defaults>",
	}
}

// Load reads configuration from disk if present, otherwise returning defaults.
// When path is empty, the loader attempts to read ./config.yaml but tolerates a missing file.
func Load(path string) (Config, error) {
	cfg := Default()

	candidate := strings.TrimSpace(path)
	explicit := candidate != ""
	if !explicit {
		candidate = DefaultFileName
	}

	file, err := os.Open(candidate)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if explicit {
				return cfg, fmt.Errorf("config file %q not found", candidate)
			}
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config file %q: %w", candidate, err)
	}
	defer file.Close()

	// A file naming a button must not inherit the default modifier.
	cfg.Trigger = TriggerConfig{}
	if err := Decode(file, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %q: %w", candidate, err)
	}
	cfg.Source = candidate
	cfg.normalize(filepath.Dir(candidate))

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Decode reads YAML from r over the values already in cfg. Unknown keys are
// rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// Validate ensures essential configuration values are present and sensible.
func (c Config) Validate() error {
	if _, err := NormalizeLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := NormalizeFormat(c.Logging.Format); err != nil {
		return err
	}

	if c.Trigger.Button != 0 {
		if len(c.Trigger.Modifiers) > 0 {
			return errors.New("trigger.button and trigger.modifiers are mutually exclusive")
		}
		if c.Trigger.Button < 2 || c.Trigger.Button > 31 {
			return fmt.Errorf("trigger.button must be between 2 and 31, got %d", c.Trigger.Button)
		}
	} else {
		if len(c.Trigger.Modifiers) == 0 {
			return errors.New("trigger needs at least one modifier or a button")
		}
		for _, m := range c.Trigger.Modifiers {
			if _, err := NormalizeModifier(m); err != nil {
				return err
			}
		}
	}

	if math.IsInf(c.Zoom.Magnifier, 0) {
		return errors.New("zoom.magnifier must be finite")
	}

	if c.DotDash.TapInterval <= 0 {
		return errors.New("dotdash.tap_interval must be positive")
	}
	if c.DotDash.TapDistance <= 0 || c.DotDash.TapDistance > 1 {
		return errors.New("dotdash.tap_distance must be within (0, 1]")
	}
	if c.DotDash.EdgeMargin < 0 || c.DotDash.EdgeMargin >= 0.5 {
		return errors.New("dotdash.edge_margin must be within [0, 0.5)")
	}
	if c.DotDash.MaxSpeed <= 0 {
		return errors.New("dotdash.max_speed must be positive")
	}
	if c.DotDash.MinDensity <= 0 {
		return errors.New("dotdash.min_density must be positive")
	}

	for id := range c.Apps {
		if strings.TrimSpace(id) == "" {
			return errors.New("apps keys must be bundle identifiers")
		}
	}

	return nil
}

func (c *Config) normalize(baseDir string) {
	defaults := Default()

	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	if c.Trigger.Button == 0 && len(c.Trigger.Modifiers) == 0 {
		c.Trigger.Modifiers = defaults.Trigger.Modifiers
	}
	for i, m := range c.Trigger.Modifiers {
		if normalized, err := NormalizeModifier(m); err == nil {
			c.Trigger.Modifiers[i] = normalized
		}
	}

	if c.DotDash.TapInterval <= 0 {
		c.DotDash.TapInterval = defaults.DotDash.TapInterval
	}
	if c.DotDash.TapDistance <= 0 {
		c.DotDash.TapDistance = defaults.DotDash.TapDistance
	}
	if c.DotDash.MaxSpeed <= 0 {
		c.DotDash.MaxSpeed = defaults.DotDash.MaxSpeed
	}
	if c.DotDash.MinDensity <= 0 {
		c.DotDash.MinDensity = defaults.DotDash.MinDensity
	}

	if strings.TrimSpace(c.Control.Listen) == "" {
		c.Control.Listen = defaults.Control.Listen
	}

	plist := strings.TrimSpace(c.Defaults.Plist)
	if plist != "" && !filepath.IsAbs(plist) && baseDir != "" {
		plist = filepath.Join(baseDir, plist)
	}
	c.Defaults.Plist = plist
}

// NormalizeModifier maps the accepted spellings of a modifier key to its
// canonical name.
func NormalizeModifier(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "shift", "⇧":
		return "shift", nil
	case "control", "ctrl", "⌃":
		return "control", nil
	case "option", "alt", "opt", "⌥":
		return "option", nil
	case "command", "cmd", "⌘":
		return "command", nil
	default:
		return "", fmt.Errorf("unsupported trigger modifier %q", name)
	}
}

// NormalizeLogLevel validates and lowercases known logging levels.
func NormalizeLogLevel(level string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return "info", nil
	case "debug":
		return "debug", nil
	case "warn", "warning":
		return "warn", nil
	case "error":
		return "error", nil
	default:
		return "", fmt.Errorf("unsupported log level %q", level)
	}
}

// NormalizeFormat validates and canonicalizes logging format identifiers.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	default:
		return "", fmt.Errorf("unsupported log format %q", format)
	}
}
