package settings

import (
	"fmt"
	"os"

	"howett.net/plist"

	"github.com/offlinefirst/scrollzoom/pkg/config"
	"github.com/offlinefirst/scrollzoom/pkg/events"
)

// Preference keys of the legacy macOS defaults domain.
const (
	KeyTriggerFlags = "STZScrollToZoomFlags"
	KeyMagnifier    = "STZScrollToZoomMagnifier"
	KeyAttenuation  = "STZScrollMomentumToZoomAttenuation"
	KeyMinMomentum  = "STZScrollMinMomentumMagnification"
	KeyAppOptions   = "STZEventTapOptionsForApps"
)

// Legacy encodings: the low three bits of the trigger flags carry a button
// number, and app options are a bit set.
const (
	legacyButtonMask   = 0b111
	legacyAppDisabled  = 1 << 0
	legacyExcludeFlags = 1 << 1
)

// ImportPlist overlays the legacy preference keys found in data onto v.
// XML, binary and OpenStep plists are accepted. Keys with the wrong type are
// ignored.
func ImportPlist(data []byte, v Values) (Values, error) {
	var prefs map[string]interface{}
	if _, err := plist.Unmarshal(data, &prefs); err != nil {
		return v, fmt.Errorf("decode preferences plist: %w", err)
	}

	if raw, ok := integer(prefs[KeyTriggerFlags]); ok && raw != 0 {
		v.Trigger = legacyTrigger(raw)
	}
	if f, ok := number(prefs[KeyMagnifier]); ok {
		v.Magnifier = f
	}
	if f, ok := number(prefs[KeyAttenuation]); ok {
		v.Attenuation = f
	}
	if f, ok := number(prefs[KeyMinMomentum]); ok {
		v.MinMomentum = f
	}

	if apps, ok := prefs[KeyAppOptions].(map[string]interface{}); ok {
		merged := make(map[string]AppOptions, len(v.Apps)+len(apps))
		for id, opts := range v.Apps {
			merged[id] = opts
		}
		for id, raw := range apps {
			bits, ok := integer(raw)
			if !ok {
				continue
			}
			opts := AppOptions{
				Disabled:     bits&legacyAppDisabled != 0,
				ExcludeFlags: bits&legacyExcludeFlags != 0,
			}
			if opts == (AppOptions{}) {
				delete(merged, id)
				continue
			}
			merged[id] = opts
		}
		v.Apps = merged
	}

	return v.Clamped(), nil
}

func legacyTrigger(raw int64) Trigger {
	if raw&legacyButtonMask != 0 {
		button := int(raw & legacyButtonMask)
		if button == 1 {
			return DefaultTrigger
		}
		return Trigger{Button: button}
	}
	mods := events.Flags(raw).Modifiers()
	if mods == 0 {
		return DefaultTrigger
	}
	return Trigger{Modifiers: mods}
}

func integer(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Load builds Values from cfg, importing cfg.Defaults.Plist when set.
func Load(cfg config.Config) (Values, error) {
	v, err := FromConfig(cfg)
	if err != nil {
		return Values{}, err
	}
	if cfg.Defaults.Plist == "" {
		return v, nil
	}
	data, err := os.ReadFile(cfg.Defaults.Plist)
	if err != nil {
		return v, fmt.Errorf("read preferences plist: %w", err)
	}
	return ImportPlist(data, v)
}
