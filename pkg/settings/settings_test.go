package settings

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/scrollzoom/pkg/config"
	"github.com/offlinefirst/scrollzoom/pkg/events"
)

func TestDefaults(t *testing.T) {
	v := Defaults()
	assert.Equal(t, DefaultTrigger, v.Trigger)
	assert.Equal(t, 0.0025, v.Magnifier)
	assert.Equal(t, 0.8, v.Attenuation)
	assert.Equal(t, 0.001, v.MinMomentum)
	assert.Empty(t, v.Apps)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(3, -1, 1))
	assert.Equal(t, -1.0, Clamp(-3, -1, 1))
	assert.Equal(t, 0.25, Clamp(0.25, 0, 1))
	assert.Equal(t, 0.0, Clamp(math.NaN(), -1, 1))
	assert.Equal(t, 0.5, Clamp(math.NaN(), 0, 1))
}

func TestParseTrigger(t *testing.T) {
	tr, err := ParseTrigger(config.TriggerConfig{Modifiers: []string{"cmd", "shift"}})
	require.NoError(t, err)
	assert.Equal(t, events.FlagCommand|events.FlagShift, tr.Modifiers)
	assert.False(t, tr.IsButton())
	assert.Equal(t, "⇧⌘", tr.String())
	assert.Equal(t, []string{"shift", "command"}, tr.Config().Modifiers)

	tr, err = ParseTrigger(config.TriggerConfig{Button: 2})
	require.NoError(t, err)
	assert.Equal(t, "🖱 Mid", tr.String())
	tr, err = ParseTrigger(config.TriggerConfig{Button: 4})
	require.NoError(t, err)
	assert.Equal(t, "🖱 4", tr.String())
	assert.Equal(t, 4, tr.Config().Button)

	_, err = ParseTrigger(config.TriggerConfig{Button: 1})
	assert.Error(t, err)
	_, err = ParseTrigger(config.TriggerConfig{Modifiers: []string{"fn"}})
	assert.Error(t, err)

	tr, err = ParseTrigger(config.TriggerConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTrigger, tr)
}

func TestFromConfigClampsAndFiltersApps(t *testing.T) {
	cfg := config.Default()
	cfg.Zoom.Magnifier = 4
	cfg.Zoom.MomentumAttenuation = -1
	cfg.Zoom.MinMomentum = math.NaN()
	cfg.Apps = map[string]config.AppConfig{
		"com.example.Game": {Disabled: true},
		"com.example.Noop": {},
	}

	v, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Magnifier)
	assert.Equal(t, 0.0, v.Attenuation)
	assert.Equal(t, 0.5, v.MinMomentum)
	assert.Equal(t, map[string]AppOptions{"com.example.Game": {Disabled: true}}, v.Apps)
}

func TestStoreAccessorsAndListeners(t *testing.T) {
	s := NewStore(Defaults(), nil)
	var seen []Values
	s.OnChange(func(v Values) { seen = append(seen, v) })

	s.SetAppOptions("com.example.Editor", AppOptions{ExcludeFlags: true})
	assert.Equal(t, AppOptions{ExcludeFlags: true}, s.AppOptions("com.example.Editor"))
	assert.Equal(t, AppOptions{}, s.AppOptions("com.example.Other"))
	assert.Equal(t, AppOptions{}, s.AppOptions(""))
	assert.Equal(t, []string{"com.example.Editor"}, s.BundleIDs())

	s.SetAppOptions("com.example.Editor", AppOptions{})
	assert.Empty(t, s.BundleIDs())

	v := s.Snapshot()
	v.Magnifier = -5
	v.Trigger = Trigger{Button: 3}
	s.Replace(v)
	assert.Equal(t, -1.0, s.Magnifier())
	assert.Equal(t, Trigger{Button: 3}, s.Trigger())
	require.Len(t, seen, 3)
	assert.Equal(t, -1.0, seen[2].Magnifier)

	snap := s.Snapshot()
	snap.Apps["mutated"] = AppOptions{Disabled: true}
	assert.Equal(t, AppOptions{}, s.AppOptions("mutated"), "snapshots do not alias the store")
}

const legacyPrefs = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>STZScrollToZoomFlags</key>
	<integer>1310720</integer>
	<key>STZScrollToZoomMagnifier</key>
	<real>0.005</real>
	<key>STZScrollMomentumToZoomAttenuation</key>
	<real>2.5</real>
	<key>STZEventTapOptionsForApps</key>
	<dict>
		<key>com.example.Game</key>
		<integer>1</integer>
		<key>com.example.Editor</key>
		<integer>3</integer>
		<key>com.example.Bogus</key>
		<string>yes</string>
	</dict>
</dict>
</plist>`

func TestImportPlist(t *testing.T) {
	v, err := ImportPlist([]byte(legacyPrefs), Defaults())
	require.NoError(t, err)

	assert.Equal(t, Trigger{Modifiers: events.FlagControl | events.FlagCommand}, v.Trigger)
	assert.Equal(t, 0.005, v.Magnifier)
	assert.Equal(t, 1.0, v.Attenuation, "clamped")
	assert.Equal(t, 0.001, v.MinMomentum, "absent keys keep their value")
	assert.Equal(t, map[string]AppOptions{
		"com.example.Game":   {Disabled: true},
		"com.example.Editor": {Disabled: true, ExcludeFlags: true},
	}, v.Apps)
}

func TestImportPlistButtonTrigger(t *testing.T) {
	data := `<plist version="1.0"><dict><key>STZScrollToZoomFlags</key><integer>3</integer></dict></plist>`
	v, err := ImportPlist([]byte(data), Defaults())
	require.NoError(t, err)
	assert.Equal(t, Trigger{Button: 3}, v.Trigger)

	data = `<plist version="1.0"><dict><key>STZScrollToZoomFlags</key><integer>1</integer></dict></plist>`
	v, err = ImportPlist([]byte(data), Defaults())
	require.NoError(t, err)
	assert.Equal(t, DefaultTrigger, v.Trigger)
}

func TestImportPlistRejectsGarbage(t *testing.T) {
	_, err := ImportPlist([]byte("{ not a plist"), Defaults())
	assert.Error(t, err)
}

func TestLoadImportsConfiguredPlist(t *testing.T) {
	dir := t.TempDir()
	plistPath := filepath.Join(dir, "legacy.plist")
	require.NoError(t, os.WriteFile(plistPath, []byte(legacyPrefs), 0o644))

	cfg := config.Default()
	cfg.Defaults.Plist = plistPath
	v, err := Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.005, v.Magnifier)

	cfg.Defaults.Plist = filepath.Join(dir, "missing.plist")
	_, err = Load(cfg)
	assert.Error(t, err)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("zoom:\n  magnifier: 0.01\n"), 0o644))

	initial, err := LoadFile(path)
	require.NoError(t, err)
	s := NewStore(initial, nil)
	var reloads atomic.Int32
	s.OnChange(func(Values) { reloads.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx, path, nil))

	require.NoError(t, os.WriteFile(path, []byte("zoom:\n  magnifier: 0.02\n"), 0o644))
	assert.Eventually(t, func() bool { return s.Magnifier() == 0.02 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("zoom: [broken\n"), 0o644))
	time.Sleep(3 * ReloadDelay)
	assert.Equal(t, 0.02, s.Magnifier(), "a broken file keeps the previous values")
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))
}
