// Package engine turns scroll-wheel input into zoom gestures while a trigger
// is held or a dot-dash drag is in progress. It owns the four event taps,
// the per-device wheel sessions, and the switch between passive observation
// and mutation.
//
// Every method must be called on the engine's loop. Tap callbacks are
// delivered there by the platform.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/offlinefirst/scrollzoom/pkg/cache"
	"github.com/offlinefirst/scrollzoom/pkg/dotdash"
	"github.com/offlinefirst/scrollzoom/pkg/events"
	"github.com/offlinefirst/scrollzoom/pkg/logging"
	"github.com/offlinefirst/scrollzoom/pkg/runloop"
	"github.com/offlinefirst/scrollzoom/pkg/settings"
)

const (
	// DotDashWindow bounds how long after the first tap a drag may start
	// scrolling and still count as a dot-dash drag.
	DotDashWindow = 750 * time.Millisecond

	successorDelay = 20 * time.Millisecond
	holdDelay      = 50 * time.Millisecond
	releaseDelay   = 350 * time.Millisecond
)

// Settings is the live configuration the engine reads on each event.
type Settings interface {
	Trigger() settings.Trigger
	Magnifier() float64
	Attenuation() float64
	MinMomentum() float64
	AppOptions(bundleID string) settings.AppOptions
}

// ProcessLookup resolves the bundle identifier of a process.
type ProcessLookup interface {
	BundleID(pid int32) (string, bool)
}

// Detector is the dot-dash drag recognizer. It consumes the touch source
// directly.
type Detector interface {
	dotdash.Sink
	OnActivation(fn func(deviceID uint64, active bool))
	IsActiveWithin(deviceID uint64, timeout time.Duration) bool
	Reset()
}

// Activation is a dot-dash drag edge reported to observers.
type Activation struct {
	DeviceID uint64 `json:"deviceId"`
	Active   bool   `json:"active"`
}

// Options wires an Engine. Platform, Loop and Settings are required.
type Options struct {
	Platform events.Platform
	Loop     runloop.Loop
	Settings Settings
	// Processes maps target pids to bundle ids for per-app options. Nil
	// disables per-app options.
	Processes ProcessLookup
	// Permission reports whether the process may install taps. Nil assumes
	// it may.
	Permission func() bool
	// Detector and Touches enable dot-dash drags when both are set.
	Detector Detector
	Touches  dotdash.Source
	Logger   *slog.Logger
}

// Engine coordinates the taps. It is not safe for concurrent use.
type Engine struct {
	platform   events.Platform
	loop       runloop.Loop
	settings   Settings
	processes  ProcessLookup
	permission func() bool
	detector   Detector
	touches    dotdash.Source
	logger     *slog.Logger

	taps     [tapKinds]events.Tap
	contexts *cache.Cache[deviceContext]
	seq      uint64

	flagsIn        bool
	exclusive      bool
	needsReinsert  bool
	expectedTaps   int
	dotDashEnabled bool
	listening      bool
	subscribed     bool
	stopWatch      func()

	observers    map[int]func(Activation)
	nextObserver int
}

// New validates opts and returns a disabled engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Platform == nil:
		return nil, errors.New("engine: platform is required")
	case opts.Loop == nil:
		return nil, errors.New("engine: loop is required")
	case opts.Settings == nil:
		return nil, errors.New("engine: settings are required")
	}
	permission := opts.Permission
	if permission == nil {
		permission = func() bool { return true }
	}
	return &Engine{
		platform:   opts.Platform,
		loop:       opts.Loop,
		settings:   opts.Settings,
		processes:  opts.Processes,
		permission: permission,
		detector:   opts.Detector,
		touches:    opts.Touches,
		logger:     logging.Component(opts.Logger, "engine"),
		contexts:   cache.New[deviceContext](cache.Options{Now: opts.Platform.Now}),
		observers:  make(map[int]func(Activation)),
	}, nil
}

// IsEnabled reports whether the taps are installed.
func (e *Engine) IsEnabled() bool {
	return e.registered(tapTrigger)
}

// SetEnabled installs or removes every tap. Enabling fails, leaving the
// engine disabled, when permission is missing or the system refuses a tap.
func (e *Engine) SetEnabled(enable bool) bool {
	if enable == e.IsEnabled() {
		return true
	}

	if !enable {
		e.teardown()
		e.logger.Info("event taps unregistered")
		return true
	}

	if !e.permission() {
		e.logger.Warn("cannot enable scroll-to-zoom", "error", events.ErrAccessibilityPermission)
		return false
	}
	if !e.registerOrCleanUp() {
		return false
	}

	if !e.subscribed {
		stop, err := e.platform.WatchTaps(e.anyTapAdded, e.anyTapRemoved)
		if err != nil {
			e.logger.Warn("tap list notifications unavailable", "error", err)
		}
		e.stopWatch = stop
		if e.detector != nil {
			e.detector.OnActivation(e.handleActivation)
		}
		e.subscribed = true
	}

	if e.dotDashEnabled {
		e.startTouches()
	}
	e.logger.Info("event taps registered", "exclusive", e.exclusive)
	return true
}

// IsDotDashEnabled reports whether dot-dash drags are requested.
func (e *Engine) IsDotDashEnabled() bool {
	return e.dotDashEnabled
}

// SetDotDashEnabled turns dot-dash drag recognition on or off. While the
// engine is disabled the choice is remembered and applied on enable. It
// returns false when no multitouch input is available.
func (e *Engine) SetDotDashEnabled(enable bool) bool {
	if enable && (e.detector == nil || e.touches == nil) {
		return false
	}
	e.dotDashEnabled = enable
	if !e.IsEnabled() {
		return true
	}
	if enable {
		return e.startTouches()
	}
	e.stopTouches()
	e.contexts.Range(true, func(_ uint64, ctx *deviceContext) bool {
		ctx.dotDashDragging = false
		return true
	})
	return true
}

// Subscribe registers fn for dot-dash activation edges. The returned func
// removes it.
func (e *Engine) Subscribe(fn func(Activation)) (cancel func()) {
	id := e.nextObserver
	e.nextObserver++
	e.observers[id] = fn
	return func() { delete(e.observers, id) }
}

// Close disables the engine and stops listening for tap list changes.
func (e *Engine) Close() {
	e.SetEnabled(false)
	if e.stopWatch != nil {
		e.stopWatch()
		e.stopWatch = nil
	}
}

// TapState describes one of the engine's own taps.
type TapState struct {
	Name       string `json:"name"`
	Registered bool   `json:"registered"`
	Enabled    bool   `json:"enabled"`
}

// Status is a snapshot for diagnostics and the control surface.
type Status struct {
	Enabled          bool       `json:"enabled"`
	Exclusive        bool       `json:"exclusive"`
	Mutating         bool       `json:"mutating"`
	TriggerHeld      bool       `json:"triggerHeld"`
	Trigger          string     `json:"trigger"`
	DotDashEnabled   bool       `json:"dotDashEnabled"`
	DotDashListening bool       `json:"dotDashListening"`
	Devices          int        `json:"devices"`
	Taps             []TapState `json:"taps"`
}

// Status reports the current state.
func (e *Engine) Status() Status {
	st := Status{
		Enabled:          e.IsEnabled(),
		Exclusive:        e.exclusive,
		Mutating:         e.enabled(tapMutating),
		TriggerHeld:      e.flagsIn,
		Trigger:          e.settings.Trigger().String(),
		DotDashEnabled:   e.dotDashEnabled,
		DotDashListening: e.listening,
		Devices:          e.contexts.Len(),
	}
	for k := tapKind(0); k < tapKinds; k++ {
		st.Taps = append(st.Taps, TapState{Name: k.String(), Registered: e.registered(k), Enabled: e.enabled(k)})
	}
	return st
}

func (e *Engine) teardown() {
	e.setAllRegistered(false, false)
	e.stopTouches()
	e.clearContexts()
	e.flagsIn = false
}

func (e *Engine) startTouches() bool {
	if e.listening {
		return true
	}
	if e.detector == nil || e.touches == nil {
		return false
	}
	if err := e.touches.Start(e.detector); err != nil {
		e.logger.Warn("multitouch input unavailable", "error", err)
		return false
	}
	e.listening = true
	e.logger.Info("listening to multitouch devices")
	return true
}

func (e *Engine) stopTouches() {
	if !e.listening {
		return
	}
	e.touches.Stop()
	e.detector.Reset()
	e.listening = false
	e.logger.Info("stopped listening to multitouch devices")
}

func (e *Engine) contextFor(id uint64) *deviceContext {
	ctx, result := e.contexts.Get(id, true)
	switch {
	case result.Fresh():
		*ctx = deviceContext{sessionEnded: true}
		ctx.action.seq = &e.seq
		e.logger.Debug("created device context", "device", id, "reason", result.String())
	case result == cache.ExpiredRestored:
		e.logger.Debug("recovered expired device context", "device", id)
	}
	return ctx
}

func (e *Engine) clearContexts() {
	e.contexts.Range(true, func(_ uint64, ctx *deviceContext) bool {
		ctx.action.bump()
		return true
	})
	e.contexts.Clear()
}

func (e *Engine) debugEvent(msg string, ev events.Event) {
	if !e.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	e.logger.Debug(msg, "event", events.Describe(ev))
}
