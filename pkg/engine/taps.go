package engine

import (
	"strings"

	"github.com/offlinefirst/scrollzoom/pkg/events"
)

type tapKind int

const (
	// tapTrigger observes modifier and side-button changes.
	tapTrigger tapKind = iota
	// tapRaw stamps the delta sign on wheel events before any foreign tap
	// sees them. Registered only when another process mutates scrolls.
	tapRaw
	// tapPassive tracks session phases while nothing is being converted.
	tapPassive
	// tapMutating converts wheel events once the trigger arms a device.
	tapMutating

	tapKinds
)

func (k tapKind) String() string {
	switch k {
	case tapTrigger:
		return "trigger"
	case tapRaw:
		return "raw"
	case tapPassive:
		return "passive"
	case tapMutating:
		return "mutating"
	default:
		return "unknown"
	}
}

var tapSpecs = [tapKinds]events.TapSpec{
	tapTrigger: {
		Name:      "trigger",
		Mask:      events.MaskOf(events.TypeFlagsChanged, events.TypeOtherMouseDown, events.TypeOtherMouseUp),
		Location:  events.LocationHID,
		Placement: events.HeadInsert,
		Options:   events.OptionListenOnly,
		Enabled:   true,
	},
	// The sign mark is written into the event, so this tap cannot be
	// listen-only even though it never drops anything.
	tapRaw: {
		Name:      "raw",
		Mask:      events.MaskOf(events.TypeScrollWheel),
		Location:  events.LocationHID,
		Placement: events.HeadInsert,
		Options:   events.OptionDefault,
	},
	tapPassive: {
		Name:      "passive",
		Mask:      events.MaskOf(events.TypeScrollWheel),
		Location:  events.LocationHID,
		Placement: events.HeadInsert,
		Options:   events.OptionListenOnly,
		Enabled:   true,
	},
	tapMutating: {
		Name:      "mutating",
		Mask:      events.MaskOf(events.TypeScrollWheel),
		Location:  events.LocationAnnotatedSession,
		Placement: events.TailAppend,
		Options:   events.OptionDefault,
	},
}

func (e *Engine) handlerFor(k tapKind) events.Handler {
	var h events.Handler
	switch k {
	case tapTrigger:
		h = e.onTrigger
	case tapRaw:
		h = e.onRaw
	case tapPassive:
		h = e.onPassive
	default:
		h = e.onMutating
	}
	return func(ev events.Event) events.Event {
		switch ev.Type() {
		case events.TypeTapDisabledByTimeout, events.TypeTapDisabledByUserInput:
			e.logger.Error("event tap disabled by the system", "tap", k.String(), "reason", ev.Type().String())
			e.teardown()
			return nil
		}
		return h(ev)
	}
}

func (e *Engine) registered(k tapKind) bool {
	return e.taps[k] != nil
}

func (e *Engine) enabled(k tapKind) bool {
	return e.taps[k] != nil && e.taps[k].Enabled()
}

func (e *Engine) setEnabled(k tapKind, v bool) {
	if e.taps[k] != nil {
		e.taps[k].SetEnabled(v)
	}
}

func (e *Engine) setRegistered(k tapKind, v bool) error {
	if v == e.registered(k) {
		return nil
	}
	if !v {
		tap := e.taps[k]
		e.taps[k] = nil
		tap.Close()
		return nil
	}
	tap, err := e.platform.CreateTap(tapSpecs[k], e.handlerFor(k))
	if err != nil {
		return err
	}
	e.taps[k] = tap
	return nil
}

// setAllRegistered walks the taps in order and stops at the first failure.
func (e *Engine) setAllRegistered(v, useRaw bool) error {
	for k := tapKind(0); k < tapKinds; k++ {
		want := v && (k != tapRaw || useRaw)
		if err := e.setRegistered(k, want); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) registerOrCleanUp() bool {
	e.exclusive = e.IsExclusive()

	if err := e.setAllRegistered(true, !e.exclusive); err != nil {
		e.logger.Error("failed to register event taps", "error", err)
		e.teardown()
		return false
	}

	e.needsReinsert = false
	e.expectedTaps = e.tapCount()
	return true
}

// reinsertIfNeeded re-registers every tap after a foreign tap appeared, so
// ours sit ahead of it again. It reports whether the taps are usable.
func (e *Engine) reinsertIfNeeded() bool {
	if !e.needsReinsert {
		return true
	}
	e.logger.Info("reinserting event taps after a tap list change")
	if err := e.setAllRegistered(false, false); err != nil {
		e.logger.Warn("unregister before reinsertion", "error", err)
	}
	return e.registerOrCleanUp()
}

func (e *Engine) tapCount() int {
	infos, err := e.platform.ListTaps()
	if err != nil {
		e.logger.Warn("list event taps", "error", err)
		return 0
	}
	return len(infos)
}

func (e *Engine) anyTapAdded() {
	if !e.IsEnabled() {
		return
	}
	if e.tapCount() > e.expectedTaps {
		e.logger.Debug("foreign event tap added")
		e.needsReinsert = true
	}
}

func (e *Engine) anyTapRemoved() {
	// May go negative while our own taps come down.
	e.expectedTaps--
}

// IsExclusive reports whether no other process mutates scroll events ahead
// of us. Listen-only, per-process and system-owned taps do not count.
func (e *Engine) IsExclusive() bool {
	return len(e.Interceptors()) == 0
}

// Interceptor is a foreign tap that mutates scroll events system-wide.
type Interceptor struct {
	events.TapInfo
	BundleID string `json:"bundleId"`
}

// Interceptors lists the foreign taps that make the engine non-exclusive.
func (e *Engine) Interceptors() []Interceptor {
	infos, err := e.platform.ListTaps()
	if err != nil {
		e.logger.Warn("list event taps", "error", err)
		return nil
	}

	var out []Interceptor
	for _, info := range infos {
		if !info.Mask.Has(events.TypeScrollWheel) ||
			info.Options == events.OptionListenOnly ||
			info.TappedPID != 0 ||
			info.TappingPID == e.platform.PID() {
			continue
		}
		bundleID, ok := e.bundleID(info.TappingPID)
		if !ok || strings.HasPrefix(bundleID, "com.apple.") {
			continue
		}
		out = append(out, Interceptor{TapInfo: info, BundleID: bundleID})
	}
	return out
}

func (e *Engine) bundleID(pid int32) (string, bool) {
	if e.processes == nil {
		return "", false
	}
	id, ok := e.processes.BundleID(pid)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func (e *Engine) beginMutations() {
	if e.enabled(tapMutating) {
		return
	}
	if e.registered(tapRaw) {
		e.setEnabled(tapRaw, true)
		e.logger.Debug("raw scroll tap on")
	}
	e.setEnabled(tapPassive, false)
	e.setEnabled(tapMutating, true)
	e.logger.Debug("switched to mutating scroll tap")
}

// tryToEndMutations falls back to passive observation once no device holds
// anything that still needs converting. It reports whether it did.
func (e *Engine) tryToEndMutations() bool {
	if e.enabled(tapPassive) {
		return true
	}
	if e.flagsIn {
		return false
	}

	idle := true
	e.contexts.Range(false, func(_ uint64, ctx *deviceContext) bool {
		idle = ctx.idle()
		return idle
	})
	if !idle {
		return false
	}

	if e.registered(tapRaw) {
		e.setEnabled(tapRaw, false)
		e.logger.Debug("raw scroll tap off")
	}
	e.setEnabled(tapPassive, true)
	e.setEnabled(tapMutating, false)
	e.logger.Debug("switched to passive scroll tap")
	return true
}
