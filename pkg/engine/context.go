package engine

import (
	"time"

	"github.com/offlinefirst/scrollzoom/pkg/events"
	"github.com/offlinefirst/scrollzoom/pkg/runloop"
	"github.com/offlinefirst/scrollzoom/pkg/settings"
	"github.com/offlinefirst/scrollzoom/pkg/wheel"
)

// deviceContext is the per-device conversion state, keyed by the sender's
// registry id.
type deviceContext struct {
	session      wheel.Session
	sessionEnded bool

	dotDashDragging bool
	// recognizedByDotDash is cleared when the carrying gesture ends.
	recognizedByDotDash bool
	// recognizedByFlags is cleared whenever the trigger state changes.
	recognizedByFlags bool
	options           settings.AppOptions

	lockedLocation events.Point
	hardSignum     int
	momentumStart  time.Duration

	action debouncedAction
}

func (c *deviceContext) activated() bool {
	if c.recognizedByDotDash {
		return true
	}
	return !c.options.Disabled && c.recognizedByFlags
}

func (c *deviceContext) idle() bool {
	return !c.recognizedByFlags && !c.recognizedByDotDash && c.sessionEnded
}

// debouncedAction owns at most one piece of deferred work. Every bump
// invalidates it: the timer is stopped, and the drop func releases whatever
// the work was holding. Tokens come from a sequence shared by all contexts,
// so a reused context never matches work scheduled for its predecessor.
type debouncedAction struct {
	seq   *uint64
	token uint64
	timer runloop.Timer
	drop  func()
}

func (d *debouncedAction) bump() {
	*d.seq++
	d.token = *d.seq
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.drop != nil {
		drop := d.drop
		d.drop = nil
		drop()
	}
}

// schedule runs fire after delay unless bump is called first, in which case
// drop runs instead. Pending work is invalidated.
func (d *debouncedAction) schedule(loop runloop.Loop, delay time.Duration, fire, drop func()) {
	if d.timer != nil || d.drop != nil {
		d.bump()
	}
	token := d.token
	d.drop = drop
	d.timer = loop.After(delay, func() {
		if d.token != token {
			return
		}
		d.timer = nil
		d.drop = nil
		fire()
	})
}

func (d *debouncedAction) pending() bool {
	return d.timer != nil
}
