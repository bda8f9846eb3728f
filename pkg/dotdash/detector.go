// Package dotdash recognizes a double-tap-and-hold ("dot dash drag") on a
// multitouch mouse surface and reports activation edges per device.
package dotdash

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/offlinefirst/scrollzoom/pkg/cache"
)

// Options tunes the recognizer. Zero fields take defaults.
type Options struct {
	// TapInterval is the longest gap between the two taps.
	TapInterval time.Duration
	// TapDistance is the furthest the second tap may land from the first.
	TapDistance float64
	// EdgeMargin excludes fingers that land this close to a surface edge.
	EdgeMargin float64
	// MaxSpeed rejects fingers sliding faster than this before they press.
	MaxSpeed float64
	// MinDensity is the contact density that makes a finger a firm hit.
	MinDensity float64

	Now func() time.Duration
	// Handoff runs fn on the main loop and returns once it has run. Nil runs
	// fn on the calling goroutine.
	Handoff func(fn func())
	Logger  *slog.Logger
}

const (
	DefaultTapInterval = 250 * time.Millisecond
	DefaultTapDistance = 0.25
	DefaultEdgeMargin  = 0.1
	DefaultMaxSpeed    = 1.5
	DefaultMinDensity  = 0.4
)

func (o Options) withDefaults() Options {
	if o.TapInterval <= 0 {
		o.TapInterval = DefaultTapInterval
	}
	if o.TapDistance <= 0 {
		o.TapDistance = DefaultTapDistance
	}
	if o.EdgeMargin <= 0 {
		o.EdgeMargin = DefaultEdgeMargin
	}
	if o.MaxSpeed <= 0 {
		o.MaxSpeed = DefaultMaxSpeed
	}
	if o.MinDensity <= 0 {
		o.MinDensity = DefaultMinDensity
	}
	if o.Now == nil {
		start := time.Now()
		o.Now = func() time.Duration { return time.Since(start) }
	}
	if o.Handoff == nil {
		o.Handoff = func(fn func()) { fn() }
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

type fingerState uint8

const (
	fingerPending fingerState = iota
	fingerFirm
	fingerRejected
)

type finger struct {
	state    fingerState
	location Vec
}

type tapContext struct {
	fingers     map[uint32]*finger
	firm        int
	tapLocation Vec
	tapAt       time.Duration
	tapped      bool
	tapCount    int
	active      bool
}

// Detector tracks every device's fingers and tap count. HandleFrame may be
// called from any goroutine.
type Detector struct {
	opts Options

	mu       sync.Mutex
	contexts *cache.Cache[tapContext]
	callback func(deviceID uint64, active bool)
}

// New returns a detector with opts applied over the defaults.
func New(opts Options) *Detector {
	opts = opts.withDefaults()
	return &Detector{
		opts:     opts,
		contexts: cache.New[tapContext](cache.Options{Now: opts.Now}),
	}
}

// OnActivation registers the single activation callback. It runs through
// Handoff, outside the detector lock.
func (d *Detector) OnActivation(fn func(deviceID uint64, active bool)) {
	d.mu.Lock()
	d.callback = fn
	d.mu.Unlock()
}

// HandleFrame consumes one contact frame from a device.
func (d *Detector) HandleFrame(deviceID uint64, touches []Touch) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, result := d.contexts.Get(deviceID, true)
	if result.Fresh() {
		d.opts.Logger.Debug("tracking multitouch device", "device", deviceID, "reason", result.String())
	}
	if ctx.fingers == nil {
		ctx.fingers = make(map[uint32]*finger)
	}

	firm, firmAt := d.track(ctx, touches)
	if firm == ctx.firm {
		return
	}
	wasActive := ctx.active

	switch {
	case firm == 1 && ctx.firm == 0:
		now := d.opts.Now()
		if !ctx.tapped || now-ctx.tapAt > d.opts.TapInterval || distance(firmAt, ctx.tapLocation) > d.opts.TapDistance {
			ctx.tapAt = now
			ctx.tapLocation = firmAt
			ctx.tapped = true
			ctx.tapCount = 0
		}
		ctx.tapCount++
		if ctx.tapCount == 3 {
			ctx.tapCount = 1
		}
	case firm > 1:
		ctx.tapped = false
		ctx.tapCount = 0
	}

	ctx.firm = firm
	ctx.active = ctx.tapCount == 2 && firm > 0

	if ctx.active == wasActive || d.callback == nil {
		return
	}
	callback, active := d.callback, ctx.active

	// The callback may query the detector, so the lock is released for the
	// duration of the synchronous hand-off and taken back afterwards.
	d.mu.Unlock()
	d.opts.Handoff(func() { callback(deviceID, active) })
	d.mu.Lock()
}

// track updates the finger fingerprints and returns the number of firm
// contacts and where the first of them is.
func (d *Detector) track(ctx *tapContext, touches []Touch) (int, Vec) {
	seen := make(map[uint32]struct{}, len(touches))
	for _, t := range touches {
		if !t.Phase.Down() {
			delete(ctx.fingers, t.PathID)
			continue
		}
		seen[t.PathID] = struct{}{}

		f, ok := ctx.fingers[t.PathID]
		if !ok {
			f = &finger{}
			if d.nearEdge(t.Location) {
				f.state = fingerRejected
			}
			ctx.fingers[t.PathID] = f
		}
		if f.state == fingerPending {
			switch {
			case math.Hypot(t.Velocity.X, t.Velocity.Y) > d.opts.MaxSpeed:
				f.state = fingerRejected
			case t.Density >= d.opts.MinDensity:
				f.state = fingerFirm
			}
		}
		f.location = t.Location
	}

	firm := 0
	var at Vec
	var atID uint32
	for id, f := range ctx.fingers {
		if _, ok := seen[id]; !ok {
			delete(ctx.fingers, id)
			continue
		}
		if f.state != fingerFirm {
			continue
		}
		if firm == 0 || id < atID {
			at, atID = f.location, id
		}
		firm++
	}
	return firm, at
}

func (d *Detector) nearEdge(v Vec) bool {
	m := d.opts.EdgeMargin
	return v.X < m || v.X > 1-m || v.Y < m || v.Y > 1-m
}

// IsActiveWithin reports whether the device is in a dot-dash drag whose
// first tap happened less than timeout ago.
func (d *Detector) IsActiveWithin(deviceID uint64, timeout time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, _ := d.contexts.Get(deviceID, false)
	if ctx == nil || !ctx.active {
		return false
	}
	return d.opts.Now()-ctx.tapAt < timeout
}

// Forget drops a device once it disconnects. A device that was in a drag
// reports its deactivation edge first, so no consumer is left armed.
func (d *Detector) Forget(deviceID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, _ := d.contexts.Get(deviceID, false)
	if ctx == nil {
		return
	}
	wasActive := ctx.active
	*ctx = tapContext{}
	d.opts.Logger.Debug("forgot multitouch device", "device", deviceID, "was_active", wasActive)

	if !wasActive || d.callback == nil {
		return
	}
	callback := d.callback
	d.mu.Unlock()
	d.opts.Handoff(func() { callback(deviceID, false) })
	d.mu.Lock()
}

// Reset drops every device.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contexts.Clear()
}

func distance(a, b Vec) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
