package engine

import (
	"math"

	"github.com/offlinefirst/scrollzoom/pkg/events"
	"github.com/offlinefirst/scrollzoom/pkg/phase"
	"github.com/offlinefirst/scrollzoom/pkg/signum"
	"github.com/offlinefirst/scrollzoom/pkg/wheel"
)

func (e *Engine) onTrigger(ev events.Event) events.Event {
	trigger := e.settings.Trigger()

	var flagsIn bool
	switch ev.Type() {
	case events.TypeFlagsChanged:
		if trigger.IsButton() {
			return ev
		}
		flagsIn = ev.Flags().Modifiers() == trigger.Modifiers
	case events.TypeOtherMouseDown, events.TypeOtherMouseUp:
		if !trigger.IsButton() || ev.Integer(events.FieldMouseButtonNumber) != int64(trigger.Button) {
			return ev
		}
		flagsIn = ev.Type() == events.TypeOtherMouseDown
	default:
		return ev
	}

	if flagsIn == e.flagsIn {
		return ev
	}
	e.debugEvent("trigger changed", ev)
	e.flagsIn = flagsIn

	if !e.reinsertIfNeeded() {
		return ev
	}

	e.contexts.Range(false, func(id uint64, ctx *deviceContext) bool {
		if !flagsIn && ctx.recognizedByFlags && !ctx.recognizedByDotDash {
			e.releaseSession(id, ctx, ev)
		}
		ctx.recognizedByFlags = false
		ctx.action.bump()
		return true
	})

	if flagsIn {
		e.beginMutations()
	} else {
		e.tryToEndMutations()
	}
	return ev
}

func (e *Engine) onRaw(ev events.Event) events.Event {
	sign := signum.Of(ev)
	e.contextFor(ev.SenderID()).hardSignum = sign
	signum.Mark(ev, sign)
	return ev
}

func (e *Engine) onPassive(ev events.Event) events.Event {
	ctx := e.contextFor(ev.SenderID())
	ctx.action.bump()

	p, byMomentum := e.scrollPhase(ev)
	t := wheel.ToScroll
	if byMomentum {
		t = wheel.ToScrollMomentum
	}
	ctx.session.Assign(t, p)
	ctx.sessionEnded = ctx.session.Ended()
	return ev
}

// scrollPhase reads the unified phase. Unknown encodings come back as
// Changed and are only logged.
func (e *Engine) scrollPhase(ev events.Event) (phase.Phase, bool) {
	p, byMomentum, err := phase.UnifyScroll(ev.Integer(events.FieldScrollPhase), ev.Integer(events.FieldMomentumPhase))
	if err != nil {
		e.logger.Warn("unexpected scroll phase", "device", ev.SenderID(), "error", err)
	}
	return p, byMomentum
}

func (e *Engine) onMutating(ev events.Event) events.Event {
	e.debugEvent("mutable scroll", ev)

	id := ev.SenderID()
	ctx := e.contextFor(id)
	ctx.action.bump()

	eventPhase, byMomentum := e.scrollPhase(ev)
	desired := eventPhase

	wasActivated := ctx.activated()

	if !ctx.recognizedByFlags && e.flagsIn {
		ctx.recognizedByFlags = true
		bundleID, _ := e.bundleID(int32(ev.Integer(events.FieldTargetPID)))
		ctx.options = e.settings.AppOptions(bundleID)
	}

	if eventPhase == phase.Began && !byMomentum {
		ctx.recognizedByDotDash = ctx.dotDashDragging && e.detector != nil &&
			e.detector.IsActiveWithin(id, DotDashWindow)
	}

	activated := ctx.activated()
	if activated && !wasActivated {
		ctx.lockedLocation = ev.Location()
	}

	t := wheel.ToScroll
	var data, delta float64
	if activated {
		sign := e.signOf(ev, ctx)
		conv := phase.Converter{
			Magnifier: e.settings.Magnifier(),
			Decay:     phase.Decay{Attenuation: e.settings.Attenuation(), Floor: e.settings.MinMomentum()},
		}
		sample := phase.Sample{
			Phase:      eventPhase,
			ByMomentum: byMomentum,
			Delta:      float64(sign) * math.Abs(ev.Double(events.FieldPointDeltaAxis1)),
			Timestamp:  ev.Timestamp(),
		}
		delta = sample.Delta
		desired, data = conv.Zoom(sample, &ctx.momentumStart)
		t = wheel.ToZoom
	} else if byMomentum {
		t = wheel.ToScrollMomentum
	}

	oldSession := ctx.session
	oldSessionEnded := ctx.sessionEnded
	oldRecognizedByDotDash := ctx.recognizedByDotDash

	res := ctx.session.Update(t, desired, data)
	ctx.sessionEnded = ctx.session.Ended()
	ctx.recognizedByDotDash = oldRecognizedByDotDash && eventPhase != phase.Ended

	switch res.Action {
	case wheel.Unchanged:
		e.logSession(id, oldSession, ctx.session)
		e.tryToEndMutations()
		return ev
	case wheel.Adapted:
		scroll, momentum := phase.AdaptScroll(res.Phase, res.ByMomentum)
		ev.SetInteger(events.FieldScrollPhase, scroll)
		ev.SetInteger(events.FieldMomentumPhase, momentum)
		e.logSession(id, oldSession, ctx.session)
		e.debugEvent("scroll adapted", ev)
		e.tryToEndMutations()
		return ev
	}

	// The event is annotated with its target, so a returned replacement may
	// be ignored. Everything goes out through Post and the original is
	// dropped.
	outputs := make([]events.Event, 0, len(res.Events))
	excludeFlags := ctx.recognizedByFlags && ctx.options.ExcludeFlags
	for _, syn := range res.Events {
		out := e.materialize(ev, syn)
		out.SetLocation(ctx.lockedLocation)
		if excludeFlags {
			out.SetFlags(out.Flags() &^ e.settings.Trigger().Modifiers)
		}
		outputs = append(outputs, out)
	}

	switch {
	case phase.Successor(eventPhase, byMomentum, delta, e.settings.Attenuation()) != phase.Maybe:
		e.logSession(id, oldSession, ctx.session)
		e.replaceWith(outputs)
		e.tryToEndMutations()

	case ctx.session.State != wheel.Free:
		e.logSession(id, oldSession, ctx.session)
		e.replaceWith(outputs)

		// A discrete wheel sends no end phase, so the session is closed
		// once the wheel has been quiet for a while.
		held := ev.Retain()
		ctx.action.schedule(e.loop, releaseDelay, func() {
			e.logger.Debug("no wheel events while waiting, releasing session", "device", id)
			e.releaseSession(id, ctx, held)
			e.tryToEndMutations()
			held.Release()
		}, held.Release)

	default:
		// Momentum may still follow the end of a smooth scroll. The closing
		// events are held back and the session kept open until it is clear
		// none is coming.
		newSession, newSessionEnded, newRecognizedByDotDash := ctx.session, ctx.sessionEnded, ctx.recognizedByDotDash
		ctx.session, ctx.sessionEnded, ctx.recognizedByDotDash = oldSession, oldSessionEnded, oldRecognizedByDotDash

		ctx.action.schedule(e.loop, holdDelay, func() {
			e.logger.Debug("no wheel events while waiting, closing session", "device", id)
			ctx.session, ctx.sessionEnded, ctx.recognizedByDotDash = newSession, newSessionEnded, newRecognizedByDotDash
			e.logSession(id, oldSession, ctx.session)
			e.replaceWith(outputs)
			e.tryToEndMutations()
		}, func() {
			for _, out := range outputs {
				out.Release()
			}
		})
	}
	return nil
}

// signOf picks the delta sign recorded before foreign taps could rewrite the
// event, falling back to the last one seen for the device.
func (e *Engine) signOf(ev events.Event, ctx *deviceContext) int {
	if !e.enabled(tapRaw) {
		return signum.Of(ev)
	}
	sign, ok := signum.Consume(ev)
	if !ok {
		e.logger.Debug("scroll event from an unknown source", "device", ev.SenderID())
		return ctx.hardSignum
	}
	return sign
}

// materialize builds the event syn describes, copying source, flags,
// location and time from sample.
func (e *Engine) materialize(sample events.Event, syn wheel.Synthetic) events.Event {
	if syn.Type == wheel.ToZoom {
		out := e.platform.NewZoomGesture(sample)
		out.SetInteger(events.FieldGesturePhase, phase.AdaptGesture(syn.Phase))
		out.SetDouble(events.FieldGestureZoomValue, syn.Scale)
		return out
	}
	out := e.platform.NewScrollWheel(sample)
	scroll, momentum := phase.AdaptScroll(syn.Phase, syn.Type == wheel.ToScrollMomentum)
	out.SetInteger(events.FieldScrollPhase, scroll)
	out.SetInteger(events.FieldMomentumPhase, momentum)
	out.SetInteger(events.FieldIsContinuous, 1)
	return out
}

// replaceWith posts the first event now and the second a little later with a
// fresh timestamp. Some applications ignore a gesture whose events arrive
// together.
func (e *Engine) replaceWith(outputs []events.Event) {
	if len(outputs) == 0 {
		e.logger.Debug("scroll event discarded")
		return
	}
	e.debugEvent("replaced by", outputs[0])
	e.platform.Post(outputs[0])

	for _, out := range outputs[1:] {
		e.loop.After(successorDelay, func() {
			out.SetTimestamp(e.platform.Now())
			e.debugEvent("replaced by", out)
			e.platform.Post(out)
		})
	}
}

// releaseSession closes the device's session with an event built from
// sample and posts it.
func (e *Engine) releaseSession(id uint64, ctx *deviceContext, sample events.Event) {
	old := ctx.session
	syn, ok := ctx.session.Discard()
	ctx.sessionEnded = ctx.session.Ended()
	e.logSession(id, old, ctx.session)
	if !ok {
		return
	}
	out := e.materialize(sample, syn)
	e.debugEvent("posted closing event", out)
	e.platform.Post(out)
}

func (e *Engine) logSession(id uint64, from, to wheel.Session) {
	if from == to {
		return
	}
	e.logger.Debug("session changed", "device", id, "from", from.String(), "to", to.String())
}

func (e *Engine) handleActivation(deviceID uint64, active bool) {
	if !e.IsEnabled() {
		return
	}
	if !e.reinsertIfNeeded() {
		return
	}

	e.contextFor(deviceID).dotDashDragging = active
	if active {
		e.logger.Debug("dot-dash drag activated", "device", deviceID)
		e.beginMutations()
	} else {
		e.logger.Debug("dot-dash drag deactivated", "device", deviceID)
		e.tryToEndMutations()
	}

	a := Activation{DeviceID: deviceID, Active: active}
	for _, fn := range e.observers {
		fn(a)
	}
}
