// Package wheel holds the per-device session that turns a raw wheel phase
// sequence into a well-formed scroll or zoom gesture phase sequence.
package wheel

import (
	"fmt"

	"github.com/offlinefirst/scrollzoom/pkg/phase"
)

// State is the lifecycle position of a session.
type State uint8

const (
	Free State = iota
	WillBegin
	DidBegin
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case WillBegin:
		return "will_begin"
	case DidBegin:
		return "did_begin"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Type is what a session turns wheel events into.
type Type uint8

const (
	ToScroll Type = iota
	ToScrollMomentum
	ToZoom
)

func (t Type) String() string {
	switch t {
	case ToScroll:
		return "scroll"
	case ToScrollMomentum:
		return "scroll_momentum"
	case ToZoom:
		return "zoom"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Action tells the caller what to do with the wheel event it passed in.
type Action uint8

const (
	// Unchanged passes the event on as is.
	Unchanged Action = iota
	// Adapted passes the event on after rewriting its phase to Result.Phase.
	Adapted
	// Replaced drops the event; Result.Events, possibly empty, go out instead.
	Replaced
)

func (a Action) String() string {
	switch a {
	case Unchanged:
		return "unchanged"
	case Adapted:
		return "adapted"
	case Replaced:
		return "replaced"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Synthetic describes an event to be created and posted.
type Synthetic struct {
	Type  Type
	Phase phase.Phase
	// Scale is the zoom magnification; scroll events carry none.
	Scale float64
}

// Result is the outcome of feeding one wheel event to a session.
type Result struct {
	Action Action
	// Phase is the phase to write into the event when Action is Adapted.
	Phase phase.Phase
	// ByMomentum selects the momentum encoding when adapting.
	ByMomentum bool
	Events     []Synthetic
}

// Session is the conversion state of one device. Type is meaningful only
// while State is not Free.
type Session struct {
	State State
	Type  Type
}

func (s Session) String() string {
	if s.State == Free {
		return "free"
	}
	return s.State.String() + " " + s.Type.String()
}

// Update advances the session with a wheel event that should become t with
// phase p. data is the zoom magnification for ToZoom.
func (s *Session) Update(t Type, p phase.Phase, data float64) Result {
	// Downstream gesture recognizers break on a may-begin they cannot
	// complete, so only plain scrolls may carry it.
	if t != ToScroll && p == phase.MayBegin {
		return Result{Action: Replaced}
	}

	// Non-continuous wheels have no phase and end whatever is running.
	if p == phase.None && t == ToScroll {
		return s.discardThrough()
	}

	// An incompatible session ends first; the proposed one is not merged.
	if s.State != Free && s.Type != t {
		return s.discardThrough()
	}

	proposed := p

	switch s.State {
	case Free:
		switch p {
		case phase.MayBegin:
			s.State = WillBegin
		case phase.Began, phase.None, phase.Changed:
			s.State = DidBegin
			p = phase.Began
		default:
			return Result{Action: Replaced}
		}

	case WillBegin:
		switch p {
		case phase.MayBegin:
			return Result{Action: Replaced}
		case phase.Began, phase.None, phase.Changed:
			s.State = DidBegin
			p = phase.Began
		case phase.Ended:
			s.State = Free
			p = phase.Cancelled
		case phase.Cancelled:
			s.State = Free
		}

	case DidBegin:
		switch p {
		case phase.MayBegin:
			return Result{Action: Replaced}
		case phase.Began, phase.None, phase.Changed:
			p = phase.Changed
		case phase.Ended, phase.Cancelled:
			s.State = Free
		}
	}

	s.Type = t
	switch t {
	case ToScroll, ToScrollMomentum:
		if proposed == p {
			return Result{Action: Unchanged, Phase: p, ByMomentum: t == ToScrollMomentum}
		}
		return Result{Action: Adapted, Phase: p, ByMomentum: t == ToScrollMomentum}

	default:
		if p == phase.Began && data != 0 {
			return Result{Action: Replaced, Phase: p, Events: []Synthetic{
				{Type: ToZoom, Phase: phase.Began},
				{Type: ToZoom, Phase: phase.Changed, Scale: data},
			}}
		}
		return Result{Action: Replaced, Phase: p, Events: []Synthetic{{Type: ToZoom, Phase: p, Scale: data}}}
	}
}

// closing returns the phase that ends the session from its current state.
func (s *Session) closing() (phase.Phase, bool) {
	switch s.State {
	case WillBegin:
		return phase.Cancelled, true
	case DidBegin:
		return phase.Ended, true
	default:
		return phase.None, false
	}
}

// discardThrough ends the session using the wheel event at hand: scroll
// sessions rewrite it, zoom sessions replace it with a closing gesture.
func (s *Session) discardThrough() Result {
	p, ok := s.closing()
	if !ok {
		return Result{Action: Unchanged, Phase: phase.None}
	}
	s.State = Free
	switch s.Type {
	case ToScroll, ToScrollMomentum:
		return Result{Action: Adapted, Phase: p, ByMomentum: s.Type == ToScrollMomentum}
	default:
		return Result{Action: Replaced, Phase: p, Events: []Synthetic{{Type: ToZoom, Phase: p}}}
	}
}

// Discard ends the session without a carrier wheel event and returns the
// closing event to create. A free session yields nothing.
func (s *Session) Discard() (Synthetic, bool) {
	p, ok := s.closing()
	if !ok {
		return Synthetic{}, false
	}
	s.State = Free
	return Synthetic{Type: s.Type, Phase: p}, true
}

// Assign records a phase observed without mutating anything.
func (s *Session) Assign(t Type, p phase.Phase) {
	switch p {
	case phase.MayBegin:
		if t != ToScroll {
			return
		}
		s.State = WillBegin
	case phase.Began, phase.Changed:
		s.State = DidBegin
	default:
		s.State = Free
	}
	s.Type = t
}

// Ended reports whether the session holds nothing that must still be closed.
func (s Session) Ended() bool {
	return s.State == Free
}
