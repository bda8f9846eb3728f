// Package phase translates between the platform's scroll, momentum and
// gesture phase encodings and a single unified phase, and holds the zoom
// magnitude math applied while converting wheel deltas.
package phase

import "fmt"

// Phase is the unified gesture phase.
type Phase uint8

const (
	None Phase = iota
	MayBegin
	Began
	Changed
	Ended
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case None:
		return "none"
	case MayBegin:
		return "may_begin"
	case Began:
		return "began"
	case Changed:
		return "changed"
	case Ended:
		return "ended"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Terminal reports whether p closes a gesture.
func (p Phase) Terminal() bool {
	return p == Ended || p == Cancelled
}

// Raw scroll phase values carried by scroll-wheel events.
const (
	ScrollNone      int64 = 0
	ScrollBegan     int64 = 1
	ScrollChanged   int64 = 2
	ScrollEnded     int64 = 4
	ScrollCancelled int64 = 8
	ScrollMayBegin  int64 = 128
)

// Raw momentum phase values carried by scroll-wheel events.
const (
	MomentumNone     int64 = 0
	MomentumBegin    int64 = 1
	MomentumContinue int64 = 2
	MomentumEnd      int64 = 3
)

// Raw gesture phase values carried by gesture events.
const (
	GestureNone      int64 = 0
	GestureBegan     int64 = 1
	GestureChanged   int64 = 2
	GestureEnded     int64 = 4
	GestureCancelled int64 = 8
	GestureMayBegin  int64 = 128
)

// UnknownEncodingError is returned alongside a Changed phase when a raw value
// is not in the table.
type UnknownEncodingError struct {
	Kind  string
	Value int64
}

func (e *UnknownEncodingError) Error() string {
	return fmt.Sprintf("unknown %s phase %d", e.Kind, e.Value)
}

// UnifyScroll maps a scroll event's raw scroll and momentum phases. A non-zero
// momentum phase takes precedence and sets byMomentum.
func UnifyScroll(rawScroll, rawMomentum int64) (p Phase, byMomentum bool, err error) {
	if rawMomentum != MomentumNone {
		switch rawMomentum {
		case MomentumBegin:
			return Began, true, nil
		case MomentumContinue:
			return Changed, true, nil
		case MomentumEnd:
			return Ended, true, nil
		default:
			return Changed, true, &UnknownEncodingError{Kind: "momentum", Value: rawMomentum}
		}
	}

	switch rawScroll {
	case ScrollNone:
		return None, false, nil
	case ScrollMayBegin:
		return MayBegin, false, nil
	case ScrollBegan:
		return Began, false, nil
	case ScrollChanged:
		return Changed, false, nil
	case ScrollEnded:
		return Ended, false, nil
	case ScrollCancelled:
		return Cancelled, false, nil
	default:
		return Changed, false, &UnknownEncodingError{Kind: "scroll", Value: rawScroll}
	}
}

// AdaptScroll is the inverse of UnifyScroll. Momentum phases have no may-begin
// or cancelled form; those collapse to none and end respectively.
func AdaptScroll(p Phase, byMomentum bool) (rawScroll, rawMomentum int64) {
	if byMomentum {
		switch p {
		case Began:
			return ScrollNone, MomentumBegin
		case Changed:
			return ScrollNone, MomentumContinue
		case Ended, Cancelled:
			return ScrollNone, MomentumEnd
		default:
			return ScrollNone, MomentumNone
		}
	}

	switch p {
	case MayBegin:
		return ScrollMayBegin, MomentumNone
	case Began:
		return ScrollBegan, MomentumNone
	case Changed:
		return ScrollChanged, MomentumNone
	case Ended:
		return ScrollEnded, MomentumNone
	case Cancelled:
		return ScrollCancelled, MomentumNone
	default:
		return ScrollNone, MomentumNone
	}
}

// UnifyGesture maps a gesture event's raw phase.
func UnifyGesture(raw int64) (Phase, error) {
	switch raw {
	case GestureNone:
		return None, nil
	case GestureMayBegin:
		return MayBegin, nil
	case GestureBegan:
		return Began, nil
	case GestureChanged:
		return Changed, nil
	case GestureEnded:
		return Ended, nil
	case GestureCancelled:
		return Cancelled, nil
	default:
		return Changed, &UnknownEncodingError{Kind: "gesture", Value: raw}
	}
}

// AdaptGesture is the inverse of UnifyGesture.
func AdaptGesture(p Phase) int64 {
	switch p {
	case MayBegin:
		return GestureMayBegin
	case Began:
		return GestureBegan
	case Changed:
		return GestureChanged
	case Ended:
		return GestureEnded
	case Cancelled:
		return GestureCancelled
	default:
		return GestureNone
	}
}
