// Package signum hands the sign of a wheel delta from an early interception
// point to a later one through a spare field of the event itself.
package signum

import "github.com/offlinefirst/scrollzoom/pkg/events"

const field = events.FieldSourceUserData

const tag int64 = 'Z'<<56 | 'O'<<48 | 'O'<<40 | 'M'<<32

const (
	zero     = tag | 'S'<<24 | 'G'<<16 | 'N'<<8 | '0'
	positive = tag | 'S'<<24 | 'G'<<16 | 'N'<<8 | '+'
	negative = tag | 'S'<<24 | 'G'<<16 | 'N'<<8 | '-'
)

// Of computes the sign of the event's line delta, corrected for a device that
// reports inverted direction.
func Of(ev events.Event) int {
	delta := ev.Integer(events.FieldDeltaAxis1)
	if ev.Integer(events.FieldDirectionInverted) != 0 {
		delta = -delta
	}
	switch {
	case delta > 0:
		return 1
	case delta < 0:
		return -1
	default:
		return 0
	}
}

// Mark stores sign on ev. It writes only into an unused field and reports
// whether it did.
func Mark(ev events.Event, sign int) bool {
	if ev.Integer(field) != 0 {
		return false
	}
	ev.SetInteger(field, encode(sign))
	return true
}

// Consume reads and clears a sign stored by Mark. Values it did not write are
// left in place.
func Consume(ev events.Event) (int, bool) {
	sign, ok := decode(ev.Integer(field))
	if ok {
		ev.SetInteger(field, 0)
	}
	return sign, ok
}

func encode(sign int) int64 {
	switch {
	case sign > 0:
		return positive
	case sign < 0:
		return negative
	default:
		return zero
	}
}

func decode(v int64) (int, bool) {
	switch v {
	case zero:
		return 0, true
	case positive:
		return 1, true
	case negative:
		return -1, true
	default:
		return 0, false
	}
}
