package events

import (
	"fmt"
	"time"
)

// Type identifies the kind of an input event. Values match Quartz event types.
type Type uint32

const (
	TypeNull           Type = 0
	TypeFlagsChanged   Type = 12
	TypeScrollWheel    Type = 22
	TypeOtherMouseDown Type = 25
	TypeOtherMouseUp   Type = 26
	TypeGesture        Type = 29

	// TypeTapDisabledByTimeout is delivered when the system disables a tap whose
	// callback took too long.
	TypeTapDisabledByTimeout Type = 0xFFFFFFFE
	// TypeTapDisabledByUserInput is delivered when the system disables a tap
	// because of secure input or a suspicious event volume.
	TypeTapDisabledByUserInput Type = 0xFFFFFFFF
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeFlagsChanged:
		return "flags_changed"
	case TypeScrollWheel:
		return "scroll_wheel"
	case TypeOtherMouseDown:
		return "other_mouse_down"
	case TypeOtherMouseUp:
		return "other_mouse_up"
	case TypeGesture:
		return "gesture"
	case TypeTapDisabledByTimeout:
		return "tap_disabled_by_timeout"
	case TypeTapDisabledByUserInput:
		return "tap_disabled_by_user_input"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// Mask selects event types for a tap.
type Mask uint64

// MaskOf builds a mask from types.
func MaskOf(types ...Type) Mask {
	var m Mask
	for _, t := range types {
		m |= 1 << uint64(t)
	}
	return m
}

// Has reports whether t is selected.
func (m Mask) Has(t Type) bool {
	if t >= 64 {
		return false
	}
	return m&(1<<uint64(t)) != 0
}

// Field is a numeric event field selector. Values match Quartz field numbers,
// including the undocumented gesture fields.
type Field uint32

const (
	FieldMouseButtonNumber Field = 3
	FieldDeltaAxis1        Field = 11
	FieldTargetPID         Field = 40
	FieldSourcePID         Field = 41
	FieldSourceUserData    Field = 42
	FieldRegistryID        Field = 87
	FieldIsContinuous      Field = 88
	FieldPointDeltaAxis1   Field = 96
	FieldScrollPhase       Field = 99
	FieldMomentumPhase     Field = 123
	FieldGestureHIDType    Field = 110
	FieldGestureZoomValue  Field = 113
	FieldGesturePhase      Field = 132
	FieldDirectionInverted Field = 137
)

// HIDTypeZoom is the gesture HID type of a pinch-zoom gesture.
const HIDTypeZoom int64 = 8

// Flags holds modifier key state. Values match Quartz event flags.
type Flags uint64

const (
	FlagShift   Flags = 0x00020000
	FlagControl Flags = 0x00040000
	FlagOption  Flags = 0x00080000
	FlagCommand Flags = 0x00100000

	ModifierMask = FlagShift | FlagControl | FlagOption | FlagCommand
)

// Modifiers strips everything but the four trigger-capable modifier keys.
func (f Flags) Modifiers() Flags {
	return f & ModifierMask
}

// Point is a location in global display coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is a mutable input event. An Event handed to a tap handler is borrowed
// for the duration of the call; keep it longer with Retain. Events created by a
// Platform are owned by the caller until passed to Post, which consumes them.
type Event interface {
	Type() Type
	// SenderID identifies the hardware device that produced the event.
	SenderID() uint64
	// Timestamp is the event time on the system uptime clock.
	Timestamp() time.Duration
	SetTimestamp(time.Duration)
	Location() Point
	SetLocation(Point)
	Flags() Flags
	SetFlags(Flags)
	Integer(Field) int64
	SetInteger(Field, int64)
	Double(Field) float64
	SetDouble(Field, float64)
	// Retain returns an owned reference that must be released.
	Retain() Event
	Release()
}
