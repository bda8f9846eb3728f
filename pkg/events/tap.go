package events

import "time"

// Location is where in the system pipeline a tap is installed.
type Location uint8

const (
	// LocationHID sees events as they enter the window server.
	LocationHID Location = iota
	// LocationSession sees events as they enter the login session.
	LocationSession
	// LocationAnnotatedSession sees session events after they have been
	// annotated with their target process.
	LocationAnnotatedSession
)

func (l Location) String() string {
	switch l {
	case LocationHID:
		return "hid"
	case LocationSession:
		return "session"
	case LocationAnnotatedSession:
		return "annotated_session"
	default:
		return "unknown"
	}
}

// Placement orders a tap against others at the same location.
type Placement uint8

const (
	HeadInsert Placement = iota
	TailAppend
)

func (p Placement) String() string {
	if p == TailAppend {
		return "tail"
	}
	return "head"
}

// Options tells the system whether a tap may alter events.
type Options uint8

const (
	OptionDefault Options = iota
	OptionListenOnly
)

func (o Options) String() string {
	if o == OptionListenOnly {
		return "listen_only"
	}
	return "default"
}

// TapSpec describes one interception registration.
type TapSpec struct {
	Name      string
	Mask      Mask
	Location  Location
	Placement Placement
	Options   Options
	// Enabled is the state the tap starts in once created.
	Enabled bool
}

// Handler processes an event delivered to a tap. Returning the event passes
// it on, returning nil drops it. Handlers run on the platform's main loop.
type Handler func(ev Event) Event

// Tap is a live registration.
type Tap interface {
	SetEnabled(bool)
	Enabled() bool
	Close()
}

// TapInfo describes any tap installed on the system, ours or not.
type TapInfo struct {
	ID      uint32 `json:"id"`
	Mask    Mask   `json:"mask"`
	Options Options `json:"options"`
	// TappingPID owns the tap.
	TappingPID int32 `json:"tapping_pid"`
	// TappedPID is the process being tapped, or 0 for a system-wide tap.
	TappedPID int32 `json:"tapped_pid"`
	Enabled   bool  `json:"enabled"`
}

// Platform is the system interception layer. All methods except PID are
// called on the main loop.
type Platform interface {
	CreateTap(spec TapSpec, handler Handler) (Tap, error)
	ListTaps() ([]TapInfo, error)
	// WatchTaps invokes the callbacks on the main loop whenever any process
	// adds or removes a tap.
	WatchTaps(added, removed func()) (stop func(), err error)
	NewScrollWheel(sample Event) Event
	NewZoomGesture(sample Event) Event
	// Post injects ev at the session level and consumes it.
	Post(ev Event)
	// Now reads the clock event timestamps are expressed on.
	Now() time.Duration
	PID() int32
}
