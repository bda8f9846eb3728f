package dotdash

import "fmt"

// TouchPhase is the contact state a multitouch surface reports per finger.
type TouchPhase uint32

const (
	TouchNone TouchPhase = iota
	TouchBegan
	// TouchWillDown is a finger hovering before it lands.
	TouchWillDown
	// TouchDidDown is a finger that just landed.
	TouchDidDown
	TouchMoved
	// TouchWillUp is a finger that just lifted.
	TouchWillUp
	// TouchDidUp is a finger hovering after a tap.
	TouchDidUp
	TouchEnded
)

func (p TouchPhase) String() string {
	switch p {
	case TouchNone:
		return "none"
	case TouchBegan:
		return "began"
	case TouchWillDown:
		return "will_down"
	case TouchDidDown:
		return "did_down"
	case TouchMoved:
		return "moved"
	case TouchWillUp:
		return "will_up"
	case TouchDidUp:
		return "did_up"
	case TouchEnded:
		return "ended"
	default:
		return fmt.Sprintf("touch_phase(%d)", uint32(p))
	}
}

// Down reports whether the finger is on the surface.
func (p TouchPhase) Down() bool {
	return p == TouchBegan || p == TouchDidDown || p == TouchMoved
}

// Vec is a point or velocity in normalised surface units.
type Vec struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Touch is one finger in a contact frame.
type Touch struct {
	PathID   uint32     `json:"path_id" yaml:"path_id"`
	Phase    TouchPhase `json:"phase" yaml:"phase"`
	Location Vec        `json:"location" yaml:"location"`
	Velocity Vec        `json:"velocity" yaml:"velocity"`
	// Density is the contact density; a deliberate tap presses harder than a
	// resting or grazing finger.
	Density float64 `json:"density" yaml:"density"`
}

// Sink consumes what a Source observes. Calls may arrive on any goroutine
// except the main loop.
type Sink interface {
	HandleFrame(deviceID uint64, touches []Touch)
	// Forget is called once a device disconnects.
	Forget(deviceID uint64)
}

// Source delivers contact frames from multitouch pointing devices, including
// devices connected after Start, and reports disconnections.
type Source interface {
	Start(sink Sink) error
	Stop()
}
