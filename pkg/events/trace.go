package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/offlinefirst/scrollzoom/pkg/phase"
)

// Record is the JSON line written for one event.
type Record struct {
	Seq      int     `json:"seq"`
	AtMillis float64 `json:"at_ms"`
	Type     string  `json:"type"`
	Sender   uint64  `json:"sender,omitempty"`
	Location Point   `json:"location"`
	Flags    string  `json:"flags,omitempty"`
	Phase    string  `json:"phase,omitempty"`
	Momentum bool    `json:"momentum,omitempty"`
	Delta    float64 `json:"delta,omitempty"`
	Scale    float64 `json:"scale,omitempty"`
}

// Describe summarises ev for tracing.
func Describe(ev Event) Record {
	rec := Record{
		AtMillis: float64(ev.Timestamp().Microseconds()) / 1000,
		Type:     ev.Type().String(),
		Sender:   ev.SenderID(),
		Location: ev.Location(),
		Flags:    DescribeFlags(ev.Flags()),
	}
	switch ev.Type() {
	case TypeScrollWheel:
		p, byMomentum, err := phase.UnifyScroll(ev.Integer(FieldScrollPhase), ev.Integer(FieldMomentumPhase))
		rec.Phase = p.String()
		if err != nil {
			rec.Phase = err.Error()
		}
		rec.Momentum = byMomentum
		rec.Delta = ev.Double(FieldPointDeltaAxis1)
	case TypeGesture:
		p, err := phase.UnifyGesture(ev.Integer(FieldGesturePhase))
		rec.Phase = p.String()
		if err != nil {
			rec.Phase = err.Error()
		}
		rec.Scale = ev.Double(FieldGestureZoomValue)
	}
	return rec
}

// DescribeFlags renders the trigger-capable modifiers as key symbols in
// control, option, shift, command order.
func DescribeFlags(f Flags) string {
	symbols := []struct {
		flag   Flags
		symbol string
	}{
		{FlagControl, "⌃"},
		{FlagOption, "⌥"},
		{FlagShift, "⇧"},
		{FlagCommand, "⌘"},
	}
	out := ""
	for _, s := range symbols {
		if f&s.flag != 0 {
			out += s.symbol
		}
	}
	return out
}

// Recorder writes events as JSON lines.
type Recorder struct {
	mu  sync.Mutex
	enc *json.Encoder
	seq int
}

// NewRecorder returns a recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Recorder{enc: enc}
}

// Record appends one line for ev.
func (r *Recorder) Record(ev Event) error {
	rec := Describe(ev)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rec.Seq = r.seq
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("write trace record: %w", err)
	}
	return nil
}

// Count reports how many records were written.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Traced wraps a Platform so every posted event is recorded before it is
// handed to the system. Write failures go to onError, which may be nil.
func Traced(p Platform, rec *Recorder, onError func(error)) Platform {
	return &tracedPlatform{Platform: p, rec: rec, onError: onError}
}

type tracedPlatform struct {
	Platform
	rec     *Recorder
	onError func(error)
}

func (t *tracedPlatform) Post(ev Event) {
	if err := t.rec.Record(ev); err != nil && t.onError != nil {
		t.onError(err)
	}
	t.Platform.Post(ev)
}
