package events

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrTapCreate is returned when the system refuses an interception request.
var ErrTapCreate = errors.New("event tap creation failed")

// SimEvent is an in-memory Event used by the Simulator.
type SimEvent struct {
	typ       Type
	sender    uint64
	timestamp time.Duration
	location  Point
	flags     Flags
	ints      map[Field]int64
	doubles   map[Field]float64

	refs  int
	owner *Simulator
}

// NewSimEvent builds a detached event that is not counted by any simulator.
func NewSimEvent(t Type) *SimEvent {
	return &SimEvent{typ: t, refs: 1}
}

// WithSender sets the hardware sender and the registry id field together.
func (e *SimEvent) WithSender(id uint64) *SimEvent {
	e.sender = id
	e.SetInteger(FieldRegistryID, int64(id))
	return e
}

func (e *SimEvent) Type() Type { return e.typ }
func (e *SimEvent) SenderID() uint64 { return e.sender }
func (e *SimEvent) Timestamp() time.Duration { return e.timestamp }
func (e *SimEvent) SetTimestamp(t time.Duration) { e.timestamp = t }
func (e *SimEvent) Location() Point { return e.location }
func (e *SimEvent) SetLocation(p Point) { e.location = p }
func (e *SimEvent) Flags() Flags { return e.flags }
func (e *SimEvent) SetFlags(f Flags) { e.flags = f }

func (e *SimEvent) Integer(f Field) int64 {
	if v, ok := e.ints[f]; ok {
		return v
	}
	if v, ok := e.doubles[f]; ok {
		return int64(v)
	}
	return 0
}

func (e *SimEvent) SetInteger(f Field, v int64) {
	if e.ints == nil {
		e.ints = make(map[Field]int64)
	}
	e.ints[f] = v
	delete(e.doubles, f)
}

func (e *SimEvent) Double(f Field) float64 {
	if v, ok := e.doubles[f]; ok {
		return v
	}
	if v, ok := e.ints[f]; ok {
		return float64(v)
	}
	return 0
}

func (e *SimEvent) SetDouble(f Field, v float64) {
	if e.doubles == nil {
		e.doubles = make(map[Field]float64)
	}
	e.doubles[f] = v
	delete(e.ints, f)
}

func (e *SimEvent) Retain() Event {
	e.refs++
	if e.owner != nil {
		e.owner.outstanding++
	}
	return e
}

func (e *SimEvent) Release() {
	if e.refs <= 0 {
		panic(fmt.Sprintf("events: over-release of %s event", e.typ))
	}
	e.refs--
	if e.owner != nil {
		e.owner.outstanding--
	}
}

func (e *SimEvent) clone() *SimEvent {
	c := *e
	c.ints = make(map[Field]int64, len(e.ints))
	for k, v := range e.ints {
		c.ints[k] = v
	}
	c.doubles = make(map[Field]float64, len(e.doubles))
	for k, v := range e.doubles {
		c.doubles[k] = v
	}
	c.owner = nil
	c.refs = 1
	return &c
}

// notice carries a tap-disabled notification through a Handler.
type notice struct {
	typ Type
}

func (n notice) Type() Type { return n.typ }
func (notice) SenderID() uint64 { return 0 }
func (notice) Timestamp() time.Duration { return 0 }
func (notice) SetTimestamp(time.Duration) {}
func (notice) Location() Point { return Point{} }
func (notice) SetLocation(Point) {}
func (notice) Flags() Flags { return 0 }
func (notice) SetFlags(Flags) {}
func (notice) Integer(Field) int64 { return 0 }
func (notice) SetInteger(Field, int64) {}
func (notice) Double(Field) float64 { return 0 }
func (notice) SetDouble(Field, float64) {}
func (n notice) Retain() Event { return n }
func (notice) Release() {}

type simTap struct {
	sim     *Simulator
	id      uint32
	spec    TapSpec
	handler Handler
	enabled bool
	closed  bool
}

func (t *simTap) SetEnabled(v bool) {
	if !t.closed {
		t.enabled = v
	}
}

func (t *simTap) Enabled() bool { return t.enabled && !t.closed }

func (t *simTap) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.enabled = false
	t.sim.removeTap(t)
}

// Simulator is a deterministic Platform. Events injected with Dispatch walk
// the registered taps in system order: by location, then head-inserted taps
// newest first, then tail-appended taps oldest first. Tap add and remove
// notifications are delivered synchronously. It is not safe for concurrent
// use; drive it from the loop that runs the engine.
type Simulator struct {
	now func() time.Duration
	pid int32

	nextID  uint32
	taps    []*simTap
	foreign []TapInfo

	added, removed []func()

	posted      []*SimEvent
	outstanding int

	// FailCreate makes every CreateTap call fail.
	FailCreate bool
}

// NewSimulator returns a simulator whose timestamps come from now.
func NewSimulator(now func() time.Duration) *Simulator {
	if now == nil {
		start := time.Now()
		now = func() time.Duration { return time.Since(start) }
	}
	return &Simulator{now: now, pid: 4242, nextID: 1}
}

func (s *Simulator) PID() int32 { return s.pid }
func (s *Simulator) Now() time.Duration { return s.now() }

func (s *Simulator) CreateTap(spec TapSpec, handler Handler) (Tap, error) {
	if s.FailCreate {
		return nil, fmt.Errorf("%w: %s", ErrTapCreate, spec.Name)
	}
	tap := &simTap{sim: s, id: s.nextID, spec: spec, handler: handler, enabled: spec.Enabled}
	s.nextID++

	idx := len(s.taps)
	for i, other := range s.taps {
		if other.spec.Location > spec.Location {
			idx = i
			break
		}
		if other.spec.Location == spec.Location && spec.Placement == HeadInsert {
			idx = i
			break
		}
	}
	s.taps = append(s.taps, nil)
	copy(s.taps[idx+1:], s.taps[idx:])
	s.taps[idx] = tap

	s.notify(s.added)
	return tap, nil
}

func (s *Simulator) removeTap(tap *simTap) {
	for i, t := range s.taps {
		if t == tap {
			s.taps = append(s.taps[:i], s.taps[i+1:]...)
			break
		}
	}
	s.notify(s.removed)
}

// AddForeignTap installs a tap owned by another process.
func (s *Simulator) AddForeignTap(info TapInfo) uint32 {
	info.ID = s.nextID
	s.nextID++
	s.foreign = append(s.foreign, info)
	s.notify(s.added)
	return info.ID
}

// RemoveForeignTap uninstalls a tap added with AddForeignTap.
func (s *Simulator) RemoveForeignTap(id uint32) {
	for i, info := range s.foreign {
		if info.ID == id {
			s.foreign = append(s.foreign[:i], s.foreign[i+1:]...)
			s.notify(s.removed)
			return
		}
	}
}

func (s *Simulator) ListTaps() ([]TapInfo, error) {
	infos := make([]TapInfo, 0, len(s.taps)+len(s.foreign))
	for _, t := range s.taps {
		infos = append(infos, TapInfo{
			ID:         t.id,
			Mask:       t.spec.Mask,
			Options:    t.spec.Options,
			TappingPID: s.pid,
			Enabled:    t.enabled,
		})
	}
	infos = append(infos, s.foreign...)
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

func (s *Simulator) WatchTaps(added, removed func()) (func(), error) {
	ai, ri := len(s.added), len(s.removed)
	s.added = append(s.added, added)
	s.removed = append(s.removed, removed)
	return func() {
		s.added[ai] = nil
		s.removed[ri] = nil
	}, nil
}

func (s *Simulator) notify(fns []func()) {
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

func (s *Simulator) newOwned(t Type, sample Event) *SimEvent {
	ev := &SimEvent{typ: t, refs: 1, owner: s}
	s.outstanding++
	if sample != nil {
		ev.sender = sample.SenderID()
		ev.SetInteger(FieldRegistryID, int64(ev.sender))
		ev.flags = sample.Flags()
		ev.location = sample.Location()
		ev.timestamp = sample.Timestamp()
	}
	return ev
}

func (s *Simulator) NewScrollWheel(sample Event) Event {
	return s.newOwned(TypeScrollWheel, sample)
}

func (s *Simulator) NewZoomGesture(sample Event) Event {
	ev := s.newOwned(TypeGesture, sample)
	ev.SetInteger(FieldGestureHIDType, HIDTypeZoom)
	return ev
}

func (s *Simulator) Post(ev Event) {
	if se, ok := ev.(*SimEvent); ok {
		s.posted = append(s.posted, se.clone())
	}
	ev.Release()
}

// Dispatch delivers ev through every enabled tap whose mask selects it and
// returns what reaches the target application, or nil if a tap dropped it.
// The simulator takes ownership of ev.
func (s *Simulator) Dispatch(ev *SimEvent) Event {
	ev.owner = s
	s.outstanding++

	var cur Event = ev
	for _, tap := range append([]*simTap(nil), s.taps...) {
		if !tap.Enabled() || !tap.spec.Mask.Has(cur.Type()) {
			continue
		}
		out := tap.handler(cur)
		if tap.spec.Options == OptionListenOnly {
			continue
		}
		if out == nil {
			ev.Release()
			return nil
		}
		cur = out
	}
	ev.Release()
	return cur
}

// Disable simulates the system switching off the named tap and notifies its
// handler with t, which must be one of the tap-disabled types.
func (s *Simulator) Disable(name string, t Type) bool {
	for _, tap := range s.taps {
		if tap.spec.Name == name {
			tap.enabled = false
			tap.handler(notice{typ: t})
			return true
		}
	}
	return false
}

// Tap reports whether the named tap is registered and enabled.
func (s *Simulator) Tap(name string) (registered, enabled bool) {
	for _, tap := range s.taps {
		if tap.spec.Name == name {
			return true, tap.enabled
		}
	}
	return false, false
}

// TapOrder lists the registered tap names in delivery order.
func (s *Simulator) TapOrder() []string {
	names := make([]string, 0, len(s.taps))
	for _, tap := range s.taps {
		names = append(names, tap.spec.Name)
	}
	return names
}

// Posted returns a copy of every event posted so far, in order.
func (s *Simulator) Posted() []*SimEvent {
	return append([]*SimEvent(nil), s.posted...)
}

// TakePosted returns and clears the posted log.
func (s *Simulator) TakePosted() []*SimEvent {
	out := s.posted
	s.posted = nil
	return out
}

// Outstanding counts simulator-owned references not yet released.
func (s *Simulator) Outstanding() int { return s.outstanding }
