package runloop

import (
	"sort"
	"time"
)

// Manual is a deterministic Loop for tests and scenario replay. Nothing runs
// until Drain or Advance is called; time moves only through Advance.
type Manual struct {
	now     time.Duration
	pending []func()
	timers  []*manualTimer
	seq     int
}

type manualTimer struct {
	due  time.Duration
	seq  int
	fn   func()
	done bool
}

func (t *manualTimer) Stop() bool {
	if t.done {
		return false
	}
	t.done = true
	return true
}

// NewManual returns a loop whose clock starts at start.
func NewManual(start time.Duration) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Post(fn func()) { m.pending = append(m.pending, fn) }

// Send runs fn inline after draining earlier work, since the caller is the
// only goroutine driving a Manual loop.
func (m *Manual) Send(fn func()) {
	m.Drain()
	fn()
}

func (m *Manual) After(d time.Duration, fn func()) Timer {
	m.seq++
	t := &manualTimer{due: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (m *Manual) Now() time.Duration { return m.now }

// Drain runs posted work, including work posted while draining.
func (m *Manual) Drain() {
	for len(m.pending) > 0 {
		fn := m.pending[0]
		m.pending = m.pending[1:]
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in deadline order
// with the clock set to each deadline.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	m.Drain()
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.due
		next.done = true
		next.fn()
		m.Drain()
	}
	m.now = target
}

// Pending counts timers that have neither fired nor been stopped.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.timers {
		if !t.done {
			n++
		}
	}
	return n
}

func (m *Manual) nextDue(limit time.Duration) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due != m.timers[j].due {
			return m.timers[i].due < m.timers[j].due
		}
		return m.timers[i].seq < m.timers[j].seq
	})
	if len(m.timers) == 0 || m.timers[0].due > limit {
		return nil
	}
	return m.timers[0]
}
