package dotdash

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Duration }

func (c *clock) Now() time.Duration { return c.now }

type edge struct {
	device uint64
	active bool
}

func newTestDetector(t *testing.T) (*Detector, *clock, *[]edge) {
	t.Helper()
	c := &clock{}
	d := New(Options{Now: c.Now})
	var edges []edge
	d.OnActivation(func(id uint64, active bool) {
		edges = append(edges, edge{device: id, active: active})
	})
	return d, c, &edges
}

func press(id uint32, x, y float64) Touch {
	return Touch{PathID: id, Phase: TouchDidDown, Location: Vec{X: x, Y: y}, Density: 1}
}

func tap(d *Detector, c *clock, device uint64, at time.Duration, touch Touch) {
	c.now = at
	d.HandleFrame(device, []Touch{touch})
	c.now = at + 30*time.Millisecond
	d.HandleFrame(device, nil)
}

func TestDoubleTapAndHoldActivates(t *testing.T) {
	d, c, edges := newTestDetector(t)

	tap(d, c, 1, 0, press(1, 0.5, 0.5))
	assert.Empty(t, *edges)

	c.now = 100 * time.Millisecond
	d.HandleFrame(1, []Touch{press(2, 0.52, 0.5)})
	require.Equal(t, []edge{{device: 1, active: true}}, *edges)
	assert.True(t, d.IsActiveWithin(1, 750*time.Millisecond))

	moved := press(2, 0.6, 0.55)
	moved.Phase = TouchMoved
	c.now = 400 * time.Millisecond
	d.HandleFrame(1, []Touch{moved})
	assert.Len(t, *edges, 1)

	c.now = 900 * time.Millisecond
	assert.False(t, d.IsActiveWithin(1, 750*time.Millisecond), "the drag started too long ago")

	d.HandleFrame(1, nil)
	assert.Equal(t, []edge{{1, true}, {1, false}}, *edges)
	assert.False(t, d.IsActiveWithin(1, time.Hour))
}

func TestThirdTapWrapsToSingle(t *testing.T) {
	d, c, edges := newTestDetector(t)

	tap(d, c, 1, 0, press(1, 0.5, 0.5))
	tap(d, c, 1, 100*time.Millisecond, press(2, 0.5, 0.5))
	require.Equal(t, []edge{{1, true}, {1, false}}, *edges)

	c.now = 200 * time.Millisecond
	d.HandleFrame(1, []Touch{press(3, 0.5, 0.5)})
	assert.Len(t, *edges, 2)
	assert.False(t, d.IsActiveWithin(1, time.Hour))
}

func TestSlowOrDistantSecondTapRestarts(t *testing.T) {
	d, c, edges := newTestDetector(t)

	tap(d, c, 1, 0, press(1, 0.5, 0.5))
	tap(d, c, 1, 400*time.Millisecond, press(2, 0.5, 0.5))
	assert.Empty(t, *edges)

	c.now = 500 * time.Millisecond
	d.HandleFrame(1, []Touch{press(3, 0.85, 0.85)})
	assert.Empty(t, *edges, "second tap landed too far from the first")
}

func TestEdgeAndFastFingersNeverCount(t *testing.T) {
	d, c, edges := newTestDetector(t)

	tap(d, c, 1, 0, press(1, 0.02, 0.5))
	tap(d, c, 1, 100*time.Millisecond, press(2, 0.5, 0.95))
	assert.Empty(t, *edges)

	fast := Touch{PathID: 3, Phase: TouchDidDown, Location: Vec{X: 0.5, Y: 0.5}, Velocity: Vec{X: 3}, Density: 1}
	tap(d, c, 1, 200*time.Millisecond, fast)
	tap(d, c, 1, 300*time.Millisecond, fast)
	assert.Empty(t, *edges)
}

func TestLightTouchBecomesFirmOnceDense(t *testing.T) {
	d, c, edges := newTestDetector(t)

	tap(d, c, 1, 0, press(1, 0.5, 0.5))

	light := press(2, 0.5, 0.5)
	light.Density = 0.1
	c.now = 100 * time.Millisecond
	d.HandleFrame(1, []Touch{light})
	assert.Empty(t, *edges)

	light.Density = 0.8
	c.now = 120 * time.Millisecond
	d.HandleFrame(1, []Touch{light})
	assert.Equal(t, []edge{{1, true}}, *edges)
}

func TestSecondFingerResetsCount(t *testing.T) {
	d, c, edges := newTestDetector(t)

	tap(d, c, 1, 0, press(1, 0.5, 0.5))
	c.now = 100 * time.Millisecond
	d.HandleFrame(1, []Touch{press(2, 0.5, 0.5), press(3, 0.3, 0.3)})
	d.HandleFrame(1, nil)
	tap(d, c, 1, 150*time.Millisecond, press(4, 0.5, 0.5))
	assert.Empty(t, *edges)
}

func TestDevicesAreIndependent(t *testing.T) {
	d, c, edges := newTestDetector(t)

	tap(d, c, 1, 0, press(1, 0.5, 0.5))
	c.now = 100 * time.Millisecond
	d.HandleFrame(2, []Touch{press(1, 0.5, 0.5)})
	assert.Empty(t, *edges)
	assert.False(t, d.IsActiveWithin(2, time.Hour))
}

func TestCallbackMayQueryDetector(t *testing.T) {
	c := &clock{}
	var handoffs int
	d := New(Options{Now: c.Now, Handoff: func(fn func()) {
		handoffs++
		fn()
	}})
	var queried []bool
	d.OnActivation(func(id uint64, _ bool) {
		queried = append(queried, d.IsActiveWithin(id, time.Second))
	})

	tap(d, c, 9, 0, press(1, 0.5, 0.5))
	c.now = 100 * time.Millisecond
	d.HandleFrame(9, []Touch{press(2, 0.5, 0.5)})
	d.HandleFrame(9, nil)

	assert.Equal(t, 2, handoffs)
	assert.Equal(t, []bool{true, false}, queried)
}

func TestForgetAndReset(t *testing.T) {
	d, c, _ := newTestDetector(t)

	tap(d, c, 1, 0, press(1, 0.5, 0.5))
	c.now = 100 * time.Millisecond
	d.HandleFrame(1, []Touch{press(2, 0.5, 0.5)})
	require.True(t, d.IsActiveWithin(1, time.Second))

	d.Forget(1)
	assert.False(t, d.IsActiveWithin(1, time.Second))
	d.Forget(1)
	d.Forget(42)

	d.HandleFrame(2, []Touch{press(1, 0.5, 0.5)})
	d.Reset()
	assert.False(t, d.IsActiveWithin(2, time.Second))
}

func TestForgetWhileDraggingReportsDeactivation(t *testing.T) {
	c := &clock{}
	var handoffs int
	d := New(Options{Now: c.Now, Handoff: func(fn func()) {
		handoffs++
		fn()
	}})
	edges := &[]edge{}
	d.OnActivation(func(id uint64, active bool) {
		*edges = append(*edges, edge{device: id, active: active})
	})

	tap(d, c, 3, 0, press(1, 0.5, 0.5))
	c.now = 100 * time.Millisecond
	d.HandleFrame(3, []Touch{press(2, 0.5, 0.5)})
	require.Equal(t, []edge{{device: 3, active: true}}, *edges)

	d.Forget(3)
	assert.Equal(t, []edge{{device: 3, active: true}, {device: 3, active: false}}, *edges)
	assert.Equal(t, 2, handoffs)
	assert.False(t, d.IsActiveWithin(3, time.Second))

	// A stray frame from the departed device starts from scratch.
	c.now = 150 * time.Millisecond
	d.HandleFrame(3, []Touch{press(2, 0.5, 0.5)})
	assert.Len(t, *edges, 2)
}

func TestForgetIdleDeviceIsSilent(t *testing.T) {
	d, c, edges := newTestDetector(t)

	tap(d, c, 4, 0, press(1, 0.5, 0.5))
	d.Forget(4)
	assert.Empty(t, *edges)

	c.now = 100 * time.Millisecond
	d.HandleFrame(4, []Touch{press(2, 0.5, 0.5)})
	assert.Empty(t, *edges, "the tap before the disconnect no longer counts")
}
