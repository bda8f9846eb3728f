package runloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualFiresTimersInDeadlineOrder(t *testing.T) {
	m := NewManual(time.Second)
	var order []string
	var at []time.Duration
	record := func(name string) func() {
		return func() {
			order = append(order, name)
			at = append(at, m.Now())
		}
	}

	m.After(350*time.Millisecond, record("release"))
	m.After(20*time.Millisecond, record("second"))
	m.After(50*time.Millisecond, record("held"))
	assert.Equal(t, 3, m.Pending())

	m.Advance(40 * time.Millisecond)
	assert.Equal(t, []string{"second"}, order)
	assert.Equal(t, time.Second+40*time.Millisecond, m.Now())

	m.Advance(time.Second)
	assert.Equal(t, []string{"second", "held", "release"}, order)
	assert.Equal(t, []time.Duration{
		time.Second + 20*time.Millisecond,
		time.Second + 50*time.Millisecond,
		time.Second + 350*time.Millisecond,
	}, at)
	assert.Zero(t, m.Pending())
}

func TestManualStoppedTimerNeverFires(t *testing.T) {
	m := NewManual(0)
	fired := false
	timer := m.After(10*time.Millisecond, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	m.Advance(time.Second)
	assert.False(t, fired)
}

func TestManualTimerScheduledFromTimer(t *testing.T) {
	m := NewManual(0)
	var fired []time.Duration
	m.After(10*time.Millisecond, func() {
		fired = append(fired, m.Now())
		m.After(10*time.Millisecond, func() { fired = append(fired, m.Now()) })
	})
	m.Advance(100 * time.Millisecond)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, fired)
}

func TestManualPostAndSend(t *testing.T) {
	m := NewManual(0)
	var order []int
	m.Post(func() { order = append(order, 1) })
	m.Send(func() { order = append(order, 2) })
	assert.Equal(t, []int{1, 2}, order)
}

func TestPortableRunsPostedWork(t *testing.T) {
	l := NewPortable()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var n atomic.Int32
	l.Post(func() { n.Add(1) })
	l.Send(func() { n.Add(1) })
	assert.EqualValues(t, 2, n.Load())

	fired := make(chan struct{})
	l.After(5*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	stopped := l.After(time.Hour, func() { t.Error("stopped timer fired") })
	assert.True(t, stopped.Stop())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
