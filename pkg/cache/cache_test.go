package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Duration
}

func (f *fakeClock) Now() time.Duration { return f.now }

func newTestCache(clock *fakeClock) *Cache[int] {
	return New[int](Options{
		Lifetime:      300 * time.Second,
		CheckInterval: 60 * time.Second,
		Now:           clock.Now,
	})
}

func TestGetCreateThenLookupReturnsSamePointer(t *testing.T) {
	c := newTestCache(&fakeClock{})

	v, res := c.Get(42, true)
	require.NotNil(t, v)
	assert.Equal(t, Created, res)
	*v = 7

	again, res := c.Get(42, false)
	require.Same(t, v, again)
	assert.Equal(t, Found, res)
	assert.Equal(t, 7, *again)
}

func TestGetWithoutCreateReportsAbsent(t *testing.T) {
	c := newTestCache(&fakeClock{})

	v, res := c.Get(1, false)
	assert.Nil(t, v)
	assert.Equal(t, Absent, res)
	assert.Equal(t, 0, c.Cap())
}

func TestCapacityDoublesAndPointersSurviveGrowth(t *testing.T) {
	c := newTestCache(&fakeClock{})

	first, _ := c.Get(1, true)
	*first = 100
	c.Get(2, true)
	assert.Equal(t, 2, c.Cap())

	c.Get(3, true)
	assert.Equal(t, 4, c.Cap())
	c.Get(4, true)
	c.Get(5, true)
	assert.Equal(t, 8, c.Cap())

	got, res := c.Get(1, false)
	assert.Equal(t, Found, res)
	assert.Same(t, first, got)
	assert.Equal(t, 100, *got)
	assert.Equal(t, 5, c.Len())
}

func TestLookupFindsEntriesBehindHotIndex(t *testing.T) {
	c := newTestCache(&fakeClock{})

	c.Get(1, true)
	c.Get(2, true)
	c.Get(3, true) // capacity 4, one slot still new, hot index on 3

	_, res := c.Get(1, false)
	assert.Equal(t, Found, res)
	_, res = c.Get(2, false)
	assert.Equal(t, Found, res)
}

func TestSweepMarksIdleEntriesExpired(t *testing.T) {
	clock := &fakeClock{}
	c := newTestCache(clock)

	v, _ := c.Get(9, true)
	*v = 5

	clock.now = 301 * time.Second
	c.Sweep(false)
	assert.Equal(t, 0, c.Len())

	restored, res := c.Get(9, true)
	assert.Equal(t, ExpiredRestored, res)
	assert.Equal(t, 5, *restored, "restored entries keep their data")
	assert.Equal(t, 1, c.Len())
}

func TestSweepHonoursCheckInterval(t *testing.T) {
	clock := &fakeClock{}
	c := newTestCache(clock)

	c.Get(1, true)
	clock.now = 290 * time.Second
	c.Get(2, true)

	clock.now = 320 * time.Second
	c.Sweep(false)

	_, res := c.Get(1, false)
	assert.Equal(t, Found, res, "sweep ran too recently to expire anything")
}

func TestForcedSweepIgnoresInterval(t *testing.T) {
	clock := &fakeClock{}
	c := newTestCache(clock)

	c.Get(1, true)
	clock.now = 301 * time.Second
	c.Sweep(true)
	clock.now = 302 * time.Second
	c.Sweep(false)

	assert.Equal(t, 0, c.Len())
}

func TestExpiredSlotIsReusedBeforeGrowing(t *testing.T) {
	clock := &fakeClock{}
	c := newTestCache(clock)

	old, _ := c.Get(1, true)
	*old = 11
	c.Get(2, true)
	clock.now = 200 * time.Second
	c.Get(2, false)

	clock.now = 400 * time.Second
	c.Sweep(true)

	fresh, res := c.Get(3, true)
	assert.Equal(t, ExpiredReused, res)
	assert.True(t, res.Fresh())
	assert.Equal(t, 0, *fresh, "reused slots start zeroed")
	assert.Equal(t, 2, c.Cap())

	_, res = c.Get(1, false)
	assert.Equal(t, Absent, res)
}

func TestNewSlotPreferredOverExpired(t *testing.T) {
	clock := &fakeClock{}
	c := newTestCache(clock)

	c.Get(1, true)
	c.Get(2, true)
	c.Get(3, true) // grows to 4
	clock.now = 400 * time.Second
	c.Get(3, false)
	c.Sweep(true) // 1 and 2 expire, 3 stays live

	_, res := c.Get(4, true)
	assert.Equal(t, Created, res)

	_, res = c.Get(1, false)
	assert.Equal(t, ExpiredRestored, res)
}

func TestRangeSkipsExpiredUnlessAsked(t *testing.T) {
	clock := &fakeClock{}
	c := newTestCache(clock)

	c.Get(1, true)
	clock.now = 100 * time.Second
	c.Get(2, true)
	clock.now = 350 * time.Second
	c.Sweep(true)

	var live, all []uint64
	c.Range(false, func(id uint64, _ *int) bool {
		live = append(live, id)
		return true
	})
	c.Range(true, func(id uint64, _ *int) bool {
		all = append(all, id)
		return true
	})

	assert.Equal(t, []uint64{2}, live)
	assert.ElementsMatch(t, []uint64{1, 2}, all)
}

func TestClearReleasesEverything(t *testing.T) {
	c := newTestCache(&fakeClock{})
	c.Get(1, true)
	c.Get(2, true)

	c.Clear()

	assert.Equal(t, 0, c.Cap())
	_, res := c.Get(1, false)
	assert.Equal(t, Absent, res)
	_, res = c.Get(1, true)
	assert.Equal(t, Created, res)
}
