// Package cache stores per-device state in a small open-addressed table whose
// entries expire after a period of inactivity. Expired slots keep their data
// until they are reused, so a device that comes back before its slot is taken
// resumes where it left off.
package cache

import (
	"time"
)

const (
	// DefaultLifetime is how long an entry may stay untouched before a sweep
	// marks it expired.
	DefaultLifetime = 300 * time.Second
	// DefaultCheckInterval bounds how often a non-forced sweep does any work.
	DefaultCheckInterval = 60 * time.Second

	initialCapacity = 2
)

// Result reports how Get obtained the returned entry.
type Result uint8

const (
	// Absent means no entry exists and creation was not requested.
	Absent Result = iota
	// Found is a live entry for the requested id.
	Found
	// Created is a fresh entry placed in a never-used slot.
	Created
	// ExpiredReused is a fresh entry that took over another id's expired slot.
	ExpiredReused
	// ExpiredRestored is the requested id's own expired entry, made live again
	// with its data intact.
	ExpiredRestored
)

func (r Result) String() string {
	switch r {
	case Absent:
		return "absent"
	case Found:
		return "found"
	case Created:
		return "created"
	case ExpiredReused:
		return "expired_reused"
	case ExpiredRestored:
		return "expired_restored"
	default:
		return "unknown"
	}
}

// Fresh reports whether the entry holds zeroed data.
func (r Result) Fresh() bool {
	return r == Created || r == ExpiredReused
}

type slotState uint8

const (
	slotNew slotState = iota
	slotLive
	slotExpired
)

type slot[T any] struct {
	id       uint64
	state    slotState
	accessed time.Duration
	data     T
}

// Options configures a cache.
type Options struct {
	// Lifetime of an untouched entry. Zero selects DefaultLifetime and a
	// negative value disables expiry.
	Lifetime time.Duration
	// CheckInterval is the minimum spacing of non-forced sweeps.
	CheckInterval time.Duration
	// Now returns a monotonic timestamp. Defaults to time since construction.
	Now func() time.Duration
}

// Cache maps 64-bit identifiers to values of T. It is not safe for concurrent
// use; callers serialize access (the engine only touches it from its loop).
type Cache[T any] struct {
	slots         []*slot[T]
	hot           int
	lifetime      time.Duration
	checkInterval time.Duration
	checkedAt     time.Duration
	now           func() time.Duration
}

// New returns an empty cache.
func New[T any](opts Options) *Cache[T] {
	lifetime := opts.Lifetime
	switch {
	case lifetime == 0:
		lifetime = DefaultLifetime
	case lifetime < 0:
		lifetime = 0
	}
	interval := opts.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	now := opts.Now
	if now == nil {
		start := time.Now()
		now = func() time.Duration { return time.Since(start) }
	}
	return &Cache[T]{
		lifetime:      lifetime,
		checkInterval: interval,
		checkedAt:     now(),
		now:           now,
	}
}

// Get returns the entry for id. With create set, a missing id is given a new
// entry and the result tells where its slot came from. The returned pointer
// stays valid until the slot is reused for another id or the cache is cleared.
func (c *Cache[T]) Get(id uint64, create bool) (*T, Result) {
	c.Sweep(false)
	now := c.now()

	firstNew, firstExpired := -1, -1
	n := len(c.slots)
	for i := 0; i < n; i++ {
		idx := (c.hot + i) % n
		s := c.slots[idx]
		switch s.state {
		case slotNew:
			if firstNew < 0 {
				firstNew = idx
			}
		case slotLive:
			if s.id == id {
				s.accessed = now
				c.hot = idx
				return &s.data, Found
			}
		case slotExpired:
			if s.id == id {
				s.state = slotLive
				s.accessed = now
				c.hot = idx
				return &s.data, ExpiredRestored
			}
			if firstExpired < 0 {
				firstExpired = idx
			}
		}
	}

	if !create {
		return nil, Absent
	}
	switch {
	case firstNew >= 0:
		return c.claim(firstNew, id, now), Created
	case firstExpired >= 0:
		return c.claim(firstExpired, id, now), ExpiredReused
	default:
		return c.claim(c.grow(), id, now), Created
	}
}

func (c *Cache[T]) claim(idx int, id uint64, now time.Duration) *T {
	s := c.slots[idx]
	var zero T
	s.id = id
	s.state = slotLive
	s.accessed = now
	s.data = zero
	c.hot = idx
	return &s.data
}

// grow doubles the slot table and returns the index of the first new slot.
func (c *Cache[T]) grow() int {
	old := len(c.slots)
	size := old * 2
	if size == 0 {
		size = initialCapacity
	}
	for i := old; i < size; i++ {
		c.slots = append(c.slots, &slot[T]{})
	}
	return old
}

// Sweep marks entries idle for longer than the lifetime as expired. Unless
// force is set it does nothing if the previous sweep ran within the check
// interval.
func (c *Cache[T]) Sweep(force bool) {
	now := c.now()
	if !force && now-c.checkedAt < c.checkInterval {
		return
	}
	c.checkedAt = now
	if c.lifetime == 0 {
		return
	}
	for _, s := range c.slots {
		if s.state == slotLive && now-s.accessed > c.lifetime {
			s.state = slotExpired
		}
	}
}

// Clear releases every slot.
func (c *Cache[T]) Clear() {
	c.slots = nil
	c.hot = 0
}

// Range calls fn for each live entry, and for expired entries too when
// includeExpired is set. Iteration stops when fn returns false. Range does not
// refresh access times.
func (c *Cache[T]) Range(includeExpired bool, fn func(id uint64, v *T) bool) {
	for _, s := range c.slots {
		switch s.state {
		case slotLive:
		case slotExpired:
			if !includeExpired {
				continue
			}
		default:
			continue
		}
		if !fn(s.id, &s.data) {
			return
		}
	}
}

// Len returns the number of live entries.
func (c *Cache[T]) Len() int {
	count := 0
	for _, s := range c.slots {
		if s.state == slotLive {
			count++
		}
	}
	return count
}

// Cap returns the number of allocated slots.
func (c *Cache[T]) Cap() int {
	return len(c.slots)
}
