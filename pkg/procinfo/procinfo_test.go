package procinfo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	calls map[int32]int
	apps  map[int32]Info
}

func (f *fakeLookup) lookup(pid int32) (Info, error) {
	f.calls[pid]++
	info, ok := f.apps[pid]
	if !ok {
		return Info{}, ErrNoProcess
	}
	return info, nil
}

func newFake() *fakeLookup {
	return &fakeLookup{
		calls: map[int32]int{},
		apps: map[int32]Info{
			100: {BundleID: "com.example.Editor", Name: "Editor"},
			200: {Name: "daemon"},
		},
	}
}

func TestBundleIDCachesAnswers(t *testing.T) {
	f := newFake()
	r := New(Options{Lookup: f.lookup})

	id, ok := r.BundleID(100)
	require.True(t, ok)
	assert.Equal(t, "com.example.Editor", id)
	id, ok = r.BundleID(100)
	require.True(t, ok)
	assert.Equal(t, "com.example.Editor", id)
	assert.Equal(t, 1, f.calls[100])

	_, ok = r.BundleID(200)
	assert.False(t, ok, "processes without a bundle have no id")

	_, ok = r.BundleID(300)
	assert.False(t, ok)
	_, err := r.Info(300)
	assert.True(t, errors.Is(err, ErrNoProcess))
	assert.Equal(t, 1, f.calls[300], "negative answers are cached too")
	assert.Equal(t, 3, r.Len())
}

func TestInfoRejectsNonPositivePID(t *testing.T) {
	f := newFake()
	r := New(Options{Lookup: f.lookup})
	_, err := r.Info(0)
	assert.ErrorIs(t, err, ErrNoProcess)
	assert.Empty(t, f.calls)
}

func TestEntriesExpire(t *testing.T) {
	f := newFake()
	r := New(Options{Lookup: f.lookup, TTL: 20 * time.Millisecond})

	info, err := r.Info(100)
	require.NoError(t, err)
	assert.EqualValues(t, 100, info.PID)

	time.Sleep(60 * time.Millisecond)
	_, err = r.Info(100)
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls[100])
}

func TestForget(t *testing.T) {
	f := newFake()
	r := New(Options{Lookup: f.lookup})
	r.BundleID(100)
	r.Forget()
	assert.Zero(t, r.Len())
	r.BundleID(100)
	assert.Equal(t, 2, f.calls[100])
}

func TestSizeBoundsCache(t *testing.T) {
	f := newFake()
	r := New(Options{Lookup: f.lookup, Size: 2})
	for pid := int32(1); pid <= 5; pid++ {
		r.Info(pid)
	}
	assert.Equal(t, 2, r.Len())
}
