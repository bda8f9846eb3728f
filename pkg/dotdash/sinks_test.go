package dotdash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	frames  []uint64
	forgets []uint64
}

func (s *recordingSink) HandleFrame(id uint64, _ []Touch) { s.frames = append(s.frames, id) }
func (s *recordingSink) Forget(id uint64)                 { s.forgets = append(s.forgets, id) }

func TestLiveSinkForwardsUntilStopped(t *testing.T) {
	rec := &recordingSink{}
	r := &sinkRegistry{sinks: make(map[uintptr]*liveSink)}
	token, live := r.register(rec)
	require.Same(t, live, r.lookup(token))

	live.added()
	live.added()
	live.frame(1, nil)
	live.removed(2)
	assert.Equal(t, []uint64{1}, rec.frames)
	assert.Equal(t, []uint64{2}, rec.forgets)
	assert.EqualValues(t, 1, live.devices.Load())

	live.stopped.Store(true)
	live.frame(1, nil)
	live.removed(1)
	assert.Len(t, rec.frames, 1, "frames after stop are dropped")
	assert.Len(t, rec.forgets, 1)
	assert.Zero(t, live.devices.Load())
}

func TestReleasedTokenLooksUpNil(t *testing.T) {
	r := &sinkRegistry{sinks: make(map[uintptr]*liveSink)}
	first, _ := r.register(&recordingSink{})
	second, _ := r.register(&recordingSink{})
	assert.NotEqual(t, first, second)

	r.release(first)
	assert.Nil(t, r.lookup(first))
	assert.NotNil(t, r.lookup(second))
	r.release(first)
}
