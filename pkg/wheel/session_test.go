package wheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/scrollzoom/pkg/phase"
)

var (
	allStates = []State{Free, WillBegin, DidBegin}
	allTypes  = []Type{ToScroll, ToScrollMomentum, ToZoom}
	allPhases = []phase.Phase{phase.None, phase.MayBegin, phase.Began, phase.Changed, phase.Ended, phase.Cancelled}
)

func TestUpdateStaysWithinStatesAndNeverEmitsMayBeginForGestures(t *testing.T) {
	for _, st := range allStates {
		for _, ty := range allTypes {
			for _, proposedType := range allTypes {
				for _, p := range allPhases {
					s := Session{State: st, Type: ty}
					res := s.Update(proposedType, p, 0.01)

					assert.Contains(t, allStates, s.State)
					for _, ev := range res.Events {
						if ev.Type != ToScroll {
							assert.NotEqual(t, phase.MayBegin, ev.Phase, "%v %v <- %v %v", st, ty, proposedType, p)
						}
					}
					if proposedType != ToScroll && res.Action == Adapted {
						assert.NotEqual(t, phase.MayBegin, res.Phase)
					}
				}
			}
		}
	}
}

func TestMayBeginIsDroppedForNonScrollTypes(t *testing.T) {
	for _, ty := range []Type{ToScrollMomentum, ToZoom} {
		s := Session{}
		res := s.Update(ty, phase.MayBegin, 0)
		assert.Equal(t, Replaced, res.Action)
		assert.Empty(t, res.Events)
		assert.Equal(t, Session{}, s)
	}
}

func TestScrollTransitions(t *testing.T) {
	s := Session{}

	res := s.Update(ToScroll, phase.MayBegin, 0)
	assert.Equal(t, Unchanged, res.Action)
	assert.Equal(t, WillBegin, s.State)

	res = s.Update(ToScroll, phase.Changed, 0)
	assert.Equal(t, Adapted, res.Action)
	assert.Equal(t, phase.Began, res.Phase)
	assert.Equal(t, DidBegin, s.State)

	res = s.Update(ToScroll, phase.Began, 0)
	assert.Equal(t, Adapted, res.Action)
	assert.Equal(t, phase.Changed, res.Phase)

	res = s.Update(ToScroll, phase.Changed, 0)
	assert.Equal(t, Unchanged, res.Action)

	res = s.Update(ToScroll, phase.Ended, 0)
	assert.Equal(t, Unchanged, res.Action)
	assert.Equal(t, Free, s.State)
}

func TestWillBeginEndedBecomesCancelled(t *testing.T) {
	s := Session{}
	s.Update(ToScroll, phase.MayBegin, 0)
	res := s.Update(ToScroll, phase.Ended, 0)
	assert.Equal(t, Adapted, res.Action)
	assert.Equal(t, phase.Cancelled, res.Phase)
	assert.Equal(t, Free, s.State)
}

func TestFreeTerminalPhaseIsDropped(t *testing.T) {
	for _, p := range []phase.Phase{phase.Ended, phase.Cancelled} {
		for _, ty := range allTypes {
			s := Session{}
			res := s.Update(ty, p, 0)
			assert.Equal(t, Replaced, res.Action)
			assert.Empty(t, res.Events)
			assert.Equal(t, Free, s.State)
		}
	}
}

func TestMomentumAdaptsWithMomentumEncoding(t *testing.T) {
	s := Session{}
	res := s.Update(ToScrollMomentum, phase.Changed, 0)
	assert.Equal(t, Adapted, res.Action)
	assert.Equal(t, phase.Began, res.Phase)
	assert.True(t, res.ByMomentum)
}

func TestZoomOpensWithZeroBeganBeforeFirstMagnitude(t *testing.T) {
	s := Session{}
	res := s.Update(ToZoom, phase.Began, 0.0125)
	require.Equal(t, Replaced, res.Action)
	assert.Equal(t, []Synthetic{
		{Type: ToZoom, Phase: phase.Began},
		{Type: ToZoom, Phase: phase.Changed, Scale: 0.0125},
	}, res.Events)

	res = s.Update(ToZoom, phase.Changed, 0.0125)
	assert.Equal(t, []Synthetic{{Type: ToZoom, Phase: phase.Changed, Scale: 0.0125}}, res.Events)

	res = s.Update(ToZoom, phase.Ended, 0)
	assert.Equal(t, []Synthetic{{Type: ToZoom, Phase: phase.Ended}}, res.Events)
	assert.Equal(t, Free, s.State)
}

func TestZoomWithoutMagnitudeOpensWithSingleEvent(t *testing.T) {
	s := Session{}
	res := s.Update(ToZoom, phase.Began, 0)
	assert.Equal(t, []Synthetic{{Type: ToZoom, Phase: phase.Began}}, res.Events)
}

func TestNonContinuousScrollDiscardsActiveSession(t *testing.T) {
	s := Session{State: DidBegin, Type: ToZoom}
	res := s.Update(ToScroll, phase.None, 0)
	assert.Equal(t, Replaced, res.Action)
	assert.Equal(t, []Synthetic{{Type: ToZoom, Phase: phase.Ended}}, res.Events)
	assert.Equal(t, Free, s.State)

	s = Session{State: DidBegin, Type: ToScroll}
	res = s.Update(ToScroll, phase.None, 0)
	assert.Equal(t, Adapted, res.Action)
	assert.Equal(t, phase.Ended, res.Phase)

	s = Session{}
	res = s.Update(ToScroll, phase.None, 0)
	assert.Equal(t, Unchanged, res.Action)
	assert.Equal(t, Free, s.State)
}

func TestIncompatibleTypeEndsSessionWithoutMerging(t *testing.T) {
	s := Session{State: WillBegin, Type: ToScroll}
	res := s.Update(ToZoom, phase.Began, 0.5)
	assert.Equal(t, Adapted, res.Action)
	assert.Equal(t, phase.Cancelled, res.Phase)
	assert.Equal(t, Free, s.State)

	s = Session{State: DidBegin, Type: ToZoom}
	res = s.Update(ToScrollMomentum, phase.Began, 0)
	assert.Equal(t, Replaced, res.Action)
	assert.Equal(t, []Synthetic{{Type: ToZoom, Phase: phase.Ended}}, res.Events)
	assert.Equal(t, Free, s.State)
}

func TestDiscard(t *testing.T) {
	s := Session{}
	_, ok := s.Discard()
	assert.False(t, ok, "discarding a free session is a no-op")
	assert.Equal(t, Session{}, s)

	s = Session{State: WillBegin, Type: ToScroll}
	ev, ok := s.Discard()
	require.True(t, ok)
	assert.Equal(t, Synthetic{Type: ToScroll, Phase: phase.Cancelled}, ev)
	assert.True(t, s.Ended())

	s = Session{State: DidBegin, Type: ToZoom}
	ev, ok = s.Discard()
	require.True(t, ok)
	assert.Equal(t, Synthetic{Type: ToZoom, Phase: phase.Ended}, ev)
}

func TestAssign(t *testing.T) {
	s := Session{}
	s.Assign(ToScroll, phase.MayBegin)
	assert.Equal(t, Session{State: WillBegin, Type: ToScroll}, s)

	s.Assign(ToScroll, phase.Changed)
	assert.Equal(t, DidBegin, s.State)

	s.Assign(ToScrollMomentum, phase.Ended)
	assert.Equal(t, Free, s.State)

	s.Assign(ToScrollMomentum, phase.MayBegin)
	assert.Equal(t, Free, s.State)
}
