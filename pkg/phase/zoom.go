package phase

import (
	"math"
	"time"
)

// Decay attenuates momentum-driven zoom over time.
type Decay struct {
	// Attenuation in [0, 1]. Zero keeps momentum at full strength, one drops
	// it entirely.
	Attenuation float64
	// Floor is the magnitude under which decayed momentum ends the gesture.
	Floor float64
}

// Multiplier returns k^(dt/k) with k = 1 - Attenuation, or 0 when k is 0.
func (d Decay) Multiplier(dt time.Duration) float64 {
	k := 1 - d.Attenuation
	if k == 0 {
		return 0
	}
	return math.Pow(k, dt.Seconds()/k)
}

// Sample is one scroll-wheel reading reduced to what zoom conversion needs.
type Sample struct {
	Phase      Phase
	ByMomentum bool
	// Delta is the signed point delta along the primary axis.
	Delta     float64
	Timestamp time.Duration
}

// Converter turns wheel samples into zoom magnitudes.
type Converter struct {
	Magnifier float64
	Decay     Decay
}

// Zoom returns the gesture phase and magnification for s. momentumStart is the
// per-device anchor for decay; a momentum begin resets it to the sample time.
func (c Converter) Zoom(s Sample, momentumStart *time.Duration) (Phase, float64) {
	switch s.Phase {
	case Ended, Cancelled:
		return s.Phase, 0

	case MayBegin, Began:
		scale := s.Delta * c.Magnifier
		if s.ByMomentum {
			*momentumStart = s.Timestamp
			if c.Decay.Attenuation == 1 {
				return Ended, 0
			}
		}
		return s.Phase, scale

	default:
		scale := s.Delta * c.Magnifier
		if s.ByMomentum {
			scale *= c.Decay.Multiplier(s.Timestamp - *momentumStart)
			if math.Abs(scale) < c.Decay.Floor {
				return Ended, 0
			}
		}
		return s.Phase, scale
	}
}

// Trivalent is a yes/no answer that may still be undecided.
type Trivalent uint8

const (
	No Trivalent = iota
	Yes
	Maybe
)

func (t Trivalent) String() string {
	switch t {
	case No:
		return "no"
	case Yes:
		return "yes"
	default:
		return "maybe"
	}
}

// Successor guesses whether another event of the same gesture will follow a
// sample. Maybe covers discrete wheel clicks and a bare end of a smooth
// scroll, which momentum may still follow unless attenuation discards it
// entirely. An end that still carries a delta is final.
func Successor(p Phase, byMomentum bool, delta, attenuation float64) Trivalent {
	switch {
	case p == None:
		return Maybe
	case p == Ended && !byMomentum && delta == 0:
		if attenuation == 1 {
			return No
		}
		return Maybe
	case p == Ended || p == Changed:
		return No
	default:
		return Yes
	}
}
