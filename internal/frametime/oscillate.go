package frametime

import "math"

// Phase is the state of a back-and-forth motion at one instant.
type Phase struct {
	// Direction is +1 on the first half-cycle and -1 on the second.
	Direction int
	// Progress is the linear position within the current half-cycle.
	Progress float64
	// Eased is Progress passed through the ease curve.
	Eased float64
}

// Oscillate derives the phase of a cyclic motion from elapsed seconds alone.
// A non-positive or non-finite cycle yields the resting phase.
func Oscillate(elapsedSec, cycleSec float64, ease EaseFunc) Phase {
	if ease == nil {
		ease = Identity
	}
	if !isFinite(cycleSec) || cycleSec <= 0 || !isFinite(elapsedSec) {
		return Phase{Direction: 1, Progress: 0, Eased: ease(0)}
	}
	phase := math.Mod(elapsedSec, cycleSec)
	if phase < 0 {
		phase += cycleSec
	}
	half := cycleSec / 2
	p := Phase{Direction: 1}
	if phase < half {
		p.Progress = phase / half
	} else {
		p.Direction = -1
		p.Progress = (phase - half) / half
	}
	p.Progress = clamp01(p.Progress)
	p.Eased = ease(p.Progress)
	return p
}

// Between maps the phase onto a value travelling from -> to and back.
func (p Phase) Between(from, to float64) float64 {
	if p.Direction < 0 {
		return Lerp(to, from, p.Eased)
	}
	return Lerp(from, to, p.Eased)
}
