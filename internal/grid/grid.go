// Package grid derives the fixed frame grid of a render.
package grid

import (
	"math"

	"github.com/ivlev/scene2video/internal/composition"
)

const (
	DefaultFPS         = 30
	DefaultWidth       = 1280
	DefaultHeight      = 720
	DefaultDurationSec = 10.0

	frameEpsilon = 1e-9
)

// VideoGrid is the temporal and spatial resolution of one render.
type VideoGrid struct {
	FPS            int
	Width          int
	Height         int
	DurationFrames int
}

// Overrides are caller-supplied values; any positive, finite field wins over
// what the composition says.
type Overrides struct {
	FPS            int
	Width          int
	Height         int
	DurationFrames int
	DurationSec    float64
}

// Derive builds the grid for a composition. It never fails: missing or
// invalid values fall back to defaults.
func Derive(script *composition.Script, timeline *composition.Timeline, o Overrides) VideoGrid {
	g := VideoGrid{FPS: DefaultFPS, Width: DefaultWidth, Height: DefaultHeight}

	durationSec := 0.0
	if timeline != nil && valid(timeline.DurationSec) {
		durationSec = timeline.DurationSec
	}
	if script != nil {
		g.FPS = pick(g.FPS, script.FPS)
		g.Width = pick(g.Width, script.Width)
		g.Height = pick(g.Height, script.Height)
		if durationSec == 0 && valid(script.DurationSec) {
			durationSec = script.DurationSec
		}
		if durationSec == 0 {
			durationSec = lastCueEnd(script)
		}
	}
	if durationSec == 0 {
		durationSec = DefaultDurationSec
	}

	g.FPS = pick(g.FPS, o.FPS)
	g.Width = pick(g.Width, o.Width)
	g.Height = pick(g.Height, o.Height)
	if valid(o.DurationSec) {
		durationSec = o.DurationSec
	}

	g.DurationFrames = FramesFor(durationSec, g.FPS)
	if o.DurationFrames > 0 {
		g.DurationFrames = o.DurationFrames
	}
	return g
}

// FramesFor returns max(1, ceil(sec*fps)).
func FramesFor(sec float64, fps int) int {
	if !valid(sec) || fps <= 0 {
		return 1
	}
	n := int(math.Ceil(sec*float64(fps) - frameEpsilon))
	if n < 1 {
		return 1
	}
	return n
}

// DurationSec is the length of the grid in seconds.
func (g VideoGrid) DurationSec() float64 {
	if g.FPS <= 0 {
		return 0
	}
	return float64(g.DurationFrames) / float64(g.FPS)
}

// FrameRange is an inclusive range of frame indices.
type FrameRange struct {
	Start int
	End   int
}

// Len is the number of frames in the range; zero for an empty range.
func (r FrameRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Full is the whole grid.
func (g VideoGrid) Full() FrameRange {
	return FrameRange{Start: 0, End: g.DurationFrames - 1}
}

// Clamp restricts [start, end] to the grid. A negative end means the last
// frame.
func (g VideoGrid) Clamp(start, end int) FrameRange {
	last := g.DurationFrames - 1
	if end < 0 || end > last {
		end = last
	}
	if start < 0 {
		start = 0
	}
	return FrameRange{Start: start, End: end}
}

func lastCueEnd(script *composition.Script) float64 {
	if len(script.Cues) == 0 {
		return 0
	}
	return composition.NewTimeline(script, nil).DurationSec
}

func pick(current, candidate int) int {
	if candidate > 0 {
		return candidate
	}
	return current
}

func valid(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
