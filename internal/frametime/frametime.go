// Package frametime maps frame indices onto animation time.
//
// Every function here is pure: the same frame and fps always give the same
// time, so any worker can reproduce any frame regardless of render order.
package frametime

import "math"

// Unit is the number of engine time units per second.
type Unit float64

const (
	Seconds      Unit = 1
	Milliseconds Unit = 1000
)

// frameEpsilon absorbs float noise such as 0.1*30 = 3.0000000000000004.
const frameEpsilon = 1e-9

// ToElapsed returns the time of frame relative to startFrame, in unit.
// Frames before startFrame map to zero.
func ToElapsed(frame, fps, startFrame int, unit Unit) float64 {
	if fps <= 0 {
		return 0
	}
	rel := frame - startFrame
	if rel <= 0 {
		return 0
	}
	sec := float64(rel) / float64(fps)
	if unit == Seconds {
		return sec
	}
	return sec * float64(unit)
}

// SecondsAt is ToElapsed in seconds from frame zero.
func SecondsAt(frame, fps int) float64 {
	return ToElapsed(frame, fps, 0, Seconds)
}

// FrameAt returns the frame that is showing at sec.
func FrameAt(sec float64, fps int) int {
	if fps <= 0 || !isFinite(sec) || sec <= 0 {
		return 0
	}
	return int(math.Floor(sec*float64(fps) + frameEpsilon))
}

// CueStartFrame anchors a cue to the frame grid: round(start*fps), or 0 when
// the start is missing, non-finite or negative.
func CueStartFrame(startSec *float64, fps int) int {
	frame, _ := CueStartFrameChecked(startSec, fps)
	return frame
}

// CueStartFrameChecked is CueStartFrame that also reports whether the start
// time was usable. A false result means frame 0 is a fallback.
func CueStartFrameChecked(startSec *float64, fps int) (int, bool) {
	if startSec == nil || fps <= 0 {
		return 0, false
	}
	s := *startSec
	if !isFinite(s) || s < 0 {
		return 0, false
	}
	return int(math.Round(s * float64(fps))), true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
