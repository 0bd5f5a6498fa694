package composition

import (
	"fmt"
	"math"
	"sort"

	"github.com/ivlev/scene2video/internal/frametime"
)

const (
	// DefaultCueSec is used for cues with neither a duration nor narration.
	DefaultCueSec = 3.0
	// NarrationPadding is the pause kept after a cue's narration.
	NarrationPadding = 0.35
)

// TimedCue is a cue placed on the timeline.
type TimedCue struct {
	Cue      Cue
	Index    int
	Key      string
	StartSec float64
	EndSec   float64
}

// StartFrame anchors the cue to the frame grid.
func (tc TimedCue) StartFrame(fps int) int {
	start := tc.StartSec
	return frametime.CueStartFrame(&start, fps)
}

// LocalSeconds is the cue-relative time of frame.
func (tc TimedCue) LocalSeconds(frame, fps int) float64 {
	return frametime.ToElapsed(frame, fps, tc.StartFrame(fps), frametime.Seconds)
}

// Timeline places every cue of a script in time.
type Timeline struct {
	Cues        []TimedCue
	DurationSec float64
	// Warnings lists cues whose authored start time was unusable and was
	// replaced by sequential placement.
	Warnings []string
}

// NewTimeline lays cues out back to back. A cue with a valid startSec is
// pinned there; otherwise it starts where the previous one ended. A cue lasts
// for its authored duration or, if longer, its narration plus padding.
// narration maps cue keys to speech durations in seconds.
func NewTimeline(script *Script, narration map[string]float64) *Timeline {
	tl := &Timeline{}
	if script == nil {
		return tl
	}

	cursor := 0.0
	for i, cue := range script.Cues {
		key := cue.Key(i)
		start := cursor
		if cue.StartSec != nil {
			if s := *cue.StartSec; !math.IsNaN(s) && !math.IsInf(s, 0) && s >= 0 {
				start = s
			} else {
				tl.Warnings = append(tl.Warnings, fmt.Sprintf("cue %s: unusable startSec %v, placed at %.3fs", key, s, cursor))
			}
		}

		dur := cue.DurationSec
		if math.IsNaN(dur) || dur < 0 {
			dur = 0
		}
		if speech, ok := narration[key]; ok && speech+NarrationPadding > dur {
			dur = speech + NarrationPadding
		}
		if dur <= 0 {
			dur = DefaultCueSec
		}

		tl.Cues = append(tl.Cues, TimedCue{
			Cue:      cue,
			Index:    i,
			Key:      key,
			StartSec: start,
			EndSec:   start + dur,
		})
		cursor = start + dur
	}

	for _, tc := range tl.Cues {
		tl.DurationSec = math.Max(tl.DurationSec, tc.EndSec)
	}
	if d := script.DurationSec; d > tl.DurationSec && !math.IsInf(d, 0) {
		tl.DurationSec = d
	}
	return tl
}

// CueAt returns the cue showing at sec: the latest cue that has started, or
// the first cue before anything has started. Nil when there are no cues.
func (tl *Timeline) CueAt(sec float64) *TimedCue {
	if tl == nil || len(tl.Cues) == 0 {
		return nil
	}
	var best *TimedCue
	for i := range tl.Cues {
		tc := &tl.Cues[i]
		if tc.StartSec <= sec && (best == nil || tc.StartSec >= best.StartSec) {
			best = tc
		}
	}
	if best == nil {
		best = &tl.Cues[0]
	}
	return best
}

// CameraKeyframes flattens per-cue camera keyframes onto absolute time.
func (tl *Timeline) CameraKeyframes() []Keyframe {
	if tl == nil {
		return nil
	}
	var out []Keyframe
	for _, tc := range tl.Cues {
		for _, kf := range tc.Cue.Camera {
			kf.Time += tc.StartSec
			out = append(out, kf)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time < out[j].Time
	})
	return out
}
