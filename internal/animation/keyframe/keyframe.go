// Package keyframe is a seekable camera engine driven by composition
// keyframes.
package keyframe

import (
	"context"
	"fmt"
	"sort"

	"github.com/ivlev/scene2video/internal/animation"
	"github.com/ivlev/scene2video/internal/composition"
	"github.com/ivlev/scene2video/internal/frametime"
)

// Camera is the viewport center and zoom at one instant.
type Camera struct {
	X    float64 // center x in viewport pixels
	Y    float64 // center y in viewport pixels
	Zoom float64 // 1.0 = full view
}

// Target receives camera state on every seek.
type Target interface {
	SetCamera(Camera)
}

// Engine builds camera timelines from keyframes with absolute times in
// seconds. Timelines run in milliseconds.
type Engine struct {
	Keyframes []composition.Keyframe
}

// Build returns a timeline that writes into target.
func (e *Engine) Build(target Target) (animation.Timeline, error) {
	if target == nil {
		return nil, fmt.Errorf("keyframe: nil target")
	}
	kfs := append([]composition.Keyframe(nil), e.Keyframes...)
	sort.SliceStable(kfs, func(i, j int) bool { return kfs[i].Time < kfs[j].Time })

	duration := 0.0
	if len(kfs) > 0 {
		duration = kfs[len(kfs)-1].Time * 1000
	}
	return &Timeline{keyframes: kfs, durationMs: duration, target: target}, nil
}

// Timeline is a built camera animation.
type Timeline struct {
	keyframes  []composition.Keyframe
	durationMs float64
	target     Target
}

func (t *Timeline) Duration() float64 { return t.durationMs }

// Seek applies the camera state at ms to the target.
func (t *Timeline) Seek(ms float64) {
	if t.target == nil {
		return
	}
	t.target.SetCamera(Interpolate(t.keyframes, ms/1000))
}

// Kill detaches the timeline from its target.
func (t *Timeline) Kill() {
	t.target = nil
}

// Static loads inline keyframes.
func Static(keyframes []composition.Keyframe) animation.Loader[Target] {
	return func(ctx context.Context) (animation.Engine[Target], error) {
		return &Engine{Keyframes: keyframes}, nil
	}
}

// FromFile loads keyframes from a camera track file when the mount starts.
func FromFile(path string) animation.Loader[Target] {
	return func(ctx context.Context) (animation.Engine[Target], error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kfs, err := composition.ReadCameraTrack(path)
		if err != nil {
			return nil, fmt.Errorf("load camera track: %w", err)
		}
		return &Engine{Keyframes: kfs}, nil
	}
}

// Interpolate returns the camera state at sec. Before the first keyframe it
// holds the first, after the last it holds the last. Each segment is eased
// with the curve named on its destination keyframe, easeInOutCubic when
// unset.
func Interpolate(keyframes []composition.Keyframe, sec float64) Camera {
	if len(keyframes) == 0 {
		return Camera{Zoom: 1}
	}
	first := keyframes[0]
	if sec <= first.Time {
		return cameraOf(first)
	}
	last := keyframes[len(keyframes)-1]
	if sec >= last.Time {
		return cameraOf(last)
	}

	var prev, next composition.Keyframe
	for i := 0; i < len(keyframes)-1; i++ {
		if sec >= keyframes[i].Time && sec < keyframes[i+1].Time {
			prev, next = keyframes[i], keyframes[i+1]
			break
		}
	}

	span := next.Time - prev.Time
	if span <= 0 {
		return cameraOf(next)
	}
	ease := frametime.EaseInOutCubic
	if next.Ease != "" {
		ease = frametime.EaseOrIdentity(next.Ease)
	}
	p := ease((sec - prev.Time) / span)

	a, b := cameraOf(prev), cameraOf(next)
	return Camera{
		X:    frametime.Lerp(a.X, b.X, p),
		Y:    frametime.Lerp(a.Y, b.Y, p),
		Zoom: frametime.Lerp(a.Zoom, b.Zoom, p),
	}
}

func cameraOf(kf composition.Keyframe) Camera {
	zoom := kf.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	return Camera{
		X:    float64(kf.Rect.X) + float64(kf.Rect.W)/2,
		Y:    float64(kf.Rect.Y) + float64(kf.Rect.H)/2,
		Zoom: zoom,
	}
}
