// Package animation drives real-time animation engines to explicit frame
// times.
//
// A Binding ties one lazily loaded engine to one scene root. The engine is
// resolved asynchronously exactly once per mount; after that every frame
// change is a synchronous seek on the already built timeline.
package animation

import (
	"context"
	"errors"
	"math"
	"sync"
)

// Timeline is an engine's animated state.
type Timeline interface {
	// Duration is the authored length in the engine's time unit.
	Duration() float64
	// Seek forces the animated state to t.
	Seek(t float64)
	// Kill pauses the timeline and releases engine resources.
	Kill()
}

// Engine builds a timeline against a scene root.
type Engine[R any] interface {
	Build(root R) (Timeline, error)
}

// Loader resolves an engine. It is the only suspension point of a mount.
type Loader[R any] func(ctx context.Context) (Engine[R], error)

// State is the lifecycle position of a Binding.
type State int

const (
	StateUnmounted State = iota
	StateLoading
	StateReady
	StateFailed
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateReleased:
		return "released"
	default:
		return "unmounted"
	}
}

// ErrReleased is returned when waiting on a binding that was unmounted.
var ErrReleased = errors.New("animation binding released")

// Binding owns one timeline for the lifetime of one scene-root mount.
type Binding[R any] struct {
	mu       sync.Mutex
	state    State
	alive    bool
	root     R
	timeline Timeline
	elapsed  float64
	err      error

	settled chan struct{}
	cancel  context.CancelFunc
}

// Mount starts loading the engine for root and returns immediately in the
// Loading state. elapsed is the time the timeline is seeked to once built.
func Mount[R any](ctx context.Context, root R, load Loader[R], elapsed float64) *Binding[R] {
	loadCtx, cancel := context.WithCancel(ctx)
	b := &Binding[R]{
		state:   StateLoading,
		alive:   true,
		root:    root,
		elapsed: elapsed,
		settled: make(chan struct{}),
		cancel:  cancel,
	}
	go b.resolve(loadCtx, load)
	return b
}

func (b *Binding[R]) resolve(ctx context.Context, load Loader[R]) {
	engine, err := load(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		// Unmounted while loading; nothing of this result may land.
		return
	}
	defer close(b.settled)

	if err == nil && engine == nil {
		err = errors.New("animation loader returned no engine")
	}
	if err != nil {
		b.state = StateFailed
		b.err = err
		return
	}

	timeline, err := engine.Build(b.root)
	if err != nil {
		b.state = StateFailed
		b.err = err
		return
	}
	b.timeline = timeline
	b.state = StateReady
	seek(timeline, b.elapsed)
}

// Seek moves the timeline to elapsed. While loading, the value is kept and
// applied as soon as the timeline is built.
func (b *Binding[R]) Seek(elapsed float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	b.elapsed = elapsed
	if b.state == StateReady {
		seek(b.timeline, elapsed)
	}
}

// Ready blocks until the timeline is built, loading failed, or ctx ends.
func (b *Binding[R]) Ready(ctx context.Context) error {
	b.mu.Lock()
	if !b.alive {
		b.mu.Unlock()
		return ErrReleased
	}
	settled := b.settled
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-settled:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return ErrReleased
	}
	return b.err
}

// State reports the current lifecycle state.
func (b *Binding[R]) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Unmount kills the timeline and drops it. An in-flight load is cancelled
// and its result discarded. Safe to call more than once.
func (b *Binding[R]) Unmount() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	b.alive = false
	b.cancel()
	if b.timeline != nil {
		b.timeline.Kill()
		b.timeline = nil
	}
	if b.state == StateLoading {
		close(b.settled)
	}
	b.state = StateReleased
}

// Clamp bounds t to [0, duration]. Unknown or non-positive durations clamp to
// zero so frames past the end hold the final state.
func Clamp(t, duration float64) float64 {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return 0
	}
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if t > duration {
		return duration
	}
	return t
}

func seek(tl Timeline, elapsed float64) {
	tl.Seek(Clamp(elapsed, tl.Duration()))
}
