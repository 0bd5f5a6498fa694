package animation

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type root struct{ name string }

type fakeTimeline struct {
	mu       sync.Mutex
	duration float64
	seeks    []float64
	killed   bool
}

func (f *fakeTimeline) Duration() float64 { return f.duration }

func (f *fakeTimeline) Seek(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, t)
}

func (f *fakeTimeline) Kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = true
}

func (f *fakeTimeline) lastSeek() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seeks[len(f.seeks)-1]
}

type fakeEngine struct {
	mu     sync.Mutex
	tl     *fakeTimeline
	builds int
	roots  []*root
	err    error
}

func (e *fakeEngine) Build(r *root) (Timeline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builds++
	e.roots = append(e.roots, r)
	if e.err != nil {
		return nil, e.err
	}
	return e.tl, nil
}

func (e *fakeEngine) buildCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.builds
}

func immediate(e *fakeEngine) Loader[*root] {
	return func(ctx context.Context) (Engine[*root], error) { return e, nil }
}

func TestBindingBuildsOnceAndSeeksMountTime(t *testing.T) {
	tl := &fakeTimeline{duration: 5000}
	eng := &fakeEngine{tl: tl}
	r := &root{name: "stage"}

	b := Mount(context.Background(), r, immediate(eng), 1200)
	require.NoError(t, b.Ready(context.Background()))

	assert.Equal(t, StateReady, b.State())
	assert.Equal(t, 1200.0, tl.lastSeek())

	for _, ms := range []float64{0, 3000, 400, 4999} {
		b.Seek(ms)
		assert.Equal(t, ms, tl.lastSeek())
	}
	assert.Equal(t, 1, eng.buildCount(), "frame changes must not rebuild")
	assert.Same(t, r, eng.roots[0])
}

func TestBindingClampsPastTheEnd(t *testing.T) {
	tl := &fakeTimeline{duration: 1000}
	b := Mount(context.Background(), &root{}, immediate(&fakeEngine{tl: tl}), 0)
	require.NoError(t, b.Ready(context.Background()))

	b.Seek(2500)
	assert.Equal(t, 1000.0, tl.lastSeek())
	b.Seek(-3)
	assert.Equal(t, 0.0, tl.lastSeek())
}

func TestBindingSeekWhileLoadingAppliesLatest(t *testing.T) {
	release := make(chan struct{})
	tl := &fakeTimeline{duration: 10000}
	eng := &fakeEngine{tl: tl}
	load := func(ctx context.Context) (Engine[*root], error) {
		<-release
		return eng, nil
	}

	b := Mount(context.Background(), &root{}, load, 100)
	assert.Equal(t, StateLoading, b.State())
	b.Seek(2000)
	close(release)

	require.NoError(t, b.Ready(context.Background()))
	assert.Equal(t, []float64{2000}, tl.seeks)
}

func TestBindingUnmountDiscardsLateLoad(t *testing.T) {
	release := make(chan struct{})
	returned := make(chan struct{})
	eng := &fakeEngine{tl: &fakeTimeline{duration: 10}}
	load := func(ctx context.Context) (Engine[*root], error) {
		defer close(returned)
		<-release
		return eng, nil
	}

	b := Mount(context.Background(), &root{}, load, 0)
	b.Unmount()
	assert.Equal(t, StateReleased, b.State())
	assert.ErrorIs(t, b.Ready(context.Background()), ErrReleased)

	close(release)
	<-returned
	// Give the resolver a moment to observe the released binding.
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, eng.buildCount())
	assert.Equal(t, StateReleased, b.State())
	b.Seek(5)
	assert.Empty(t, eng.tl.seeks)
}

func TestBindingUnmountCancelsLoader(t *testing.T) {
	cancelled := make(chan struct{})
	load := func(ctx context.Context) (Engine[*root], error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}
	b := Mount(context.Background(), &root{}, load, 0)
	b.Unmount()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("loader context was not cancelled")
	}
}

func TestBindingUnmountKillsTimeline(t *testing.T) {
	tl := &fakeTimeline{duration: 10}
	b := Mount(context.Background(), &root{}, immediate(&fakeEngine{tl: tl}), 0)
	require.NoError(t, b.Ready(context.Background()))

	b.Unmount()
	b.Unmount()
	assert.True(t, tl.killed)
	assert.Equal(t, StateReleased, b.State())
}

func TestBindingLoadFailure(t *testing.T) {
	boom := errors.New("module not found")
	load := func(ctx context.Context) (Engine[*root], error) { return nil, boom }

	b := Mount(context.Background(), &root{}, load, 0)
	assert.ErrorIs(t, b.Ready(context.Background()), boom)
	assert.Equal(t, StateFailed, b.State())
}

func TestBindingBuildFailure(t *testing.T) {
	boom := errors.New("no targets")
	b := Mount(context.Background(), &root{}, immediate(&fakeEngine{err: boom}), 0)
	assert.ErrorIs(t, b.Ready(context.Background()), boom)
}

func TestBindingReadyHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	load := func(ctx context.Context) (Engine[*root], error) {
		<-block
		return nil, errors.New("late")
	}
	b := Mount(context.Background(), &root{}, load, 0)
	defer b.Unmount()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Ready(ctx), context.DeadlineExceeded)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(50, 0))
	assert.Equal(t, 0.0, Clamp(50, math.NaN()))
	assert.Equal(t, 0.0, Clamp(math.NaN(), 10))
	assert.Equal(t, 10.0, Clamp(50, 10))
	assert.Equal(t, 4.0, Clamp(4, 10))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unmounted", StateUnmounted.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "released", StateReleased.String())
}
