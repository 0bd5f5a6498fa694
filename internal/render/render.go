// Package render fans the frames of a grid out over a pool of workers, each
// holding its own mounted scene, and writes one PNG per frame.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/scene2video/internal/fault"
	"github.com/ivlev/scene2video/internal/grid"
	"github.com/ivlev/scene2video/internal/system"
)

// DefaultPattern names frame files; the encoder reads the same pattern.
const DefaultPattern = "frame-%06d.png"

// Viewport is the surface a component is mounted into.
type Viewport struct {
	Width             int
	Height            int
	DeviceScaleFactor float64
}

// PixelSize is the captured image size: the viewport scaled by the device
// scale factor, rounded up to even sides so yuv420p can encode it.
func (v Viewport) PixelSize() (int, int) {
	dsf := v.DeviceScaleFactor
	if dsf <= 0 || math.IsNaN(dsf) || math.IsInf(dsf, 0) {
		dsf = 1
	}
	return even(math.Round(float64(v.Width) * dsf)), even(math.Round(float64(v.Height) * dsf))
}

func even(px float64) int {
	n := int(px)
	if n%2 != 0 {
		n++
	}
	return n
}

// Component is mounted once per worker.
type Component interface {
	Mount(ctx context.Context, vp Viewport) (Scene, error)
}

// Scene is one mounted instance of a component. A scene is used by a single
// worker; frames may be requested in any order.
type Scene interface {
	// SeekFrame brings every animated element to the state of frame.
	SeekFrame(ctx context.Context, frame int) error
	Capture(ctx context.Context) (image.Image, error)
	Close() error
}

// RenderedFrame is one written frame file.
type RenderedFrame struct {
	Index int
	Path  string
	Took  time.Duration
}

// Options configure RenderFrames.
type Options struct {
	Grid grid.VideoGrid
	// Range defaults to the whole grid when nil.
	Range             *grid.FrameRange
	Workers           int
	OutDir            string
	Pattern           string
	DeviceScaleFactor float64
	// FrameTimeout bounds seek plus capture of one frame; zero disables it.
	FrameTimeout time.Duration
	// OnFrame is called after each frame file is written. Calls never
	// overlap.
	OnFrame func(RenderedFrame)
	Logger  *zap.Logger
}

// FrameError reports the frame that stopped the render.
type FrameError struct {
	Index int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Index, e.Err)
}

func (e *FrameError) Unwrap() []error {
	return []error{fault.ErrCapture, e.Err}
}

// RenderFrames renders every frame of the range and returns the written
// frames sorted by index. The first failure cancels the remaining workers;
// files already written are left in place.
func RenderFrames(ctx context.Context, component Component, opts Options) ([]RenderedFrame, error) {
	if component == nil {
		return nil, fault.Wrap(fault.ErrConfiguration, "render", "nil component", nil)
	}
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}
	if opts.OutDir == "" {
		return nil, fault.Wrap(fault.ErrConfiguration, "render", "output directory not set", nil)
	}
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return nil, fault.Wrap(fault.ErrConfiguration, "render", "create output directory", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := opts.Grid.Full()
	if opts.Range != nil {
		r = opts.Grid.Clamp(opts.Range.Start, opts.Range.End)
	}
	if r.Len() == 0 {
		return []RenderedFrame{}, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = system.DefaultWorkers()
	}
	chunks := Partition(r, workers)

	vp := Viewport{Width: opts.Grid.Width, Height: opts.Grid.Height, DeviceScaleFactor: opts.DeviceScaleFactor}
	w := &worker{
		component: component,
		viewport:  vp,
		dir:       opts.OutDir,
		pattern:   pattern,
		timeout:   opts.FrameTimeout,
		onFrame:   opts.OnFrame,
		logger:    logger,
	}

	logger.Debug("render started",
		zap.Int("first", r.Start), zap.Int("last", r.End), zap.Int("workers", len(chunks)))

	results := make([][]RenderedFrame, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			frames, err := w.run(gctx, chunk)
			results[i] = frames
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]RenderedFrame, 0, r.Len())
	for _, frames := range results {
		out = append(out, frames...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Partition splits r into at most n contiguous chunks whose sizes differ by
// at most one.
func Partition(r grid.FrameRange, n int) []grid.FrameRange {
	total := r.Len()
	if total == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > total {
		n = total
	}
	base, extra := total/n, total%n
	chunks := make([]grid.FrameRange, 0, n)
	start := r.Start
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		chunks = append(chunks, grid.FrameRange{Start: start, End: start + size - 1})
		start += size
	}
	return chunks
}

// FramePath is where frame index is written.
func FramePath(dir, pattern string, index int) string {
	return filepath.Join(dir, fmt.Sprintf(pattern, index))
}

// ValidatePattern accepts printf patterns with exactly one integer verb,
// such as "frame-%06d.png".
func ValidatePattern(pattern string) error {
	verbs := 0
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '%' {
			continue
		}
		i++
		if i < len(pattern) && pattern[i] == '%' {
			continue
		}
		for i < len(pattern) && (pattern[i] == '0' || pattern[i] == '-' || (pattern[i] >= '1' && pattern[i] <= '9')) {
			i++
		}
		if i >= len(pattern) || pattern[i] != 'd' {
			return fault.Wrap(fault.ErrConfiguration, "frame pattern", fmt.Sprintf("%q: only %%d verbs are allowed", pattern), nil)
		}
		verbs++
	}
	if verbs != 1 {
		return fault.Wrap(fault.ErrConfiguration, "frame pattern", fmt.Sprintf("%q: need exactly one %%d verb, found %d", pattern, verbs), nil)
	}
	if filepath.Base(pattern) != pattern {
		return fault.Wrap(fault.ErrConfiguration, "frame pattern", fmt.Sprintf("%q: must be a file name", pattern), nil)
	}
	return nil
}

type worker struct {
	component Component
	viewport  Viewport
	dir       string
	pattern   string
	timeout   time.Duration
	logger    *zap.Logger

	hookMu  sync.Mutex
	onFrame func(RenderedFrame)
}

func (w *worker) run(ctx context.Context, chunk grid.FrameRange) ([]RenderedFrame, error) {
	scene, err := w.component.Mount(ctx, w.viewport)
	if err != nil {
		return nil, &FrameError{Index: chunk.Start, Err: fmt.Errorf("mount: %w", err)}
	}
	// A timed-out capture may still be painting into the scene; it must
	// finish before the scene is closed.
	var orphan <-chan captureResult
	defer func() {
		if orphan != nil {
			<-orphan
		}
		if cerr := scene.Close(); cerr != nil {
			w.logger.Warn("close scene", zap.Error(cerr))
		}
	}()

	wantW, wantH := w.viewport.PixelSize()
	frames := make([]RenderedFrame, 0, chunk.Len())
	for idx := chunk.Start; idx <= chunk.End; idx++ {
		if err := ctx.Err(); err != nil {
			return frames, &FrameError{Index: idx, Err: err}
		}

		began := time.Now()
		img, pending, err := w.capture(ctx, scene, idx)
		if err != nil {
			orphan = pending
			return frames, &FrameError{Index: idx, Err: err}
		}
		if b := img.Bounds(); b.Dx() != wantW || b.Dy() != wantH {
			return frames, &FrameError{Index: idx, Err: fmt.Errorf("captured %dx%d, want %dx%d", b.Dx(), b.Dy(), wantW, wantH)}
		}

		path := FramePath(w.dir, w.pattern, idx)
		if err := writePNG(path, img); err != nil {
			return frames, &FrameError{Index: idx, Err: err}
		}

		rf := RenderedFrame{Index: idx, Path: path, Took: time.Since(began)}
		frames = append(frames, rf)
		w.notify(rf)
	}
	return frames, nil
}

type captureResult struct {
	img image.Image
	err error
}

// capture seeks and captures one frame. With a timeout the work runs on its
// own goroutine so a scene that ignores ctx still fails the frame; the
// goroutine's result channel is returned so the caller can wait for it
// before touching the scene again.
func (w *worker) capture(ctx context.Context, scene Scene, idx int) (image.Image, <-chan captureResult, error) {
	if w.timeout <= 0 {
		img, err := seekAndCapture(ctx, scene, idx)
		return img, nil, err
	}

	fctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	done := make(chan captureResult, 1)
	go func() {
		img, err := seekAndCapture(fctx, scene, idx)
		done <- captureResult{img, err}
	}()

	select {
	case res := <-done:
		return res.img, nil, res.err
	case <-fctx.Done():
		if errors.Is(fctx.Err(), context.DeadlineExceeded) {
			return nil, done, fmt.Errorf("timed out after %s", w.timeout)
		}
		return nil, done, fctx.Err()
	}
}

func seekAndCapture(ctx context.Context, scene Scene, idx int) (image.Image, error) {
	if err := scene.SeekFrame(ctx, idx); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	img, err := scene.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if img == nil {
		return nil, errors.New("capture returned no image")
	}
	return img, nil
}

func (w *worker) notify(rf RenderedFrame) {
	if w.onFrame == nil {
		return
	}
	w.hookMu.Lock()
	defer w.hookMu.Unlock()
	w.onFrame(rf)
}

var encoder = png.Encoder{CompressionLevel: png.BestSpeed}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encoder.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
