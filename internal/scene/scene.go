// Package scene is the built-in rendering surface: a backdrop page framed by
// an animated camera, with per-cue highlight pulses and QR overlays.
package scene

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/scene2video/internal/animation"
	"github.com/ivlev/scene2video/internal/animation/keyframe"
	"github.com/ivlev/scene2video/internal/composition"
	"github.com/ivlev/scene2video/internal/frametime"
	"github.com/ivlev/scene2video/internal/render"
	"github.com/ivlev/scene2video/internal/source"
	"github.com/ivlev/scene2video/internal/system"
)

const (
	DefaultDPI        = 150
	defaultBackground = "#101018"
	defaultHighlight  = "#ffd400"
	defaultQRSize     = 160
	defaultQRMargin   = 24
)

// Component mounts one Stage per render worker.
type Component struct {
	Script   *composition.Script
	Timeline *composition.Timeline
	FPS      int
	DPI      int

	// OpenSource opens the backdrop; defaults to source.Open.
	OpenSource func(path string) (source.Source, error)
	// Camera loads the camera engine; nil keeps a fixed full view.
	Camera animation.Loader[keyframe.Target]

	Logger *zap.Logger
}

// New builds a component for script laid out on timeline. The camera comes
// from the script's camera track file when set, otherwise from the cues'
// inline keyframes.
func New(script *composition.Script, timeline *composition.Timeline, fps int) *Component {
	c := &Component{Script: script, Timeline: timeline, FPS: fps, DPI: DefaultDPI}
	switch {
	case script != nil && script.CameraTrack != "":
		c.Camera = keyframe.FromFile(script.ResolvePath(script.CameraTrack))
	case len(timeline.CameraKeyframes()) > 0:
		c.Camera = keyframe.Static(timeline.CameraKeyframes())
	}
	return c
}

// Mount opens the backdrop and starts loading the camera.
func (c *Component) Mount(ctx context.Context, vp render.Viewport) (render.Scene, error) {
	if c.FPS <= 0 {
		return nil, fmt.Errorf("scene: fps must be positive, got %d", c.FPS)
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		return nil, fmt.Errorf("scene: empty viewport %dx%d", vp.Width, vp.Height)
	}
	bg, err := ParseColor(c.background())
	if err != nil {
		return nil, err
	}

	w, h := vp.PixelSize()
	s := &Stage{
		component: c,
		viewport:  vp,
		scale:     float64(w) / float64(vp.Width),
		buf:       system.GetImage(image.Rect(0, 0, w, h)),
		bg:        image.NewUniform(bg),
		pages:     map[int]image.Image{},
		qr:        map[string]image.Image{},
		camera:    keyframe.Camera{X: float64(vp.Width) / 2, Y: float64(vp.Height) / 2, Zoom: 1},
		frame:     -1,
	}

	if c.Script != nil && c.Script.Source != "" {
		open := c.OpenSource
		if open == nil {
			open = source.Open
		}
		src, err := open(c.Script.ResolvePath(c.Script.Source))
		if err != nil {
			system.PutImage(s.buf)
			return nil, fmt.Errorf("scene: open backdrop: %w", err)
		}
		s.src = src
	}

	if c.Camera != nil {
		s.binding = animation.Mount[keyframe.Target](ctx, s, c.Camera, 0)
	}
	if c.Logger != nil {
		c.Logger.Debug("scene mounted",
			zap.Int("width", w), zap.Int("height", h), zap.Bool("camera", s.binding != nil), zap.Bool("backdrop", s.src != nil))
	}
	return s, nil
}

func (c *Component) background() string {
	if c.Script != nil && c.Script.Background != "" {
		return c.Script.Background
	}
	return defaultBackground
}

// Stage is one mounted scene. It is driven by a single worker.
type Stage struct {
	component *Component
	viewport  render.Viewport
	scale     float64

	src     source.Source
	binding *animation.Binding[keyframe.Target]

	buf   *image.RGBA
	bg    *image.Uniform
	pages map[int]image.Image
	qr    map[string]image.Image

	camera keyframe.Camera
	frame  int
	cue    *composition.TimedCue
}

// SetCamera receives camera state from the camera timeline.
func (s *Stage) SetCamera(c keyframe.Camera) {
	s.camera = c
}

// SeekFrame moves every animated layer to frame. The first seek waits for
// the camera track to finish loading.
func (s *Stage) SeekFrame(ctx context.Context, frame int) error {
	fps := s.component.FPS
	if s.binding != nil {
		s.binding.Seek(frametime.ToElapsed(frame, fps, 0, frametime.Milliseconds))
		if err := s.binding.Ready(ctx); err != nil {
			return fmt.Errorf("camera: %w", err)
		}
	}
	s.frame = frame
	s.cue = s.component.Timeline.CueAt(frametime.SecondsAt(frame, fps))
	return nil
}

// Capture paints the current frame. The returned image is reused by the
// next Capture.
func (s *Stage) Capture(ctx context.Context) (image.Image, error) {
	if s.frame < 0 {
		return nil, fmt.Errorf("scene: capture before seek")
	}
	draw.Draw(s.buf, s.buf.Bounds(), s.bg, image.Point{}, draw.Src)

	if err := s.drawBackdrop(); err != nil {
		return nil, err
	}
	if s.cue != nil {
		if err := s.drawHighlight(); err != nil {
			return nil, err
		}
		if err := s.drawQR(); err != nil {
			return nil, err
		}
	}
	return s.buf, nil
}

func (s *Stage) Close() error {
	if s.binding != nil {
		s.binding.Unmount()
	}
	var err error
	if s.src != nil {
		err = s.src.Close()
	}
	system.PutImage(s.buf)
	s.buf = nil
	return err
}

func (s *Stage) page(index int) (image.Image, error) {
	if img, ok := s.pages[index]; ok {
		return img, nil
	}
	if n := s.src.PageCount(); index >= n {
		index = n - 1
	}
	if index < 0 {
		index = 0
	}
	dpi := s.component.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	img, err := s.src.Render(index, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", index, err)
	}
	s.pages[index] = img
	return img, nil
}

// drawBackdrop fits the cue's page into the viewport, then applies the
// camera: the camera center lands on the viewport center, scaled by zoom.
func (s *Stage) drawBackdrop() error {
	if s.src == nil || s.src.PageCount() == 0 {
		return nil
	}
	index := 0
	if s.cue != nil {
		index = s.cue.Cue.Page
	}
	img, err := s.page(index)
	if err != nil {
		return err
	}

	b := img.Bounds()
	vw, vh := float64(s.viewport.Width), float64(s.viewport.Height)
	fit := math.Min(vw/float64(b.Dx()), vh/float64(b.Dy()))
	offX := (vw - float64(b.Dx())*fit) / 2
	offY := (vh - float64(b.Dy())*fit) / 2

	zoom := s.camera.Zoom
	if zoom <= 0 || math.IsNaN(zoom) {
		zoom = 1
	}
	k := s.scale * zoom
	a := k * fit
	tx := k*(offX-s.camera.X) + s.scale*vw/2 - a*float64(b.Min.X)
	ty := k*(offY-s.camera.Y) + s.scale*vh/2 - a*float64(b.Min.Y)

	m := f64.Aff3{a, 0, tx, 0, a, ty}
	draw.CatmullRom.Transform(s.buf, m, img, b, draw.Over, nil)
	return nil
}

func (s *Stage) drawHighlight() error {
	h := s.cue.Cue.Highlight
	if h == nil {
		return nil
	}
	hex := h.Color
	if hex == "" {
		hex = defaultHighlight
	}
	c, err := ParseColor(hex)
	if err != nil {
		return err
	}

	local := s.cue.LocalSeconds(s.frame, s.component.FPS)
	phase := frametime.Oscillate(local, h.CycleSec, frametime.EaseOrIdentity(h.Ease))
	alpha := clamp01(phase.Between(h.From, h.To))

	r := s.screenRect(h.Rect)
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(alpha * 255))})
	draw.DrawMask(s.buf, r, image.NewUniform(c), image.Point{}, mask, image.Point{}, draw.Over)
	return nil
}

func (s *Stage) drawQR() error {
	spec := s.cue.Cue.QR
	if spec == nil || spec.Content == "" {
		return nil
	}
	size := spec.Size
	if size <= 0 {
		size = defaultQRSize
	}
	margin := spec.Margin
	if margin <= 0 {
		margin = defaultQRMargin
	}
	px := int(math.Round(float64(size) * s.scale))

	key := fmt.Sprintf("%d:%s", px, spec.Content)
	code, ok := s.qr[key]
	if !ok {
		q, err := qrcode.New(spec.Content, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("qr code: %w", err)
		}
		code = q.Image(px)
		s.qr[key] = code
	}

	b := s.buf.Bounds()
	m := int(math.Round(float64(margin) * s.scale))
	cb := code.Bounds()
	var at image.Point
	switch spec.Corner {
	case "top-left":
		at = image.Pt(m, m)
	case "top-right":
		at = image.Pt(b.Dx()-m-cb.Dx(), m)
	case "bottom-left":
		at = image.Pt(m, b.Dy()-m-cb.Dy())
	default:
		at = image.Pt(b.Dx()-m-cb.Dx(), b.Dy()-m-cb.Dy())
	}
	draw.Draw(s.buf, image.Rectangle{Min: at, Max: at.Add(cb.Size())}, code, cb.Min, draw.Over)
	return nil
}

func (s *Stage) screenRect(r composition.Rectangle) image.Rectangle {
	px := func(v int) int { return int(math.Round(float64(v) * s.scale)) }
	return image.Rect(px(r.X), px(r.Y), px(r.X+r.W), px(r.Y+r.H)).Intersect(s.buf.Bounds())
}

// ParseColor reads #rgb, #rrggbb or #rrggbbaa.
func ParseColor(hex string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", hex)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", hex)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
